package storage

import (
	"github.com/google/wire"

	"carechat/internal/chat"
)

// Store is the full persistence collaborator consumed by the chat core.
type Store interface {
	chat.ConversationRepository
	chat.MessageRepository
}

var (
	_ Store = (*PostgresStorage)(nil)
	_ Store = (*MemoryStorage)(nil)
)

// ProvideConversationRepository is a Wire provider function that exposes a Store as a chat.ConversationRepository
func ProvideConversationRepository(store Store) chat.ConversationRepository {
	return store
}

// ProvideMessageRepository is a Wire provider function that exposes a Store as a chat.MessageRepository
func ProvideMessageRepository(store Store) chat.MessageRepository {
	return store
}

var Set = wire.NewSet(ProvideConversationRepository, ProvideMessageRepository)

package chat

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"go.uber.org/zap"

	"carechat/config"
	"carechat/internal/api"
	"carechat/internal/realtime"
	"carechat/pkg/jwt"
)

// ProvideLimits is a Wire provider function that reads history and ledger limits from the config
func ProvideLimits(cfg *config.Config) Limits {
	return Limits{
		PageSize:    cfg.HistoryPageSize,
		MaxPageSize: cfg.HistoryMaxPageSize,
		TempIDTTL:   cfg.TempIDTTL,
	}
}

// ProvideResolver is a Wire provider function that creates a Resolver backed by the pair cache
func ProvideResolver(repo ConversationRepository, cache Cache, logger *zap.Logger) *Resolver {
	return NewResolver(repo, cache, logger)
}

// ProvideMessageStore is a Wire provider function that creates a MessageStore
func ProvideMessageStore(conversations ConversationRepository, messages MessageRepository, limits Limits) *MessageStore {
	return NewMessageStore(conversations, messages, limits)
}

// ProvideReadState is a Wire provider function that creates a ReadState
func ProvideReadState(messages MessageRepository) *ReadState {
	return NewReadState(messages)
}

// ProvidePresence is a Wire provider function that creates a Presence relay
func ProvidePresence(broadcaster Broadcaster) *Presence {
	return NewPresence(broadcaster)
}

// ProvideRouter is a Wire provider function that creates a Router. The same
// cache backs the tempId ledger under its own key prefix.
func ProvideRouter(
	resolver *Resolver,
	store *MessageStore,
	reads *ReadState,
	broadcaster Broadcaster,
	cache Cache,
	limits Limits,
	logger *zap.Logger,
) *Router {
	return NewRouter(resolver, store, reads, broadcaster, cache, limits, logger)
}

func ProvideSocketOptions(cfg *config.Config, session realtime.Options) SocketOptions {
	return SocketOptions{
		Session:         session,
		EventsPerSecond: cfg.WS.EventsPerSecond,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
	}
}

func ProvideSocketHandler(
	resolver *Resolver,
	store *MessageStore,
	reads *ReadState,
	presence *Presence,
	router *Router,
	registry *realtime.Registry,
	tokens *jwt.JWT,
	opts SocketOptions,
	logger *zap.Logger,
) *SocketHandler {
	return NewSocketHandler(resolver, store, reads, presence, router, registry, tokens, opts, logger)
}

// ProvideSocketEndpoint exposes the websocket handler as a gin route handler
func ProvideSocketEndpoint(h *SocketHandler) gin.HandlerFunc {
	return h.ServeWS
}

func ProvideJSONHandler(resolver *Resolver, store *MessageStore, reads *ReadState, router *Router) *JSONHandler {
	return NewJSONHandler(resolver, store, reads, router)
}

var Set = wire.NewSet(
	ProvideLimits,
	ProvideResolver,
	ProvideMessageStore,
	ProvideReadState,
	ProvidePresence,
	ProvideRouter,
	ProvideSocketOptions,
	ProvideSocketHandler,
	ProvideSocketEndpoint,
	ProvideJSONHandler,
	wire.Bind(new(api.Routes), new(*JSONHandler)),
)

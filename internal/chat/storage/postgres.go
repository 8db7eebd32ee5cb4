package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"carechat/infrastructure"
	"carechat/internal/chat"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const (
	conversationColumns = `id, user_low, user_high, created_at, last_message_at`
	messageColumns      = `id, conversation_id, sender_id, receiver_id, body, type, is_read, read_at, created_at, redacted_at`
)

// PostgresStorage implements chat.ConversationRepository and
// chat.MessageRepository. Each call acquires a pooled connection (or a
// transaction) for its own duration only.
type PostgresStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewPostgresStorage(db *sqlx.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger.Named("postgres")}
}

func (s *PostgresStorage) timed(ctx context.Context, name string, op func() error) error {
	return infrastructure.TimeOperation(ctx, s.logger, name, op)
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", infrastructure.ErrTransientStore, op, err)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStorage) FindByPair(ctx context.Context, pair chat.Pair) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.timed(ctx, "FindByPair", func() error {
		return s.db.GetContext(ctx, &c, `
			SELECT `+conversationColumns+`
			FROM conversations WHERE user_low = $1 AND user_high = $2`,
			pair.Low, pair.High)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrConversationNotFound
	}
	if err != nil {
		return nil, transient("find conversation by pair", err)
	}
	return &c, nil
}

func (s *PostgresStorage) InsertCanonical(ctx context.Context, pair chat.Pair) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.timed(ctx, "InsertCanonical", func() error {
		return s.db.GetContext(ctx, &c, `
			INSERT INTO conversations (user_low, user_high, created_at)
			VALUES ($1, $2, $3)
			RETURNING `+conversationColumns,
			pair.Low, pair.High, now())
	})
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil, infrastructure.ErrPairConflict
	}
	if err != nil {
		return nil, transient("insert conversation", err)
	}
	return &c, nil
}

func (s *PostgresStorage) FindByID(ctx context.Context, id int64) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.timed(ctx, "FindConversationByID", func() error {
		return s.db.GetContext(ctx, &c, `
			SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrConversationNotFound
	}
	if err != nil {
		return nil, transient("find conversation", err)
	}
	return &c, nil
}

func (s *PostgresStorage) ListByUser(ctx context.Context, userID int64, limit int) ([]*chat.Conversation, error) {
	var out []*chat.Conversation
	err := s.timed(ctx, "ListByUser", func() error {
		return s.db.SelectContext(ctx, &out, `
			SELECT `+conversationColumns+`
			FROM conversations
			WHERE user_low = $1 OR user_high = $1
			ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC
			LIMIT $2`, userID, limit)
	})
	if err != nil {
		return nil, transient("list conversations", err)
	}
	return out, nil
}

// Insert stores the message and bumps the conversation's last-message
// timestamp in one transaction.
func (s *PostgresStorage) Insert(ctx context.Context, msg chat.NewMessage) (*chat.Message, error) {
	var m chat.Message
	err := s.timed(ctx, "InsertMessage", func() error {
		return infrastructure.WithTransaction(ctx, s.db, s.logger, func(tx *sqlx.Tx) error {
			createdAt := now()
			err := tx.GetContext(ctx, &m, `
				INSERT INTO messages (conversation_id, sender_id, receiver_id, body, type, is_read, created_at)
				VALUES ($1, $2, $3, $4, $5, FALSE, $6)
				RETURNING `+messageColumns,
				msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body, string(msg.Type), createdAt)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE conversations SET last_message_at = $2
				WHERE id = $1 AND (last_message_at IS NULL OR last_message_at < $2)`,
				msg.ConversationID, m.CreatedAt)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, infrastructure.ErrTransientStore) {
			return nil, err
		}
		return nil, transient("insert message", err)
	}
	return &m, nil
}

func (s *PostgresStorage) FindMessage(ctx context.Context, id int64) (*chat.Message, error) {
	var m chat.Message
	err := s.timed(ctx, "FindMessage", func() error {
		return s.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infrastructure.ErrMessageNotFound
	}
	if err != nil {
		return nil, transient("find message", err)
	}
	return &m, nil
}

func (s *PostgresStorage) ListByConversation(ctx context.Context, conversationID int64, limit int, before *chat.Cursor) ([]*chat.Message, error) {
	var out []*chat.Message
	err := s.timed(ctx, "ListByConversation", func() error {
		if before == nil {
			return s.db.SelectContext(ctx, &out, `
				SELECT `+messageColumns+`
				FROM messages
				WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT $2`, conversationID, limit)
		}
		return s.db.SelectContext(ctx, &out, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, conversationID, before.CreatedAt, before.ID, limit)
	})
	if err != nil {
		return nil, transient("list messages", err)
	}
	return out, nil
}

func (s *PostgresStorage) Redact(ctx context.Context, id int64, body string, at time.Time) (*chat.Message, error) {
	var m chat.Message
	err := s.timed(ctx, "RedactMessage", func() error {
		return s.db.GetContext(ctx, &m, `
			UPDATE messages SET body = $2, type = $3, redacted_at = $4
			WHERE id = $1 AND redacted_at IS NULL
			RETURNING `+messageColumns,
			id, body, string(chat.MessageTypeSystem), at)
	})
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := s.FindMessage(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, infrastructure.ErrMessageRedacted
	}
	if err != nil {
		return nil, transient("redact message", err)
	}
	return &m, nil
}

func (s *PostgresStorage) MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int64, error) {
	var affected int64
	err := s.timed(ctx, "MarkRead", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE messages SET is_read = TRUE, read_at = $3
			WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
			conversationID, readerID, at)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, transient("mark read", err)
	}
	return affected, nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.timed(ctx, "CountUnread", func() error {
		return s.db.GetContext(ctx, &n, `
			SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = FALSE`, userID)
	})
	if err != nil {
		return 0, transient("count unread", err)
	}
	return n, nil
}

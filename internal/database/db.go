package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"carechat/config"
)

// Open connects to Postgres through lib/pq and applies the pool settings.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SetMaxIdleConns sets the maximum number of connections in the idle connection pool.
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

	// SetMaxOpenConns sets the maximum number of open connections to the database.
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)

	// SetConnMaxLifetime sets the maximum amount of time a connection may be reused.
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return sqlx.NewDb(sqlDB, "postgres"), nil
}

// Migrate creates or updates the chat schema on an open connection.
func Migrate(db *sql.DB, logger *zap.Logger) error {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open migrator: %w", err)
	}

	if err := gdb.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database migration completed")
	return nil
}

// Conversation is the schema of the conversations table. The unique pair
// index is what makes concurrent first contact converge.
type Conversation struct {
	ID            int64      `gorm:"primaryKey"`
	UserLow       int64      `gorm:"not null;uniqueIndex:idx_conversations_pair,priority:1;index:idx_conversations_low;check:chk_conversations_order,user_low < user_high"`
	UserHigh      int64      `gorm:"not null;uniqueIndex:idx_conversations_pair,priority:2;index:idx_conversations_high"`
	CreatedAt     time.Time  `gorm:"not null;default:now()"`
	LastMessageAt *time.Time `gorm:"index"`
}

type Message struct {
	ID             int64         `gorm:"primaryKey;index:idx_messages_history,priority:3"`
	ConversationID int64         `gorm:"not null;index:idx_messages_history,priority:1"`
	Conversation   *Conversation `gorm:"constraint:OnDelete:CASCADE"`
	SenderID       int64         `gorm:"not null"`
	ReceiverID     int64         `gorm:"not null;index:idx_messages_unread,priority:1"`
	Body           string        `gorm:"type:text;not null"`
	Type           string        `gorm:"type:varchar(16);not null;default:text"`
	IsRead         bool          `gorm:"not null;default:false;index:idx_messages_unread,priority:2"`
	ReadAt         *time.Time
	CreatedAt      time.Time `gorm:"not null;default:now();index:idx_messages_history,priority:2"`
	RedactedAt     *time.Time
}

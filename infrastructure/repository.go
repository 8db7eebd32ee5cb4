package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// TimeOperation executes an operation and logs its execution time
func TimeOperation(ctx context.Context, logger *zap.Logger, name string, operation func() error) error {
	start := time.Now()
	err := operation()
	logger.Debug("store operation",
		zap.String("operation", name),
		zap.Duration("took", time.Since(start)),
		zap.Bool("ctx_done", ctx.Err() != nil),
		zap.Error(err),
	)
	return err
}

// WithTransaction handles a database transaction and executes the given operation.
// The transaction is rolled back on error or panic and committed otherwise.
func WithTransaction(ctx context.Context, db *sqlx.DB, logger *zap.Logger, operation func(*sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrTransientStore, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after Rollback
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("Error while rolling back transaction", zap.Error(rbErr))
			}
		} else if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("%w: commit: %v", ErrTransientStore, cErr)
		}
	}()

	err = operation(tx)
	return err
}

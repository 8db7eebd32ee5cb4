package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"carechat/infrastructure"
	"carechat/internal/cache"
)

const pairCacheTTL = 24 * time.Hour

// Resolver maps an unordered pair of users to their single conversation,
// creating it on first contact.
type Resolver struct {
	repo   ConversationRepository
	cache  Cache
	logger *zap.Logger
}

// NewResolver builds a Resolver. pairCache may be nil.
func NewResolver(repo ConversationRepository, pairCache Cache, logger *zap.Logger) *Resolver {
	return &Resolver{repo: repo, cache: pairCache, logger: logger.Named("resolver")}
}

func pairKey(p Pair) string {
	return "chat:pair:" + p.String()
}

// Resolve returns the id of the conversation between a and b. It is
// order-independent and idempotent. Concurrent first contact converges on
// one row: the losing insert hits the store's uniqueness constraint and
// re-reads the winner.
func (r *Resolver) Resolve(ctx context.Context, a, b int64) (int64, error) {
	pair, err := NewPair(a, b)
	if err != nil {
		return 0, err
	}
	if id, ok := r.cached(ctx, pair); ok {
		return id, nil
	}

	c, err := r.repo.FindByPair(ctx, pair)
	if errors.Is(err, infrastructure.ErrConversationNotFound) {
		c, err = r.repo.InsertCanonical(ctx, pair)
		if errors.Is(err, infrastructure.ErrPairConflict) {
			r.logger.Debug("conversation created concurrently, re-reading", zap.Stringer("pair", pair))
			c, err = r.repo.FindByPair(ctx, pair)
		}
	}
	if err != nil {
		return 0, err
	}

	r.remember(ctx, pair, c.ID)
	return c.ID, nil
}

// Conversation loads a conversation by id.
func (r *Resolver) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: conversation id must be positive", infrastructure.ErrInvalidInput)
	}
	return r.repo.FindByID(ctx, id)
}

// ListForUser returns the user's conversations, most recently active first.
func (r *Resolver) ListForUser(ctx context.Context, userID int64, limit int) ([]*Conversation, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", infrastructure.ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return r.repo.ListByUser(ctx, userID, limit)
}

func (r *Resolver) cached(ctx context.Context, pair Pair) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}
	v, err := r.cache.Get(ctx, pairKey(pair))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn("pair cache read failed", zap.Stringer("pair", pair), zap.Error(err))
		}
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (r *Resolver) remember(ctx context.Context, pair Pair, id int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, pairKey(pair), id, pairCacheTTL); err != nil {
		r.logger.Warn("pair cache write failed", zap.Stringer("pair", pair), zap.Error(err))
	}
}

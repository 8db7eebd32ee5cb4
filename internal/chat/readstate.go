package chat

import (
	"context"
	"fmt"
	"time"

	"carechat/infrastructure"
)

// ReadState tracks which messages their receivers have seen. Counts are
// always read live from the store.
type ReadState struct {
	messages MessageRepository
	now      func() time.Time
}

func NewReadState(messages MessageRepository) *ReadState {
	return &ReadState{messages: messages, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

// WithClock replaces the clock used to stamp read_at.
func (r *ReadState) WithClock(clock func() time.Time) *ReadState {
	r.now = clock
	return r
}

// MarkRead flags every unread message addressed to readerID in the
// conversation and returns how many changed along with the read_at stamp it
// wrote. Calling it again with nothing new returns 0.
func (r *ReadState) MarkRead(ctx context.Context, conversationID, readerID int64) (int64, time.Time, error) {
	if conversationID <= 0 || readerID <= 0 {
		return 0, time.Time{}, fmt.Errorf("%w: conversation and reader ids are required", infrastructure.ErrInvalidInput)
	}
	at := r.now()
	n, err := r.messages.MarkRead(ctx, conversationID, readerID, at)
	if err != nil {
		return 0, time.Time{}, err
	}
	return n, at, nil
}

func (r *ReadState) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("%w: user id is required", infrastructure.ErrInvalidInput)
	}
	return r.messages.CountUnread(ctx, userID)
}

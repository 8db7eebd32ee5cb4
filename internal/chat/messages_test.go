package chat_test

import (
	"context"
	"errors"
	"testing"

	"carechat/infrastructure"
	"carechat/internal/chat"
)

func seedConversation(t *testing.T, h *harness, n int) int64 {
	t.Helper()
	var conversationID int64
	for i := 0; i < n; i++ {
		sender, receiver := int64(1), int64(2)
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		msg, err := h.router.SendMessage(context.Background(), nil, chat.SendMessageRequest{
			SenderID: sender, ReceiverID: receiver, Message: "m",
		})
		if err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
		conversationID = msg.ConversationID
	}
	return conversationID
}

func TestHistoryDeniedToOutsiders(t *testing.T) {
	h := newHarness(t, testLimits)
	conversationID := seedConversation(t, h, 2)

	page, err := h.messages.Page(context.Background(), conversationID, 3, 0, nil)
	if !errors.Is(err, infrastructure.ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
	if page != nil {
		t.Fatalf("page returned to outsider: %+v", page)
	}

	// a conversation that does not exist looks the same
	if _, err := h.messages.Page(context.Background(), conversationID+100, 1, 0, nil); !errors.Is(err, infrastructure.ErrAccessDenied) {
		t.Fatalf("missing conversation err = %v, want ErrAccessDenied", err)
	}
}

func TestHistoryPagesCoverEveryMessageOnce(t *testing.T) {
	h := newHarness(t, chat.Limits{PageSize: 3, MaxPageSize: 3})
	ctx := context.Background()
	conversationID := seedConversation(t, h, 7)

	var pages [][]*chat.Message
	var before *chat.Cursor
	for i := 0; ; i++ {
		if i > 10 {
			t.Fatal("pagination did not terminate")
		}
		page, err := h.messages.Page(ctx, conversationID, 2, 0, before)
		if err != nil {
			t.Fatalf("Page: %v", err)
		}
		for j := 1; j < len(page.Messages); j++ {
			if page.Messages[j-1].ID >= page.Messages[j].ID {
				t.Fatalf("page %d not ascending", i)
			}
		}
		pages = append(pages, page.Messages)
		if !page.HasMore {
			if page.NextCursor != "" {
				t.Fatal("last page carries a cursor")
			}
			break
		}
		before, err = chat.ParseCursor(page.NextCursor)
		if err != nil {
			t.Fatalf("ParseCursor: %v", err)
		}
	}

	if len(pages) != 3 || len(pages[0]) != 3 || len(pages[2]) != 1 {
		t.Fatalf("page sizes = %v", pageSizes(pages))
	}

	// oldest page last; stitch back to chronological order
	var all []*chat.Message
	for i := len(pages) - 1; i >= 0; i-- {
		all = append(all, pages[i]...)
	}
	if len(all) != 7 {
		t.Fatalf("collected %d messages, want 7", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("message %d follows %d", all[i].ID, all[i-1].ID)
		}
	}
}

func pageSizes(pages [][]*chat.Message) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = len(p)
	}
	return out
}

func TestHistoryLimitIsClamped(t *testing.T) {
	h := newHarness(t, chat.Limits{PageSize: 2, MaxPageSize: 4})
	ctx := context.Background()
	conversationID := seedConversation(t, h, 6)

	cases := []struct {
		limit int
		want  int
	}{
		{0, 2},
		{3, 3},
		{50, 4},
	}
	for _, tc := range cases {
		page, err := h.messages.Page(ctx, conversationID, 1, tc.limit, nil)
		if err != nil {
			t.Fatalf("Page(limit %d): %v", tc.limit, err)
		}
		if len(page.Messages) != tc.want || !page.HasMore {
			t.Fatalf("Page(limit %d) = %d messages, hasMore %v; want %d, true",
				tc.limit, len(page.Messages), page.HasMore, tc.want)
		}
	}
}

func TestAppendRejectsUnknownType(t *testing.T) {
	h := newHarness(t, testLimits)
	conversationID := seedConversation(t, h, 1)
	_, err := h.messages.Append(context.Background(), conversationID, 1, 2, "x", chat.MessageType("image"))
	if !errors.Is(err, infrastructure.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCursorRoundTripAndRejects(t *testing.T) {
	h := newHarness(t, testLimits)
	conversationID := seedConversation(t, h, 1)
	page, err := h.messages.Page(context.Background(), conversationID, 1, 0, nil)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	m := page.Messages[0]
	c, err := chat.ParseCursor(chat.CursorOf(m).String())
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if c.ID != m.ID || !c.CreatedAt.Equal(m.CreatedAt) {
		t.Fatalf("cursor = %+v, want %d@%s", c, m.ID, m.CreatedAt)
	}
	if c.Before(m) {
		t.Fatal("message sorts before its own cursor")
	}

	for _, bad := range []string{"!!", "bm8tc2VwYXJhdG9y", "MjAyNHwx"} {
		if _, err := chat.ParseCursor(bad); !errors.Is(err, infrastructure.ErrInvalidInput) {
			t.Fatalf("ParseCursor(%q) err = %v, want ErrInvalidInput", bad, err)
		}
	}
	if c, err := chat.ParseCursor(""); c != nil || err != nil {
		t.Fatalf("ParseCursor(\"\") = %v, %v", c, err)
	}
}

package engine

import (
	"context"
	"time"
)

// defaultLookback bounds the unread window for conversations that have
// no read marker yet, so old history never shows up as unread.
const defaultLookback = 24 * time.Hour

// MarkRead records the current time as the conversation's read marker
// and persists it immediately. Markers never move backwards.
func (e *Engine) MarkRead(ctx context.Context, conversationID string) {
	e.mu.Lock()
	now := e.now()
	if cur, ok := e.readMarkers[conversationID]; ok && cur.After(now) {
		e.mu.Unlock()
		return
	}
	e.readMarkers[conversationID] = now
	e.mu.Unlock()

	if err := e.markers.Save(ctx, e.userID, conversationID, now); err != nil {
		e.log.Error("Could not persist read marker", "conversation_id", conversationID, "error", err.Error())
	}
}

// UnreadCount counts buffered messages from other users created after
// the conversation's read marker. Without a marker the default
// lookback window applies. A conversation with notifications disabled
// always reports zero.
func (e *Engine) UnreadCount(conversationID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unreadLocked(conversationID)
}

func (e *Engine) unreadLocked(conversationID string) int {
	conv, ok := e.conversations[conversationID]
	if !ok {
		return 0
	}
	if m, ok := conv.Member(e.userID); ok && !m.Notifications {
		return 0
	}
	cutoff, ok := e.readMarkers[conversationID]
	if !ok {
		cutoff = e.now().Add(-defaultLookback)
	}
	n := 0
	for _, msg := range e.messages[conversationID] {
		if msg.Author == nil || msg.Author.ID == e.userID {
			continue
		}
		if msg.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// TotalUnreadCount sums unread counts over the conversations currently
// visible to the user.
func (e *Engine) TotalUnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0
	for id, c := range e.conversations {
		if m, ok := c.Member(e.userID); ok && m.Hidden {
			continue
		}
		total += e.unreadLocked(id)
	}
	return total
}

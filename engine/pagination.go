package engine

import (
	"context"
	"sort"
)

// PageMode selects how a fetched page merges into the local buffer.
type PageMode int

const (
	// PageInitial replaces the conversation's entire buffer with the
	// fetched page. Repeated initial loads converge to server truth.
	PageInitial PageMode = iota

	// PageOlder prepends the fetched page, skipping ids already
	// present locally.
	PageOlder
)

// LoadPage fetches one page of history for a conversation. It fails
// silently on lost membership and on transport errors: both are logged
// and recorded in the shared error slot, never returned. At most one
// fetch per conversation is in flight; a call while one is running is
// a no-op. A fetch completing after the user lost membership is
// discarded before being applied.
func (e *Engine) LoadPage(ctx context.Context, conversationID string, page int, mode PageMode) {
	e.mu.Lock()
	if !e.isMemberLocked(conversationID) {
		e.log.Warn("Ignoring page load without membership", "conversation_id", conversationID)
		e.lastErr = notMemberMessage
		e.mu.Unlock()
		return
	}
	st := e.pageLocked(conversationID)
	if st.loading {
		e.mu.Unlock()
		return
	}
	st.loading = true
	e.mu.Unlock()

	res, err := e.client.ListMessages(ctx, conversationID, page, pageSize)

	e.mu.Lock()
	defer e.mu.Unlock()
	st.loading = false
	if err != nil {
		e.log.Error("Could not load messages", "conversation_id", conversationID, "page", page, "error", err.Error())
		e.lastErr = "Could not load messages"
		return
	}
	if !e.isMemberLocked(conversationID) {
		return
	}

	switch mode {
	case PageInitial:
		buf := make(map[string]*Message, len(res.Messages))
		for i := range res.Messages {
			msg := res.Messages[i]
			buf[msg.ID] = &msg
		}
		e.messages[conversationID] = buf
	case PageOlder:
		buf := e.bufferLocked(conversationID)
		for i := range res.Messages {
			msg := res.Messages[i]
			if _, ok := buf[msg.ID]; ok {
				continue
			}
			buf[msg.ID] = &msg
		}
	}

	st.page = page
	st.hasMore = res.HasMore
	if mode == PageInitial {
		e.updateLastMessageLocked(conversationID)
	}
}

// LoadMoreMessages fetches the next older page. It is a no-op when no
// further pages exist or a fetch is already in flight.
func (e *Engine) LoadMoreMessages(ctx context.Context, conversationID string) {
	e.mu.Lock()
	st := e.pageLocked(conversationID)
	if !st.hasMore || st.loading {
		e.mu.Unlock()
		return
	}
	next := st.page + 1
	e.mu.Unlock()

	e.LoadPage(ctx, conversationID, next, PageOlder)
}

// CanLoadMore reports whether an older page exists and no fetch is in
// flight.
func (e *Engine) CanLoadMore(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.pages[conversationID]
	return ok && st.hasMore && !st.loading
}

// IsLoading reports whether a fetch is in flight for the conversation.
func (e *Engine) IsLoading(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.pages[conversationID]
	return ok && st.loading
}

// Messages returns the conversation's buffered messages sorted
// ascending by creation time, ties broken by id. It is a pure read:
// it never triggers a fetch.
func (e *Engine) Messages(conversationID string) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := e.messages[conversationID]
	out := make([]Message, 0, len(buf))
	for _, msg := range buf {
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].before(&out[j])
	})
	return out
}

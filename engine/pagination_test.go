package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var (
	t1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	t3 = time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)
)

func TestEngine_LoadPageInitial(t *testing.T) {
	// The server returns newest-first; Messages must come back sorted
	// ascending with no duplicates.
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			if conversationID != "c1" {
				t.Errorf("Got conversation %q, want c1", conversationID)
			}
			if page != 1 {
				t.Errorf("Got page %d, want 1", page)
			}
			return MessagePage{
				Messages: []Message{
					msgAt("m2", "c1", "user-2", t2),
					msgAt("m1", "c1", "user-2", t1),
				},
				HasMore: true,
			}, nil
		},
	}
	e, _, _ := testEngine(t, client)
	seedConversation(e, "c1")

	e.LoadPage(context.Background(), "c1", 1, PageInitial)

	got := e.Messages("c1")
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, ids); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
	if !e.CanLoadMore("c1") {
		t.Error("CanLoadMore is false, want true")
	}

	conv := e.AllConversations()[0]
	if conv.LastMessage == nil || conv.LastMessage.ID != "m2" {
		t.Errorf("Last message summary not set to m2: %+v", conv.LastMessage)
	}
}

func TestEngine_LoadPageInitialReplaces(t *testing.T) {
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			return MessagePage{Messages: []Message{msgAt("m1", "c1", "user-2", t1)}}, nil
		},
	}
	e, _, _ := testEngine(t, client)
	seedConversation(e, "c1")
	seedMessages(e, "c1", msgAt("stale", "c1", "user-2", t3))

	e.LoadPage(context.Background(), "c1", 1, PageInitial)

	got := e.Messages("c1")
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("Initial load did not replace buffer: %+v", got)
	}
}

func TestEngine_LoadPageOlderDedup(t *testing.T) {
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			return MessagePage{
				Messages: []Message{
					msgAt("m1", "c1", "user-2", t1), // already present
					msgAt("m0", "c1", "user-2", t1.Add(-time.Hour)),
				},
			}, nil
		},
	}
	e, _, _ := testEngine(t, client)
	seedConversation(e, "c1")
	seedMessages(e, "c1",
		msgAt("m1", "c1", "user-2", t1),
		msgAt("m2", "c1", "user-2", t2),
	)

	e.LoadPage(context.Background(), "c1", 2, PageOlder)

	got := e.Messages("c1")
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	if diff := cmp.Diff([]string{"m0", "m1", "m2"}, ids); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_LoadPageNotMember(t *testing.T) {
	var calls atomic.Int32
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			calls.Add(1)
			return MessagePage{}, nil
		},
	}
	e, _, _ := testEngine(t, client)
	seedConversation(e, "c1", Member{Identity: Identity{ID: "user-2", Username: "bob"}, Notifications: true})

	e.LoadPage(context.Background(), "c1", 1, PageInitial)

	if n := calls.Load(); n != 0 {
		t.Errorf("Got %d fetches, want 0", n)
	}
	if got := e.LastError(); got != notMemberMessage {
		t.Errorf("Got error %q, want membership message", got)
	}
}

func TestEngine_LoadMoreSingleFlight(t *testing.T) {
	// The fake re-enters LoadMoreMessages while the first fetch is in
	// flight; the in-flight flag must make the nested call a no-op.
	var calls atomic.Int32
	var e *Engine
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			if calls.Add(1) == 1 {
				e.LoadMoreMessages(context.Background(), "c1")
			}
			return MessagePage{HasMore: true}, nil
		},
	}
	e, _, _ = testEngine(t, client)
	seedConversation(e, "c1")

	e.LoadMoreMessages(context.Background(), "c1")

	if n := calls.Load(); n != 1 {
		t.Errorf("Got %d fetches, want 1", n)
	}
}

func TestEngine_LoadPageErrorClearsInFlight(t *testing.T) {
	fail := true
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			if fail {
				return MessagePage{}, errTransport
			}
			return MessagePage{Messages: []Message{msgAt("m1", "c1", "user-2", t1)}}, nil
		},
	}
	e, _, _ := testEngine(t, client)
	seedConversation(e, "c1")

	e.LoadPage(context.Background(), "c1", 1, PageInitial)
	if got := e.LastError(); got != "Could not load messages" {
		t.Errorf("Got error %q, want load failure message", got)
	}
	if e.IsLoading("c1") {
		t.Error("In-flight flag not cleared after error")
	}

	// Retry succeeds.
	fail = false
	e.LoadPage(context.Background(), "c1", 1, PageInitial)
	if got := e.Messages("c1"); len(got) != 1 {
		t.Errorf("Retry did not load messages: %+v", got)
	}
}

func TestEngine_LoadPageDiscardedAfterEviction(t *testing.T) {
	// The fetch completes after the user lost membership; the result
	// must be discarded by the guard.
	var e *Engine
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			e.Apply(MemberRemoved{ConversationID: "c1", UserID: currentUser})
			return MessagePage{Messages: []Message{msgAt("m1", "c1", "user-2", t1)}}, nil
		},
	}
	e, _, _ = testEngine(t, client)
	e.evictionDelay = time.Hour // keep the reconcile refresh out of this test
	seedConversation(e, "c1")

	e.LoadPage(context.Background(), "c1", 1, PageInitial)

	if got := e.Messages("c1"); len(got) != 0 {
		t.Errorf("Discarded fetch still applied: %+v", got)
	}
}

func TestEngine_MessagesIsPureRead(t *testing.T) {
	var calls atomic.Int32
	client := &fakeClient{
		listMessages: func(t *testing.T, conversationID string, page, pageSize int) (MessagePage, error) {
			calls.Add(1)
			return MessagePage{}, nil
		},
	}
	e, _, _ := testEngine(t, client)
	seedConversation(e, "c1")

	_ = e.Messages("c1")
	_ = e.Messages("c1")

	if n := calls.Load(); n != 0 {
		t.Errorf("Messages triggered %d fetches, want 0", n)
	}
}

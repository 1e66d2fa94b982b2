package engine

import (
	"context"
	"testing"
	"time"
)

func TestEngine_UnreadDefaultLookback(t *testing.T) {
	// No read marker: a message from 2 hours ago counts, one from 2
	// days ago does not.
	e, _, _ := testEngine(t, nil)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	seedConversation(e, "c1")
	seedMessages(e, "c1",
		msgAt("recent", "c1", "user-2", now.Add(-2*time.Hour)),
		msgAt("old", "c1", "user-2", now.Add(-48*time.Hour)),
	)

	if got := e.UnreadCount("c1"); got != 1 {
		t.Errorf("Got unread %d, want 1", got)
	}
}

func TestEngine_UnreadIgnoresOwnAndSystemMessages(t *testing.T) {
	e, _, _ := testEngine(t, nil)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	seedConversation(e, "c1")
	seedMessages(e, "c1",
		msgAt("mine", "c1", currentUser, now.Add(-time.Hour)),
		msgAt("system", "c1", "", now.Add(-time.Hour)),
		msgAt("theirs", "c1", "user-2", now.Add(-time.Hour)),
	)

	if got := e.UnreadCount("c1"); got != 1 {
		t.Errorf("Got unread %d, want 1", got)
	}
}

func TestEngine_MarkReadResetsUnread(t *testing.T) {
	e, _, markers := testEngine(t, nil)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	seedConversation(e, "c1")
	seedMessages(e, "c1", msgAt("m1", "c1", "user-2", now.Add(-time.Hour)))

	if got := e.UnreadCount("c1"); got != 1 {
		t.Fatalf("Got unread %d before MarkRead, want 1", got)
	}

	e.MarkRead(context.Background(), "c1")
	if got := e.UnreadCount("c1"); got != 0 {
		t.Errorf("Got unread %d after MarkRead, want 0", got)
	}
	if saved, ok := markers.saved["c1"]; !ok || !saved.Equal(now) {
		t.Errorf("Marker not persisted: %v", markers.saved)
	}

	// A message created after the marker counts again.
	e.Apply(MessageCreated{Message: msgAt("m2", "c1", "user-2", now.Add(time.Minute))})
	if got := e.UnreadCount("c1"); got != 1 {
		t.Errorf("Got unread %d for post-marker message, want 1", got)
	}
}

func TestEngine_MarkReadMonotonic(t *testing.T) {
	e, _, _ := testEngine(t, nil)
	later := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seedConversation(e, "c1")

	e.mu.Lock()
	e.readMarkers["c1"] = later
	e.mu.Unlock()

	// The clock went backwards; the marker must not.
	e.now = func() time.Time { return later.Add(-time.Hour) }
	e.MarkRead(context.Background(), "c1")

	e.mu.Lock()
	got := e.readMarkers["c1"]
	e.mu.Unlock()
	if !got.Equal(later) {
		t.Errorf("Marker moved backwards to %v", got)
	}
}

func TestEngine_UnreadZeroWhenNotificationsDisabled(t *testing.T) {
	e, _, _ := testEngine(t, nil)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	seedConversation(e, "c1",
		Member{Identity: Identity{ID: currentUser, Username: "alice"}, Notifications: false},
		Member{Identity: Identity{ID: "user-2", Username: "bob"}, Notifications: true},
	)
	seedMessages(e, "c1", msgAt("m1", "c1", "user-2", now.Add(-time.Minute)))

	if got := e.UnreadCount("c1"); got != 0 {
		t.Errorf("Got unread %d with notifications disabled, want 0", got)
	}
}

func TestEngine_TotalUnreadCount(t *testing.T) {
	e, _, _ := testEngine(t, nil)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	seedConversation(e, "c1")
	seedConversation(e, "c2")
	// Hidden conversations do not contribute.
	seedConversation(e, "c3",
		Member{Identity: Identity{ID: currentUser, Username: "alice"}, Notifications: true, Hidden: true},
		Member{Identity: Identity{ID: "user-2", Username: "bob"}, Notifications: true},
	)
	seedMessages(e, "c1", msgAt("a", "c1", "user-2", now.Add(-time.Hour)))
	seedMessages(e, "c2",
		msgAt("b", "c2", "user-2", now.Add(-time.Hour)),
		msgAt("c", "c2", "user-2", now.Add(-time.Minute)),
	)
	seedMessages(e, "c3", msgAt("d", "c3", "user-2", now.Add(-time.Minute)))

	if got := e.TotalUnreadCount(); got != 3 {
		t.Errorf("Got total unread %d, want 3", got)
	}
}

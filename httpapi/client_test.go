package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"

	"github.com/iolipix/jurinapse-sync/engine"
)

func TestClient_ListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.URL.Path != "/groups" {
			t.Errorf("Got %s %s, want GET /groups", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Got auth header %q", got)
		}
		io.WriteString(w, `{
			"groups": [{
				"id": "c1",
				"name": "Study group",
				"ownerId": "u1",
				"moderatorIds": ["u1"],
				"members": [
					{"id": "u1", "username": "alice", "notificationsEnabled": true},
					{"id": "u2", "username": "bob", "notificationsEnabled": false, "hidden": true}
				],
				"createdAt": "2024-01-01T00:00:00Z"
			}]
		}`)
	}))
	defer srv.Close()

	cli := New(slogt.New(t), srv.URL, "tok")
	got, err := cli.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []engine.Conversation{{
		ID:           "c1",
		Name:         "Study group",
		OwnerID:      "u1",
		ModeratorIDs: []string{"u1"},
		Members: []engine.Member{
			{Identity: engine.Identity{ID: "u1", Username: "alice"}, Notifications: true},
			{Identity: engine.Identity{ID: "u2", Username: "bob"}, Hidden: true},
		},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Conversations mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_ListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups/c1/messages" {
			t.Errorf("Got path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "20" {
			t.Errorf("Got query %s", r.URL.RawQuery)
		}
		io.WriteString(w, `{
			"messages": [{
				"id": "m1",
				"groupId": "c1",
				"author": {"id": "u2", "username": "bob"},
				"content": "hello",
				"createdAt": "2024-03-01T10:00:00Z",
				"replyTo": {"messageId": "m0", "content": "hi", "authorId": "u1", "authorUsername": "alice"},
				"reactions": {"👍": ["u1"]}
			}],
			"hasMore": true
		}`)
	}))
	defer srv.Close()

	cli := New(slogt.New(t), srv.URL, "")
	got, err := cli.ListMessages(context.Background(), "c1", 2, 20)
	if err != nil {
		t.Fatal(err)
	}

	want := engine.MessagePage{
		Messages: []engine.Message{{
			ID:             "m1",
			ConversationID: "c1",
			Author:         &engine.Identity{ID: "u2", Username: "bob"},
			Content:        "hello",
			CreatedAt:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			ReplyTo: &engine.ReplyRef{
				MessageID: "m0",
				Content:   "hi",
				Author:    engine.Identity{ID: "u1", Username: "alice"},
			},
			Reactions: map[string][]string{"👍": {"u1"}},
		}},
		HasMore: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Page mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_CreateMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/groups/c1/messages" {
			t.Errorf("Got %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Content   string `json:"content"`
			ReplyToID string `json:"replyToId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Content != "hello" || body.ReplyToID != "m0" {
			t.Errorf("Got body %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": "m1", "groupId": "c1", "content": "hello", "createdAt": "2024-03-01T10:00:00Z"}`)
	}))
	defer srv.Close()

	cli := New(slogt.New(t), srv.URL, "")
	got, err := cli.CreateMessage(context.Background(), "c1", "hello", "m0")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "m1" || got.Content != "hello" {
		t.Errorf("Got message %+v", got)
	}
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error": "not a member"}`)
	}))
	defer srv.Close()

	cli := New(slogt.New(t), srv.URL, "")
	err := cli.DeleteMessage(context.Background(), "m1")
	if err == nil {
		t.Fatal("Got nil error, want forbidden")
	}
	if want := "not a member"; !strings.Contains(err.Error(), want) {
		t.Errorf("Got error %q, want it to contain %q", err, want)
	}
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cli := New(slogt.New(t), srv.URL, "")
	err := cli.LeaveConversation(context.Background(), "c1")
	if err == nil {
		t.Fatal("Got nil error, want bad gateway")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("Got error %q, want the HTTP status in it", err)
	}
}

func TestClient_MembershipPaths(t *testing.T) {
	type call struct {
		method, path string
	}
	var got []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	cli := New(slogt.New(t), srv.URL, "")
	cli.AddMember(ctx, "c1", "u2")
	cli.RemoveMember(ctx, "c1", "u2")
	cli.PromoteModerator(ctx, "c1", "u2")
	cli.DemoteModerator(ctx, "c1", "u2")
	cli.LeaveConversation(ctx, "c1")
	cli.DeleteConversation(ctx, "c1")
	cli.DeleteHistory(ctx, "c1")
	cli.SetNotifications(ctx, "c1", false)
	cli.SetHidden(ctx, "c1", true)

	want := []call{
		{"POST", "/groups/c1/members"},
		{"DELETE", "/groups/c1/members/u2"},
		{"POST", "/groups/c1/moderators"},
		{"DELETE", "/groups/c1/moderators/u2"},
		{"POST", "/groups/c1/leave"},
		{"DELETE", "/groups/c1"},
		{"DELETE", "/groups/c1/messages"},
		{"PUT", "/groups/c1/notifications"},
		{"PUT", "/groups/c1/hidden"},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("Calls mismatch (-want +got):\n%s", diff)
	}
}

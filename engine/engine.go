package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// A Client performs the request/response calls against the backing
// API. Implementations must be safe for concurrent use.
type Client interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	ListMessages(ctx context.Context, conversationID string, page, pageSize int) (MessagePage, error)
	CreateMessage(ctx context.Context, conversationID, content, replyToID string) (Message, error)
	UpdateMessage(ctx context.Context, messageID, content string) (Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error
	AddMember(ctx context.Context, conversationID, userID string) error
	RemoveMember(ctx context.Context, conversationID, userID string) error
	PromoteModerator(ctx context.Context, conversationID, userID string) error
	DemoteModerator(ctx context.Context, conversationID, userID string) error
	LeaveConversation(ctx context.Context, conversationID string) error
	DeleteConversation(ctx context.Context, conversationID string) error
	DeleteHistory(ctx context.Context, conversationID string) error
	SetNotifications(ctx context.Context, conversationID string, enabled bool) error
	SetHidden(ctx context.Context, conversationID string, hidden bool) error
}

// Rooms manages the event channel's per-conversation subscriptions.
type Rooms interface {
	Join(conversationID string)
	Leave(conversationID string)
}

// A MarkerStore persists read markers beyond the process lifetime.
type MarkerStore interface {
	Load(ctx context.Context, userID string) (map[string]time.Time, error)
	Save(ctx context.Context, userID, conversationID string, readAt time.Time) error
	Delete(ctx context.Context, userID, conversationID string) error
}

// pageSize is the number of messages fetched per pagination call.
const pageSize = 20

// Engine reconciles paginated message history with the live event
// stream and owns all conversation-local state for one user. A single
// mutex serializes every mutation: push events are applied whole, and
// request/response calls re-check membership after the round-trip
// before touching state.
type Engine struct {
	log      *slog.Logger
	client   Client
	rooms    Rooms
	markers  MarkerStore
	userID   string
	validate *validator.Validate

	now func() time.Time

	refreshDebounce time.Duration
	evictionDelay   time.Duration
	preloadRetry    time.Duration

	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string]map[string]*Message
	pages         map[string]*pageState
	readMarkers   map[string]time.Time
	lastErr       string
	notice        string
	refreshTimer  *time.Timer
}

// pageState is the per-conversation pagination cursor.
type pageState struct {
	page    int
	hasMore bool
	loading bool
}

// New builds an Engine for the given user. The client and rooms
// collaborators must already be authenticated and connected.
func New(log *slog.Logger, client Client, rooms Rooms, markers MarkerStore, userID string) *Engine {
	return &Engine{
		log:      log,
		client:   client,
		rooms:    rooms,
		markers:  markers,
		userID:   userID,
		validate: validator.New(validator.WithRequiredStructEnabled()),

		now: time.Now,

		refreshDebounce: 250 * time.Millisecond,
		evictionDelay:   time.Second,
		preloadRetry:    3 * time.Second,

		conversations: make(map[string]*Conversation),
		messages:      make(map[string]map[string]*Message),
		pages:         make(map[string]*pageState),
		readMarkers:   make(map[string]time.Time),
	}
}

// Preload fetches persisted read markers and the conversation list. A
// conversation-list failure schedules one delayed retry; the engine
// stays usable in the meantime.
func (e *Engine) Preload(ctx context.Context) {
	if markers, err := e.markers.Load(ctx, e.userID); err != nil {
		e.log.Error("Could not load read markers", "error", err.Error())
	} else {
		e.mu.Lock()
		for id, t := range markers {
			e.readMarkers[id] = t
		}
		e.mu.Unlock()
	}

	if err := e.RefreshConversations(ctx); err != nil {
		e.log.Error("Initial conversation load failed, scheduling retry", "error", err.Error())
		time.AfterFunc(e.preloadRetry, func() {
			if err := e.RefreshConversations(context.Background()); err != nil {
				e.log.Error("Conversation load retry failed", "error", err.Error())
			}
		})
	}
}

// RefreshConversations replaces the conversation set with server
// truth. Rooms are joined for conversations seen for the first time;
// conversations the user no longer belongs to are purged.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	convs, err := e.client.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(convs))
	for i := range convs {
		c := convs[i]
		seen[c.ID] = true
		if prev, ok := e.conversations[c.ID]; ok {
			c.LastMessage = prev.LastMessage
		} else {
			e.rooms.Join(c.ID)
		}
		e.conversations[c.ID] = &c
	}

	var gone []string
	for id := range e.conversations {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		e.purgeLocked(id)
	}
	return nil
}

// AllConversations returns the conversations currently visible to the
// user (hidden ones excluded), most recently active first.
func (e *Engine) AllConversations() []Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Conversation, 0, len(e.conversations))
	for _, c := range e.conversations {
		if m, ok := c.Member(e.userID); ok && m.Hidden {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return activity(&out[i]).After(activity(&out[j]))
	})
	return out
}

func activity(c *Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// DisplayName returns the list label for a conversation: for a
// two-party thread, the other participant's name; otherwise the
// conversation's own name.
func DisplayName(c Conversation, currentUserID string) string {
	if len(c.Members) == 2 {
		for _, m := range c.Members {
			if m.ID != currentUserID {
				return m.Username
			}
		}
	}
	return c.Name
}

// LastError returns and clears the shared transient error message.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.lastErr
	e.lastErr = ""
	return s
}

// Notice returns and clears the one-shot user notice, such as the
// removal message raised on eviction.
func (e *Engine) Notice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.notice
	e.notice = ""
	return s
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
}

// scheduleRefreshLocked collapses a burst of conversation updates into
// one list refresh.
func (e *Engine) scheduleRefreshLocked() {
	if e.refreshTimer != nil {
		e.refreshTimer.Stop()
	}
	e.refreshTimer = time.AfterFunc(e.refreshDebounce, func() {
		if err := e.RefreshConversations(context.Background()); err != nil {
			e.log.Error("Conversation refresh failed", "error", err.Error())
		}
	})
}

// purgeLocked removes every trace of a conversation: room
// subscription, messages, pagination state, local and persisted read
// marker. It runs unconditionally whenever membership is lost.
func (e *Engine) purgeLocked(conversationID string) {
	e.rooms.Leave(conversationID)
	delete(e.messages, conversationID)
	delete(e.pages, conversationID)
	delete(e.conversations, conversationID)
	delete(e.readMarkers, conversationID)

	// The persisted marker delete is a network call; it runs off the
	// event path so eviction never blocks on I/O.
	go func() {
		if err := e.markers.Delete(context.Background(), e.userID, conversationID); err != nil {
			e.log.Error("Could not delete read marker", "conversation_id", conversationID, "error", err.Error())
		}
	}()
}

func (e *Engine) bufferLocked(conversationID string) map[string]*Message {
	buf, ok := e.messages[conversationID]
	if !ok {
		buf = make(map[string]*Message)
		e.messages[conversationID] = buf
	}
	return buf
}

func (e *Engine) pageLocked(conversationID string) *pageState {
	st, ok := e.pages[conversationID]
	if !ok {
		st = &pageState{hasMore: true}
		e.pages[conversationID] = st
	}
	return st
}

// findMessageLocked locates a message by id across all buffers.
func (e *Engine) findMessageLocked(messageID string) (*Message, string, bool) {
	for conversationID, buf := range e.messages {
		if msg, ok := buf[messageID]; ok {
			return msg, conversationID, true
		}
	}
	return nil, "", false
}

// updateLastMessageLocked recomputes the list-preview summary from the
// conversation's buffer.
func (e *Engine) updateLastMessageLocked(conversationID string) {
	conv, ok := e.conversations[conversationID]
	if !ok {
		return
	}
	var last *Message
	for _, msg := range e.messages[conversationID] {
		if last == nil || last.before(msg) {
			last = msg
		}
	}
	if last == nil {
		conv.LastMessage = nil
		return
	}
	summary := *last
	conv.LastMessage = &summary
}

package engine

import (
	"context"
	"time"
)

// An Event is one state change pushed over the live channel. Events
// are applied strictly in receipt order; races against pagination
// results are resolved by id-level dedup and no-op-on-unknown-id
// rules, never by timestamp reordering of applied state.
type Event interface {
	event()
}

// MessageCreated delivers a new message.
type MessageCreated struct {
	Message Message
}

// MessageUpdated delivers an edit to a single message.
type MessageUpdated struct {
	ConversationID string
	MessageID      string
	Content        string
	UpdatedAt      time.Time
}

// MessagesUpdated is the bulk form of MessageUpdated: every listed
// message replaces its local copy by id.
type MessagesUpdated struct {
	ConversationID string
	Messages       []Message
}

// MessageDeleted confirms a permanent removal. The local copy is
// dropped; the server owns tombstone semantics.
type MessageDeleted struct {
	ConversationID string
	MessageID      string
}

// ReactionAdded adds one user to one emoji set.
type ReactionAdded struct {
	ConversationID string
	MessageID      string
	Emoji          string
	UserID         string
}

// ReactionRemoved removes one user from one emoji set.
type ReactionRemoved struct {
	ConversationID string
	MessageID      string
	Emoji          string
	UserID         string
}

// ConversationUpdated signals that membership or visibility metadata
// changed server-side.
type ConversationUpdated struct {
	ConversationID string
}

// MemberRemoved strips a member from a conversation. When the removed
// member is the current user, the conversation is evicted.
type MemberRemoved struct {
	ConversationID string
	UserID         string
}

func (MessageCreated) event()      {}
func (MessageUpdated) event()      {}
func (MessagesUpdated) event()     {}
func (MessageDeleted) event()      {}
func (ReactionAdded) event()       {}
func (ReactionRemoved) event()     {}
func (ConversationUpdated) event() {}
func (MemberRemoved) event()       {}

// Apply folds one push event into local state. It never blocks on
// I/O: any server round-trip an event calls for (a conversation
// refresh) is scheduled on a timer, so each event is fully applied
// before the next one is handled.
func (e *Engine) Apply(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev := ev.(type) {
	case MessageCreated:
		e.applyCreatedLocked(ev.Message)
	case MessageUpdated:
		e.applyUpdatedLocked(ev)
	case MessagesUpdated:
		for _, msg := range ev.Messages {
			e.replaceMessageLocked(ev.ConversationID, msg)
		}
	case MessageDeleted:
		e.applyDeletedLocked(ev.ConversationID, ev.MessageID)
	case ReactionAdded:
		if msg, ok := e.messages[ev.ConversationID][ev.MessageID]; ok {
			msg.addReaction(ev.Emoji, ev.UserID)
		}
	case ReactionRemoved:
		if msg, ok := e.messages[ev.ConversationID][ev.MessageID]; ok {
			msg.removeReaction(ev.Emoji, ev.UserID)
		}
	case ConversationUpdated:
		e.scheduleRefreshLocked()
	case MemberRemoved:
		e.applyMemberRemovedLocked(ev)
	}
}

// applyCreatedLocked appends a new message. A message id already
// present is ignored: push events race with pagination loads that may
// have captured the same message.
func (e *Engine) applyCreatedLocked(msg Message) {
	conv, ok := e.conversations[msg.ConversationID]
	if !ok {
		return
	}
	buf := e.bufferLocked(msg.ConversationID)
	if _, ok := buf[msg.ID]; ok {
		return
	}
	e.normalizeReplyLocked(&msg)
	buf[msg.ID] = &msg
	if conv.LastMessage == nil || conv.LastMessage.before(&msg) {
		summary := msg
		conv.LastMessage = &summary
	}
}

// normalizeReplyLocked fills in a reply reference's author from
// locally known identities when the event carried only an id. The
// snapshot embedded in the event is the fallback, so a reply never
// loses its label.
func (e *Engine) normalizeReplyLocked(msg *Message) {
	if msg.ReplyTo == nil || msg.ReplyTo.Author.Username != "" {
		return
	}
	if id, ok := e.resolveIdentityLocked(msg.ConversationID, msg.ReplyTo.Author.ID); ok {
		msg.ReplyTo.Author = id
	}
}

func (e *Engine) applyUpdatedLocked(ev MessageUpdated) {
	msg, ok := e.messages[ev.ConversationID][ev.MessageID]
	if !ok {
		// Out-of-order event with no prior create: acceptable lost
		// update.
		return
	}
	msg.Content = ev.Content
	at := ev.UpdatedAt
	msg.UpdatedAt = &at
}

// replaceMessageLocked swaps the local copy of a known message for the
// server's version. Unknown ids are ignored.
func (e *Engine) replaceMessageLocked(conversationID string, msg Message) {
	buf, ok := e.messages[conversationID]
	if !ok {
		return
	}
	if _, ok := buf[msg.ID]; !ok {
		return
	}
	e.normalizeReplyLocked(&msg)
	buf[msg.ID] = &msg
}

func (e *Engine) applyDeletedLocked(conversationID, messageID string) {
	buf, ok := e.messages[conversationID]
	if !ok {
		return
	}
	if _, ok := buf[messageID]; !ok {
		return
	}
	delete(buf, messageID)

	conv, ok := e.conversations[conversationID]
	if ok && conv.LastMessage != nil && conv.LastMessage.ID == messageID {
		e.updateLastMessageLocked(conversationID)
	}
}

func (e *Engine) applyMemberRemovedLocked(ev MemberRemoved) {
	conv, ok := e.conversations[ev.ConversationID]
	if !ok {
		return
	}

	if ev.UserID != e.userID {
		conv.removeMember(ev.UserID)
		return
	}

	e.purgeLocked(ev.ConversationID)
	e.notice = "You were removed from this conversation"

	// A delayed full refresh reconciles any race with operations that
	// were concurrent with the removal.
	time.AfterFunc(e.evictionDelay, func() {
		if err := e.RefreshConversations(context.Background()); err != nil {
			e.log.Error("Post-eviction refresh failed", "error", err.Error())
		}
	})
}

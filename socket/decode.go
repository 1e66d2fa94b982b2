package socket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iolipix/jurinapse-sync/engine"
)

// envelope is the outer frame shape on the wire.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Wire shapes are loose by design: the channel is externally defined.
// Normalization into engine entities happens here, before any engine
// logic runs.

type wireAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type wireReply struct {
	MessageID string      `json:"messageId"`
	Content   string      `json:"content"`
	Author    *wireAuthor `json:"author"`

	// Snapshot fields, present when the live author object is not.
	AuthorID       string `json:"authorId"`
	AuthorUsername string `json:"authorUsername"`
}

type wireMessage struct {
	ID            string              `json:"id"`
	GroupID       string              `json:"groupId"`
	Author        *wireAuthor         `json:"author"`
	Content       string              `json:"content"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     *time.Time          `json:"updatedAt"`
	ReplyTo       *wireReply          `json:"replyTo"`
	SharedObject  json.RawMessage     `json:"sharedObject"`
	Reactions     map[string][]string `json:"reactions"`
	Deleted       bool                `json:"isDeleted"`
	DeletedReason string              `json:"deletedReason"`
}

// decodeEvent maps one wire frame to an engine event. Unknown event
// names yield (nil, nil) so the caller can skip them.
func decodeEvent(env envelope) (engine.Event, error) {
	switch env.Event {
	case "new-message":
		var w wireMessage
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return engine.MessageCreated{Message: w.engineMessage()}, nil

	case "message-updated":
		var w struct {
			GroupID   string    `json:"groupId"`
			MessageID string    `json:"messageId"`
			Content   string    `json:"content"`
			UpdatedAt time.Time `json:"updatedAt"`
		}
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return engine.MessageUpdated{
			ConversationID: w.GroupID,
			MessageID:      w.MessageID,
			Content:        w.Content,
			UpdatedAt:      w.UpdatedAt,
		}, nil

	case "messages-updated":
		var w struct {
			GroupID  string        `json:"groupId"`
			Messages []wireMessage `json:"messages"`
		}
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		msgs := make([]engine.Message, len(w.Messages))
		for i, m := range w.Messages {
			if m.GroupID == "" {
				m.GroupID = w.GroupID
			}
			msgs[i] = m.engineMessage()
		}
		return engine.MessagesUpdated{ConversationID: w.GroupID, Messages: msgs}, nil

	case "message-deleted":
		var w struct {
			GroupID   string `json:"groupId"`
			MessageID string `json:"messageId"`
		}
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return engine.MessageDeleted{ConversationID: w.GroupID, MessageID: w.MessageID}, nil

	case "reaction-added", "reaction-removed":
		var w struct {
			GroupID   string `json:"groupId"`
			MessageID string `json:"messageId"`
			Emoji     string `json:"emoji"`
			UserID    string `json:"userId"`
		}
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if env.Event == "reaction-added" {
			return engine.ReactionAdded{
				ConversationID: w.GroupID,
				MessageID:      w.MessageID,
				Emoji:          w.Emoji,
				UserID:         w.UserID,
			}, nil
		}
		return engine.ReactionRemoved{
			ConversationID: w.GroupID,
			MessageID:      w.MessageID,
			Emoji:          w.Emoji,
			UserID:         w.UserID,
		}, nil

	case "groupUpdated":
		var w struct {
			GroupID string `json:"groupId"`
		}
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return engine.ConversationUpdated{ConversationID: w.GroupID}, nil

	case "member-removed":
		var w struct {
			GroupID string `json:"groupId"`
			UserID  string `json:"userId"`
		}
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return engine.MemberRemoved{ConversationID: w.GroupID, UserID: w.UserID}, nil
	}

	return nil, nil
}

func (w wireMessage) engineMessage() engine.Message {
	msg := engine.Message{
		ID:             w.ID,
		ConversationID: w.GroupID,
		Content:        w.Content,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		SharedObject:   w.SharedObject,
		Deleted:        w.Deleted,
		DeletedReason:  w.DeletedReason,
		ReplyTo:        w.ReplyTo.engineReply(),
	}
	if w.Author != nil {
		msg.Author = &engine.Identity{ID: w.Author.ID, Username: w.Author.Username}
	}
	if len(w.Reactions) > 0 {
		msg.Reactions = make(map[string][]string, len(w.Reactions))
		for emoji, users := range w.Reactions {
			msg.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return msg
}

// engineReply prefers the live author object, falling back to the
// snapshot fields embedded in the event.
func (w *wireReply) engineReply() *engine.ReplyRef {
	if w == nil {
		return nil
	}
	ref := &engine.ReplyRef{MessageID: w.MessageID, Content: w.Content}
	if w.Author != nil && w.Author.ID != "" {
		ref.Author = engine.Identity{ID: w.Author.ID, Username: w.Author.Username}
	} else {
		ref.Author = engine.Identity{ID: w.AuthorID, Username: w.AuthorUsername}
	}
	return ref
}

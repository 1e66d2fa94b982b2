package httpapi

import (
	"encoding/json"
	"time"

	"github.com/iolipix/jurinapse-sync/engine"
)

// A group is a conversation as the REST API serializes it.
type group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"ownerId"`
	ModeratorIDs []string  `json:"moderatorIds"`
	Members      []member  `json:"members"`
	CreatedAt    time.Time `json:"createdAt"`
}

type member struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Notifications bool   `json:"notificationsEnabled"`
	Hidden        bool   `json:"hidden"`
}

// A message is a message as the REST API serializes it.
type message struct {
	ID            string              `json:"id"`
	GroupID       string              `json:"groupId"`
	Author        *member             `json:"author"`
	Content       string              `json:"content"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     *time.Time          `json:"updatedAt"`
	ReplyTo       *reply              `json:"replyTo"`
	SharedObject  json.RawMessage     `json:"sharedObject"`
	Reactions     map[string][]string `json:"reactions"`
	Deleted       bool                `json:"isDeleted"`
	DeletedReason string              `json:"deletedReason"`
}

type reply struct {
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
	AuthorID       string `json:"authorId"`
	AuthorUsername string `json:"authorUsername"`
}

func (g group) engineConversation() engine.Conversation {
	members := make([]engine.Member, len(g.Members))
	for i, m := range g.Members {
		members[i] = engine.Member{
			Identity:      engine.Identity{ID: m.ID, Username: m.Username},
			Notifications: m.Notifications,
			Hidden:        m.Hidden,
		}
	}
	return engine.Conversation{
		ID:           g.ID,
		Name:         g.Name,
		OwnerID:      g.OwnerID,
		ModeratorIDs: g.ModeratorIDs,
		Members:      members,
		CreatedAt:    g.CreatedAt,
	}
}

func (m message) engineMessage() engine.Message {
	msg := engine.Message{
		ID:             m.ID,
		ConversationID: m.GroupID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		SharedObject:   m.SharedObject,
		Deleted:        m.Deleted,
		DeletedReason:  m.DeletedReason,
	}
	if m.Author != nil {
		msg.Author = &engine.Identity{ID: m.Author.ID, Username: m.Author.Username}
	}
	if m.ReplyTo != nil {
		msg.ReplyTo = &engine.ReplyRef{
			MessageID: m.ReplyTo.MessageID,
			Content:   m.ReplyTo.Content,
			Author:    engine.Identity{ID: m.ReplyTo.AuthorID, Username: m.ReplyTo.AuthorUsername},
		}
	}
	if len(m.Reactions) > 0 {
		msg.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			msg.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return msg
}

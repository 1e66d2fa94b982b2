package engine

import (
	"encoding/json"
	"time"
)

// An Identity is the minimal description of a user the engine needs to
// label messages and reactions.
type Identity struct {
	ID       string
	Username string
}

// A Member is a conversation participant together with the per-member
// flags the server tracks for them.
type Member struct {
	Identity
	Notifications bool
	Hidden        bool
}

// A Conversation is a group or two-party thread the current user
// belongs to. The owner is always a member, and every moderator is a
// member.
type Conversation struct {
	ID           string
	Name         string
	OwnerID      string
	ModeratorIDs []string
	Members      []Member
	CreatedAt    time.Time

	// LastMessage is the list-preview summary maintained by the
	// engine. It is local display state, not server truth.
	LastMessage *Message
}

// HasMember reports whether userID is a member of the conversation.
func (c *Conversation) HasMember(userID string) bool {
	_, ok := c.Member(userID)
	return ok
}

// Member returns the membership entry for userID.
func (c *Conversation) Member(userID string) (Member, bool) {
	for _, m := range c.Members {
		if m.ID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// IsModerator reports whether userID moderates the conversation. The
// owner counts as a moderator.
func (c *Conversation) IsModerator(userID string) bool {
	if userID == c.OwnerID {
		return true
	}
	for _, id := range c.ModeratorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) removeMember(userID string) {
	for i, m := range c.Members {
		if m.ID == userID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			break
		}
	}
	c.removeModerator(userID)
}

func (c *Conversation) removeModerator(userID string) {
	for i, id := range c.ModeratorIDs {
		if id == userID {
			c.ModeratorIDs = append(c.ModeratorIDs[:i], c.ModeratorIDs[i+1:]...)
			return
		}
	}
}

// A ReplyRef is the snapshot of a replied-to message taken at reply
// time. It survives edits and deletion of the target.
type ReplyRef struct {
	MessageID string
	Content   string
	Author    Identity
}

// A Message is one entry in a conversation. Author is nil for
// system-generated messages. Deleted messages arriving through
// pagination keep their place as tombstones; only a server-confirmed
// removal drops the local copy.
type Message struct {
	ID             string
	ConversationID string
	Author         *Identity
	Content        string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	ReplyTo        *ReplyRef

	// SharedObject references an external post, folder or file. The
	// engine carries it through untouched.
	SharedObject json.RawMessage

	Deleted       bool
	DeletedReason string

	// Reactions maps emoji to the set of reacting user ids. Counts
	// are always derived from set size, never stored.
	Reactions map[string][]string
}

// ReactionCount returns how many users hold emoji on the message.
func (m *Message) ReactionCount(emoji string) int {
	return len(m.Reactions[emoji])
}

// addReaction unions userID into the emoji's set. It reports whether
// the set changed.
func (m *Message) addReaction(emoji, userID string) bool {
	for _, id := range m.Reactions[emoji] {
		if id == userID {
			return false
		}
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return true
}

// removeReaction subtracts userID from the emoji's set. Removing an
// absent entry is a no-op. Empty buckets are dropped.
func (m *Message) removeReaction(emoji, userID string) bool {
	users := m.Reactions[emoji]
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = users
			}
			return true
		}
	}
	return false
}

// before is the message ordering key: creation time, ties broken by id
// for determinism.
func (m *Message) before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// A MessagePage is one page of history fetched from the API.
type MessagePage struct {
	Messages []Message
	HasMore  bool
}

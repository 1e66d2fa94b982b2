package engine

import (
	"context"
	"sort"
)

// CurrentUserReaction returns an emoji on the message whose user set
// contains the current user, or "" if none. Buckets are scanned in
// sorted emoji order so the result is deterministic. The data model
// permits several simultaneous reactions per user; callers must not
// assume exclusivity is enforced here.
func (e *Engine) CurrentUserReaction(messageID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, _, ok := e.findMessageLocked(messageID)
	if !ok {
		return ""
	}
	emojis := make([]string, 0, len(msg.Reactions))
	for emoji := range msg.Reactions {
		emojis = append(emojis, emoji)
	}
	sort.Strings(emojis)
	for _, emoji := range emojis {
		for _, id := range msg.Reactions[emoji] {
			if id == e.userID {
				return emoji
			}
		}
	}
	return ""
}

// ReactionDetails resolves every reacting user id on the message to a
// display identity, preferring identities already known from message
// authorship or conversation membership. Unresolved ids get an
// id-only placeholder.
func (e *Engine) ReactionDetails(messageID string) map[string][]Identity {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, conversationID, ok := e.findMessageLocked(messageID)
	if !ok {
		return nil
	}
	out := make(map[string][]Identity, len(msg.Reactions))
	for emoji, users := range msg.Reactions {
		resolved := make([]Identity, len(users))
		for i, userID := range users {
			if id, ok := e.resolveIdentityLocked(conversationID, userID); ok {
				resolved[i] = id
			} else {
				resolved[i] = Identity{ID: userID}
			}
		}
		out[emoji] = resolved
	}
	return out
}

// resolveIdentityLocked looks a user id up in the conversation's
// membership, then in the authors of buffered messages.
func (e *Engine) resolveIdentityLocked(conversationID, userID string) (Identity, bool) {
	if userID == "" {
		return Identity{}, false
	}
	if conv, ok := e.conversations[conversationID]; ok {
		if m, ok := conv.Member(userID); ok {
			return m.Identity, true
		}
	}
	for _, msg := range e.messages[conversationID] {
		if msg.Author != nil && msg.Author.ID == userID {
			return *msg.Author, true
		}
	}
	return Identity{}, false
}

// AddReaction applies the reaction locally, then confirms it with the
// server. No rollback happens on failure: the next full
// reconciliation is the recovery path.
func (e *Engine) AddReaction(ctx context.Context, messageID, emoji string) {
	e.mu.Lock()
	msg, conversationID, ok := e.findMessageLocked(messageID)
	if !ok {
		e.mu.Unlock()
		return
	}
	if !e.isMemberLocked(conversationID) {
		e.lastErr = notMemberMessage
		e.mu.Unlock()
		return
	}
	msg.addReaction(emoji, e.userID)
	e.mu.Unlock()

	if err := e.client.AddReaction(ctx, messageID, emoji); err != nil {
		e.log.Error("Could not add reaction", "message_id", messageID, "emoji", emoji, "error", err.Error())
		e.setError("Could not add reaction")
	}
}

// RemoveReaction is the inverse of AddReaction, with the same
// optimistic-update contract.
func (e *Engine) RemoveReaction(ctx context.Context, messageID, emoji string) {
	e.mu.Lock()
	msg, conversationID, ok := e.findMessageLocked(messageID)
	if !ok {
		e.mu.Unlock()
		return
	}
	if !e.isMemberLocked(conversationID) {
		e.lastErr = notMemberMessage
		e.mu.Unlock()
		return
	}
	msg.removeReaction(emoji, e.userID)
	e.mu.Unlock()

	if err := e.client.RemoveReaction(ctx, messageID, emoji); err != nil {
		e.log.Error("Could not remove reaction", "message_id", messageID, "emoji", emoji, "error", err.Error())
		e.setError("Could not remove reaction")
	}
}

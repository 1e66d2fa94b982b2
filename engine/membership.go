package engine

import (
	"context"
)

// notMemberMessage is the transient error shown when an operation hits
// a conversation the user no longer belongs to.
const notMemberMessage = "You are no longer a member of this conversation"

// IsMember reports whether the current user belongs to the
// conversation. It is the authoritative local predicate gating page
// loads, sends and history mutations.
func (e *Engine) IsMember(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isMemberLocked(conversationID)
}

func (e *Engine) isMemberLocked(conversationID string) bool {
	conv, ok := e.conversations[conversationID]
	return ok && conv.HasMember(e.userID)
}

// guard checks membership outside an event handler. On failure it
// records the transient error and reports false.
func (e *Engine) guard(conversationID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isMemberLocked(conversationID) {
		return true
	}
	e.log.Warn("Operation blocked without membership", "conversation_id", conversationID)
	e.lastErr = notMemberMessage
	return false
}

// AddMember invites a user to the conversation. The member list is
// updated locally with a minimal identity; the next conversation
// refresh fills in the rest.
func (e *Engine) AddMember(ctx context.Context, conversationID, userID string) {
	if !e.guard(conversationID) {
		return
	}
	if err := e.client.AddMember(ctx, conversationID, userID); err != nil {
		e.log.Error("Could not add member", "conversation_id", conversationID, "user_id", userID, "error", err.Error())
		e.setError("Could not add member")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.conversations[conversationID]
	if !ok || conv.HasMember(userID) {
		return
	}
	conv.Members = append(conv.Members, Member{Identity: Identity{ID: userID}, Notifications: true})
}

// RemoveMember removes another user from the conversation. The owner
// cannot be removed.
func (e *Engine) RemoveMember(ctx context.Context, conversationID, userID string) {
	if !e.guard(conversationID) {
		return
	}
	e.mu.Lock()
	if conv, ok := e.conversations[conversationID]; ok && conv.OwnerID == userID {
		e.lastErr = "The owner cannot be removed"
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.client.RemoveMember(ctx, conversationID, userID); err != nil {
		e.log.Error("Could not remove member", "conversation_id", conversationID, "user_id", userID, "error", err.Error())
		e.setError("Could not remove member")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if conv, ok := e.conversations[conversationID]; ok {
		conv.removeMember(userID)
	}
}

// PromoteModerator grants moderation rights. Only existing members can
// be promoted, preserving the moderators-are-members invariant.
func (e *Engine) PromoteModerator(ctx context.Context, conversationID, userID string) {
	if !e.guard(conversationID) {
		return
	}
	e.mu.Lock()
	conv, ok := e.conversations[conversationID]
	if !ok || !conv.HasMember(userID) {
		e.lastErr = "Only members can be promoted"
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.client.PromoteModerator(ctx, conversationID, userID); err != nil {
		e.log.Error("Could not promote moderator", "conversation_id", conversationID, "user_id", userID, "error", err.Error())
		e.setError("Could not promote moderator")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if conv, ok := e.conversations[conversationID]; ok && !conv.IsModerator(userID) {
		conv.ModeratorIDs = append(conv.ModeratorIDs, userID)
	}
}

// DemoteModerator revokes moderation rights.
func (e *Engine) DemoteModerator(ctx context.Context, conversationID, userID string) {
	if !e.guard(conversationID) {
		return
	}
	if err := e.client.DemoteModerator(ctx, conversationID, userID); err != nil {
		e.log.Error("Could not demote moderator", "conversation_id", conversationID, "user_id", userID, "error", err.Error())
		e.setError("Could not demote moderator")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if conv, ok := e.conversations[conversationID]; ok {
		conv.removeModerator(userID)
	}
}

// Leave exits the conversation and purges all local state for it.
func (e *Engine) Leave(ctx context.Context, conversationID string) {
	if !e.guard(conversationID) {
		return
	}
	if err := e.client.LeaveConversation(ctx, conversationID); err != nil {
		e.log.Error("Could not leave conversation", "conversation_id", conversationID, "error", err.Error())
		e.setError("Could not leave conversation")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.purgeLocked(conversationID)
}

// DeleteConversation deletes a conversation the current user owns and
// purges all local state for it.
func (e *Engine) DeleteConversation(ctx context.Context, conversationID string) {
	if !e.guard(conversationID) {
		return
	}
	e.mu.Lock()
	if conv, ok := e.conversations[conversationID]; ok && conv.OwnerID != e.userID {
		e.lastErr = "Only the owner can delete the conversation"
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.client.DeleteConversation(ctx, conversationID); err != nil {
		e.log.Error("Could not delete conversation", "conversation_id", conversationID, "error", err.Error())
		e.setError("Could not delete conversation")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.purgeLocked(conversationID)
}

// SetNotifications toggles the current user's notification flag for
// the conversation.
func (e *Engine) SetNotifications(ctx context.Context, conversationID string, enabled bool) {
	if !e.guard(conversationID) {
		return
	}
	if err := e.client.SetNotifications(ctx, conversationID, enabled); err != nil {
		e.log.Error("Could not update notifications", "conversation_id", conversationID, "error", err.Error())
		e.setError("Could not update notifications")
		return
	}
	e.setMemberFlag(conversationID, func(m *Member) { m.Notifications = enabled })
}

// SetHidden soft-hides or reveals the conversation for the current
// user without leaving it.
func (e *Engine) SetHidden(ctx context.Context, conversationID string, hidden bool) {
	if !e.guard(conversationID) {
		return
	}
	if err := e.client.SetHidden(ctx, conversationID, hidden); err != nil {
		e.log.Error("Could not update visibility", "conversation_id", conversationID, "error", err.Error())
		e.setError("Could not update visibility")
		return
	}
	e.setMemberFlag(conversationID, func(m *Member) { m.Hidden = hidden })
}

func (e *Engine) setMemberFlag(conversationID string, set func(*Member)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Members {
		if conv.Members[i].ID == e.userID {
			set(&conv.Members[i])
			return
		}
	}
}

package engine

import (
	"context"
)

// outgoingMessage is validated before any create or edit round-trip.
type outgoingMessage struct {
	Content string `validate:"required,max=10000"`
}

// Send posts a message, optionally as a reply to another message. The
// created message folds into the local buffer unless the matching push
// event got there first.
func (e *Engine) Send(ctx context.Context, conversationID, content, replyToID string) {
	if err := e.validate.Struct(outgoingMessage{Content: content}); err != nil {
		e.setError("Message content is empty or too long")
		return
	}
	if !e.guard(conversationID) {
		return
	}

	msg, err := e.client.CreateMessage(ctx, conversationID, content, replyToID)
	if err != nil {
		e.log.Error("Could not send message", "conversation_id", conversationID, "error", err.Error())
		e.setError("Could not send message")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyCreatedLocked(msg)
}

// Edit replaces a message's content. The server's copy wins: the
// response overwrites the local content and update timestamp.
func (e *Engine) Edit(ctx context.Context, messageID, content string) {
	if err := e.validate.Struct(outgoingMessage{Content: content}); err != nil {
		e.setError("Message content is empty or too long")
		return
	}
	e.mu.Lock()
	_, conversationID, ok := e.findMessageLocked(messageID)
	e.mu.Unlock()
	if !ok || !e.guard(conversationID) {
		return
	}

	updated, err := e.client.UpdateMessage(ctx, messageID, content)
	if err != nil {
		e.log.Error("Could not edit message", "message_id", messageID, "error", err.Error())
		e.setError("Could not edit message")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if msg, ok := e.messages[conversationID][messageID]; ok {
		msg.Content = updated.Content
		msg.UpdatedAt = updated.UpdatedAt
	}
}

// Delete removes a message. The server confirms permanent removal, so
// the local copy is dropped rather than tombstoned.
func (e *Engine) Delete(ctx context.Context, messageID string) {
	e.mu.Lock()
	_, conversationID, ok := e.findMessageLocked(messageID)
	e.mu.Unlock()
	if !ok || !e.guard(conversationID) {
		return
	}

	if err := e.client.DeleteMessage(ctx, messageID); err != nil {
		e.log.Error("Could not delete message", "message_id", messageID, "error", err.Error())
		e.setError("Could not delete message")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyDeletedLocked(conversationID, messageID)
}

// DeleteHistory clears the conversation's history server-side, then
// resets the local buffer and pagination state so the next load starts
// from empty.
func (e *Engine) DeleteHistory(ctx context.Context, conversationID string) {
	if !e.guard(conversationID) {
		return
	}
	if err := e.client.DeleteHistory(ctx, conversationID); err != nil {
		e.log.Error("Could not delete history", "conversation_id", conversationID, "error", err.Error())
		e.setError("Could not delete history")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.messages, conversationID)
	delete(e.pages, conversationID)
	if conv, ok := e.conversations[conversationID]; ok {
		conv.LastMessage = nil
	}
}

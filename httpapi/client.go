// Package httpapi implements engine.Client against the conversations
// REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iolipix/jurinapse-sync/engine"
)

// Client talks JSON over HTTP to the backing API.
type Client struct {
	log   *slog.Logger
	base  string
	token string
	http  *http.Client
}

// New builds a client for the API at baseURL, authenticating every
// request with the bearer token.
func New(log *slog.Logger, baseURL, token string) *Client {
	return &Client{
		log:   log,
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListConversations fetches all conversations the user belongs to.
func (c *Client) ListConversations(ctx context.Context) ([]engine.Conversation, error) {
	var res struct {
		Groups []group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/groups", nil, &res); err != nil {
		return nil, err
	}
	out := make([]engine.Conversation, len(res.Groups))
	for i, g := range res.Groups {
		out[i] = g.engineConversation()
	}
	return out, nil
}

// ListMessages fetches one page of a conversation's history.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, pageSize int) (engine.MessagePage, error) {
	var res struct {
		Messages []message `json:"messages"`
		HasMore  bool      `json:"hasMore"`
	}
	path := fmt.Sprintf("/groups/%s/messages?page=%d&limit=%d", url.PathEscape(conversationID), page, pageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return engine.MessagePage{}, err
	}
	out := engine.MessagePage{
		Messages: make([]engine.Message, len(res.Messages)),
		HasMore:  res.HasMore,
	}
	for i, m := range res.Messages {
		out.Messages[i] = m.engineMessage()
	}
	return out, nil
}

// CreateMessage posts a message, optionally as a reply.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content, replyToID string) (engine.Message, error) {
	body := struct {
		Content   string `json:"content"`
		ReplyToID string `json:"replyToId,omitempty"`
	}{Content: content, ReplyToID: replyToID}

	var res message
	path := fmt.Sprintf("/groups/%s/messages", url.PathEscape(conversationID))
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return engine.Message{}, err
	}
	return res.engineMessage(), nil
}

// UpdateMessage replaces a message's content.
func (c *Client) UpdateMessage(ctx context.Context, messageID, content string) (engine.Message, error) {
	body := struct {
		Content string `json:"content"`
	}{Content: content}

	var res message
	if err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), body, &res); err != nil {
		return engine.Message{}, err
	}
	return res.engineMessage(), nil
}

// DeleteMessage permanently removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// AddReaction records the current user's reaction on a message.
func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	body := struct {
		Emoji string `json:"emoji"`
	}{Emoji: emoji}
	path := fmt.Sprintf("/messages/%s/reactions", url.PathEscape(messageID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// RemoveReaction removes the current user's reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	path := fmt.Sprintf("/messages/%s/reactions/%s", url.PathEscape(messageID), url.PathEscape(emoji))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// AddMember invites a user to a conversation.
func (c *Client) AddMember(ctx context.Context, conversationID, userID string) error {
	body := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	path := fmt.Sprintf("/groups/%s/members", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// RemoveMember removes a user from a conversation.
func (c *Client) RemoveMember(ctx context.Context, conversationID, userID string) error {
	path := fmt.Sprintf("/groups/%s/members/%s", url.PathEscape(conversationID), url.PathEscape(userID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// PromoteModerator grants moderation rights to a member.
func (c *Client) PromoteModerator(ctx context.Context, conversationID, userID string) error {
	body := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	path := fmt.Sprintf("/groups/%s/moderators", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// DemoteModerator revokes moderation rights.
func (c *Client) DemoteModerator(ctx context.Context, conversationID, userID string) error {
	path := fmt.Sprintf("/groups/%s/moderators/%s", url.PathEscape(conversationID), url.PathEscape(userID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// LeaveConversation exits a conversation.
func (c *Client) LeaveConversation(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/groups/%s/leave", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DeleteConversation deletes a conversation the user owns.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/groups/"+url.PathEscape(conversationID), nil, nil)
}

// DeleteHistory clears a conversation's message history server-side.
func (c *Client) DeleteHistory(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/groups/%s/messages", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SetNotifications toggles the user's notification flag.
func (c *Client) SetNotifications(ctx context.Context, conversationID string, enabled bool) error {
	body := struct {
		Enabled bool `json:"enabled"`
	}{Enabled: enabled}
	path := fmt.Sprintf("/groups/%s/notifications", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// SetHidden soft-hides or reveals the conversation.
func (c *Client) SetHidden(ctx context.Context, conversationID string, hidden bool) error {
	body := struct {
		Hidden bool `json:"hidden"`
	}{Hidden: hidden}
	path := fmt.Sprintf("/groups/%s/hidden", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPut, path, body, nil)
}

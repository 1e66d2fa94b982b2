// Package socket connects the engine to the live event channel over a
// websocket. It owns the read loop, decodes wire events into engine
// events, and manages per-conversation room subscriptions.
package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/iolipix/jurinapse-sync/engine"
)

// A Channel is one live websocket connection. Listen owns the read
// path; Join and Leave write room frames, serialized by a mutex since
// gorilla connections allow only one concurrent writer.
type Channel struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects to the event stream, authenticating with the bearer
// token when one is given.
func Dial(ctx context.Context, log *slog.Logger, url, token string) (*Channel, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Channel{log: log, conn: conn}, nil
}

// Listen reads frames until the connection drops or ctx is cancelled,
// handing each decoded event to apply. Events reach apply strictly in
// receipt order; undecodable frames are logged and dropped.
func (c *Channel) Listen(ctx context.Context, apply func(engine.Event)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := decodeEvent(env)
		if err != nil {
			c.log.Warn("Dropping undecodable event", "event", env.Event, "error", err.Error())
			continue
		}
		if ev == nil {
			c.log.Debug("Ignoring unknown event", "event", env.Event)
			continue
		}
		apply(ev)
	}
}

type roomFrame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Join subscribes to a conversation's events.
func (c *Channel) Join(conversationID string) {
	c.send(roomFrame{Action: "join-room", Room: conversationID})
}

// Leave unsubscribes from a conversation's events.
func (c *Channel) Leave(conversationID string) {
	c.send(roomFrame{Action: "leave-room", Room: conversationID})
}

func (c *Channel) send(frame roomFrame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		c.log.Error("Could not write room frame", "action", frame.Action, "room", frame.Room, "error", err.Error())
	}
}

// Close tears the connection down.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package realtime implements the persistent-socket channel that pushes
// newly inserted message rows to the client without polling.
//
// The wire protocol is JSON frames {topic, event, payload, ref}. The client
// joins one topic scoped to a single conversation
// (realtime:public:messages:connection_id=eq.<id>), answers with periodic
// heartbeats on the reserved "phoenix" topic, and dispatches INSERT events
// for the joined topic to a callback.
//
// A dropped socket is reconnected with exponential backoff and the join
// frame is re-issued. Events broadcast while the socket was down are lost;
// there is no sequence numbering or replay in the protocol, so consumers
// needing a complete view re-fetch the conversation after a gap.
package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/metrics"
)

// Frame is the realtime wire message.
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// insertPayload is the payload shape of an INSERT event.
type insertPayload struct {
	Record json.RawMessage `json:"record"`
}

// Reserved protocol events.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventHeartbeat = "heartbeat"
	eventInsert    = "INSERT"

	// heartbeatTopic is the reserved topic heartbeats are sent on.
	heartbeatTopic = "phoenix"
)

// MessagesTopic returns the topic for inserts on the messages collection
// scoped to one conversation.
func MessagesTopic(connectionID string) string {
	return "realtime:public:messages:connection_id=eq." + connectionID
}

// Channel is a subscription to one topic over one socket.
//
// Lifecycle: Connecting -> Joining -> Listening, then reconnect (with
// backoff, re-join) on socket failure, until Close or context cancellation.
type Channel struct {
	wsURL string
	topic string
	cfg   config.RealtimeConfig

	conn     *websocket.Conn
	connMu   sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	callbackMu sync.RWMutex
	onInsert   func(record json.RawMessage)

	refCounter atomic.Int64
}

// NewChannel creates a channel for the given topic, not yet connected.
// baseURL is the backend base URL (http/https); the realtime endpoint and
// ws scheme are derived from it.
func NewChannel(baseURL, anonKey, topic string, cfg config.RealtimeConfig) (*Channel, error) {
	wsURL, err := buildSocketURL(baseURL, anonKey)
	if err != nil {
		return nil, err
	}
	return &Channel{
		wsURL:    wsURL,
		topic:    topic,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}, nil
}

// buildSocketURL converts the backend base URL to the realtime websocket
// URL with the application key as a query parameter.
func buildSocketURL(baseURL, anonKey string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/realtime/v1/websocket"

	q := parsed.Query()
	q.Set("apikey", anonKey)
	q.Set("vsn", "1.0.0")
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// OnInsert registers the callback invoked with each inserted record for
// the joined topic. Safe for concurrent use.
func (c *Channel) OnInsert(fn func(record json.RawMessage)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onInsert = fn
}

// Connect opens the socket, joins the topic, and starts the listener and
// heartbeat goroutines. Calling Connect on a connected channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  c.cfg.HandshakeTimeout,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, c.wsURL, nil)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime dial: %w", err)
	}

	if err := c.writeFrame(conn, Frame{
		Topic:   c.topic,
		Event:   eventJoin,
		Payload: json.RawMessage("{}"),
		Ref:     c.nextRef(),
	}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("join topic: %w", err)
	}

	c.conn = conn
	metrics.RealtimeConnects.Inc()
	logging.Info().Str("topic", c.topic).Msg("realtime channel joined")

	c.wg.Add(1)
	go c.listen(ctx)

	c.wg.Add(1)
	go c.heartbeatLoop(ctx, conn)

	return nil
}

// listen reads frames until the channel stops, reconnecting on failure.
//
// Backoff starts at cfg.ReconnectMin, doubles per attempt, caps at
// cfg.ReconnectMax, and resets after any successful read.
func (c *Channel) listen(ctx context.Context) {
	defer c.wg.Done()

	delay := c.cfg.ReconnectMin

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				// Connection lost; wait out the backoff, then redial.
				logging.Warn().
					Str("topic", c.topic).
					Dur("delay", delay).
					Msg("realtime connection lost, reconnecting")
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				case <-c.stopChan:
					return
				}

				delay *= 2
				if delay > c.cfg.ReconnectMax {
					delay = c.cfg.ReconnectMax
				}

				metrics.RealtimeReconnects.Inc()
				if err := c.Connect(ctx); err != nil {
					logging.Error().Err(err).Str("topic", c.topic).Msg("realtime reconnect failed")
					continue
				}
				// Connect started a fresh listener; this one retires.
				return
			}

			if err := conn.SetReadDeadline(time.Now().Add(2 * c.cfg.HeartbeatInterval)); err != nil {
				logging.Debug().Err(err).Msg("realtime set read deadline failed")
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info().Str("topic", c.topic).Msg("realtime socket closed by server")
				} else if ctx.Err() == nil {
					logging.Warn().Err(err).Str("topic", c.topic).Msg("realtime read error")
				}
				c.dropConnection()
				continue
			}

			delay = c.cfg.ReconnectMin
			c.handleFrame(data)
		}
	}
}

// handleFrame parses and dispatches one inbound frame.
func (c *Channel) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logging.Error().Err(err).Msg("realtime frame parse failed")
		return
	}

	metrics.RealtimeEvents.WithLabelValues(frame.Event).Inc()

	switch frame.Event {
	case eventInsert:
		if frame.Topic != c.topic {
			return
		}
		var payload insertPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			logging.Error().Err(err).Msg("realtime insert payload parse failed")
			return
		}
		if payload.Record == nil {
			return
		}
		c.callbackMu.RLock()
		fn := c.onInsert
		c.callbackMu.RUnlock()
		if fn != nil {
			fn(payload.Record)
		}

	case eventReply:
		logging.Debug().Str("topic", frame.Topic).Str("ref", frame.Ref).Msg("realtime reply")

	default:
		// Heartbeat acks and unknown events are ignored.
	}
}

// heartbeatLoop sends a heartbeat frame at the configured interval so the
// server keeps the topic membership alive. Each loop serves exactly one
// socket: when a reconnect replaces conn, the loop retires with it and the
// fresh Connect spawns its successor.
func (c *Channel) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.connMu.RLock()
			current := c.conn
			c.connMu.RUnlock()
			if current != conn {
				return
			}

			err := c.writeFrame(conn, Frame{
				Topic:   heartbeatTopic,
				Event:   eventHeartbeat,
				Payload: json.RawMessage("{}"),
				Ref:     c.nextRef(),
			})
			if err != nil {
				logging.Warn().Err(err).Str("topic", c.topic).Msg("realtime heartbeat failed")
				c.dropConnection()
				return
			}
		}
	}
}

// writeFrame sends one frame with a write deadline.
func (c *Channel) writeFrame(conn *websocket.Conn, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dropConnection closes the socket so the listener's reconnect path takes
// over. Safe for concurrent calls.
func (c *Channel) dropConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close unsubscribes: sends a leave frame best-effort, cancels the
// heartbeat, closes the socket, and waits for goroutines to finish.
// The server garbage-collects the topic membership.
func (c *Channel) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.writeFrame(c.conn, Frame{
				Topic:   c.topic,
				Event:   eventLeave,
				Payload: json.RawMessage("{}"),
				Ref:     c.nextRef(),
			})
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.wg.Wait()
		logging.Info().Str("topic", c.topic).Msg("realtime channel closed")
	})
	return nil
}

// IsConnected reports whether the socket is currently open.
func (c *Channel) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// Serve implements the supervised-service pattern: connect, then block
// until the context is canceled, closing the channel on the way out.
func (c *Channel) Serve(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.stopChan:
	}
	_ = c.Close()
	return ctx.Err()
}

// nextRef returns a monotonically increasing frame ref.
func (c *Channel) nextRef() string {
	return strconv.FormatInt(c.refCounter.Add(1), 10)
}

// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/coachess/coachess/internal/logging"
)

// frame mirrors the realtime wire message.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// Hub fans inserted rows out to sockets joined to matching topics.
type Hub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

// hubClient is one connected socket with its joined topics.
type hubClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.RWMutex
	topics map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]struct{})}
}

func (h *Hub) add(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// BroadcastInsert delivers an INSERT event for a collection row to every
// socket whose joined topic filter matches the row.
func (h *Hub) BroadcastInsert(collection string, row Row) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":   "INSERT",
		"table":  collection,
		"record": row,
	})
	if err != nil {
		logging.Error().Err(err).Msg("realtime broadcast encode failed")
		return
	}

	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		for _, topic := range c.joinedTopics() {
			if !topicMatches(topic, collection, row) {
				continue
			}
			c.send(frame{Topic: topic, Event: "INSERT", Payload: payload})
		}
	}
}

// topicMatches checks a topic of the form
// realtime:public:<collection>:<column>=eq.<value> against a row. A topic
// without a filter suffix matches every row of the collection.
func topicMatches(topic, collection string, row Row) bool {
	prefix := "realtime:public:" + collection
	if topic == prefix {
		return true
	}
	filter, found := strings.CutPrefix(topic, prefix+":")
	if !found {
		return false
	}
	column, value, found := strings.Cut(filter, "=eq.")
	if !found {
		return false
	}
	return stringField(row, column) == value
}

func (c *hubClient) joinedTopics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}

func (c *hubClient) join(topic string) {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *hubClient) leave(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// send writes one frame, serialized against concurrent broadcasts.
func (c *hubClient) send(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		logging.Error().Err(err).Msg("realtime frame encode failed")
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Debug().Err(err).Msg("realtime write failed")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local development surface; the apikey query parameter is the only gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRealtime upgrades the socket and serves the join/heartbeat/event
// protocol until the peer disconnects.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("apikey") == "" {
		http.Error(w, "missing apikey", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("realtime upgrade failed")
		return
	}

	client := &hubClient{conn: conn, topics: make(map[string]struct{})}
	s.hub.add(client)
	defer func() {
		s.hub.remove(client)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Err(err).Msg("realtime read ended")
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logging.Debug().Err(err).Msg("realtime bad frame")
			continue
		}

		switch f.Event {
		case "phx_join":
			client.join(f.Topic)
			client.send(replyFrame(f, "ok"))
		case "phx_leave":
			client.leave(f.Topic)
			client.send(replyFrame(f, "ok"))
		case "heartbeat":
			client.send(replyFrame(f, "ok"))
		default:
			logging.Debug().Str("event", f.Event).Msg("realtime unknown event")
		}
	}
}

// replyFrame builds the phx_reply acknowledging a client frame.
func replyFrame(in frame, status string) frame {
	payload, _ := json.Marshal(map[string]interface{}{
		"status":   status,
		"response": map[string]interface{}{},
	})
	return frame{Topic: in.Topic, Event: "phx_reply", Payload: payload, Ref: in.Ref}
}

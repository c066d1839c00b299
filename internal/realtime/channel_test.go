// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/coachess/coachess/internal/config"
)

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		ReconnectMin:      10 * time.Millisecond,
		ReconnectMax:      100 * time.Millisecond,
	}
}

func TestBuildSocketURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			"https becomes wss",
			"https://backend.example.com",
			"wss://backend.example.com/realtime/v1/websocket?apikey=key-1&vsn=1.0.0",
		},
		{
			"http becomes ws",
			"http://localhost:8765",
			"ws://localhost:8765/realtime/v1/websocket?apikey=key-1&vsn=1.0.0",
		},
		{
			"existing path replaced",
			"https://backend.example.com/rest/v1",
			"wss://backend.example.com/realtime/v1/websocket?apikey=key-1&vsn=1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSocketURL(tt.baseURL, "key-1")
			checkNoError(t, err)
			checkStringEqual(t, "url", got, tt.want)
		})
	}
}

func TestMessagesTopic(t *testing.T) {
	got := MessagesTopic("conn-42")
	checkStringEqual(t, "topic", got, "realtime:public:messages:connection_id=eq.conn-42")
}

func TestHandleFrameDispatch(t *testing.T) {
	ch := &Channel{topic: MessagesTopic("conn-1"), stopChan: make(chan struct{})}

	var got []string
	ch.OnInsert(func(record json.RawMessage) {
		got = append(got, string(record))
	})

	// Matching topic reaches the callback.
	ch.handleFrame([]byte(`{
		"topic": "realtime:public:messages:connection_id=eq.conn-1",
		"event": "INSERT",
		"payload": {"record": {"id": "msg-1"}},
		"ref": ""
	}`))
	// Foreign topic, reply, malformed frame, and missing record do not.
	ch.handleFrame([]byte(`{
		"topic": "realtime:public:messages:connection_id=eq.other",
		"event": "INSERT",
		"payload": {"record": {"id": "msg-2"}},
		"ref": ""
	}`))
	ch.handleFrame([]byte(`{"topic": "phoenix", "event": "phx_reply", "payload": {}, "ref": "1"}`))
	ch.handleFrame([]byte(`not json`))
	ch.handleFrame([]byte(`{
		"topic": "realtime:public:messages:connection_id=eq.conn-1",
		"event": "INSERT",
		"payload": {},
		"ref": ""
	}`))

	if len(got) != 1 {
		t.Fatalf("expected 1 dispatched record, got %d", len(got))
	}
	checkStringEqual(t, "record", got[0], `{"id": "msg-1"}`)
}

// TestChannelJoinAndInsert runs a real socket round trip: the server
// acks the join, then pushes an INSERT that must reach the callback.
func TestChannelJoinAndInsert(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	topic := MessagesTopic("conn-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") == "" {
			t.Error("expected apikey query parameter")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		var join Frame
		if err := conn.ReadJSON(&join); err != nil {
			t.Errorf("read join: %v", err)
			return
		}
		if join.Event != "phx_join" || join.Topic != topic {
			t.Errorf("expected phx_join for %s, got %s %s", topic, join.Event, join.Topic)
		}

		_ = conn.WriteJSON(Frame{
			Topic:   topic,
			Event:   "phx_reply",
			Payload: json.RawMessage(`{"status":"ok","response":{}}`),
			Ref:     join.Ref,
		})
		_ = conn.WriteJSON(Frame{
			Topic:   topic,
			Event:   "INSERT",
			Payload: json.RawMessage(`{"record":{"id":"msg-1","body":"hello"}}`),
		})

		// Hold the socket open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ch, err := NewChannel(server.URL, "test-anon-key", topic, testRealtimeConfig())
	checkNoError(t, err)

	records := make(chan string, 1)
	ch.OnInsert(func(record json.RawMessage) {
		records <- string(record)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	checkNoError(t, ch.Connect(ctx))
	defer func() { _ = ch.Close() }()

	if !ch.IsConnected() {
		t.Fatal("expected channel to report connected")
	}

	select {
	case record := <-records:
		if !strings.Contains(record, `"id":"msg-1"`) {
			t.Errorf("unexpected record: %s", record)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for insert")
	}
}

// TestHeartbeatSingleSenderAfterReconnects drops the first two connections
// to force reconnects, then counts heartbeat frames on the surviving socket.
// With one sender per live socket the count stays near one per interval;
// stacked senders from earlier connections would multiply it.
func TestHeartbeatSingleSenderAfterReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	topic := MessagesTopic("conn-1")

	var dials atomic.Int64
	var heartbeats atomic.Int64
	surviving := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var join Frame
		if err := conn.ReadJSON(&join); err != nil {
			return
		}

		n := dials.Add(1)
		if n <= 2 {
			return
		}

		_ = conn.WriteJSON(Frame{
			Topic:   topic,
			Event:   "phx_reply",
			Payload: json.RawMessage(`{"status":"ok","response":{}}`),
			Ref:     join.Ref,
		})
		if n == 3 {
			close(surviving)
		}

		// Ack heartbeats so the client's read deadline keeps advancing.
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Event == "heartbeat" {
				heartbeats.Add(1)
				_ = conn.WriteJSON(Frame{
					Topic:   "phoenix",
					Event:   "phx_reply",
					Payload: json.RawMessage(`{"status":"ok","response":{}}`),
					Ref:     frame.Ref,
				})
			}
		}
	}))
	defer server.Close()

	cfg := testRealtimeConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond

	ch, err := NewChannel(server.URL, "test-anon-key", topic, cfg)
	checkNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	checkNoError(t, ch.Connect(ctx))
	defer func() { _ = ch.Close() }()

	select {
	case <-surviving:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the surviving connection")
	}

	time.Sleep(5 * cfg.HeartbeatInterval)
	got := heartbeats.Load()
	if got < 1 || got > 8 {
		t.Fatalf("expected about one heartbeat per interval over 5 intervals, got %d", got)
	}
}

// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package coaching

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/coachess/coachess/internal/backend"
	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/metrics"
	"github.com/coachess/coachess/internal/realtime"
	"github.com/coachess/coachess/internal/session"
)

// MessageService manages direct messages under a connection, including the
// live subscription path.
type MessageService struct {
	resource    backend.Resource
	sessions    *session.Manager
	backendCfg  config.BackendConfig
	realtimeCfg config.RealtimeConfig
}

// NewMessageService creates a message service.
func NewMessageService(
	resource backend.Resource,
	sessions *session.Manager,
	backendCfg config.BackendConfig,
	realtimeCfg config.RealtimeConfig,
) *MessageService {
	return &MessageService{
		resource:    resource,
		sessions:    sessions,
		backendCfg:  backendCfg,
		realtimeCfg: realtimeCfg,
	}
}

// Send appends a message to a connection as the current user. The body is
// trimmed and must be non-empty.
func (s *MessageService) Send(ctx context.Context, connectionID, body string) (*Message, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("message body cannot be empty")
	}

	record := map[string]interface{}{
		"connection_id": connectionID,
		"sender_id":     sess.User.ID,
		"body":          body,
	}

	var created Message
	if err := s.resource.Insert(ctx, "messages", record, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// List returns all messages in a connection in creation order.
func (s *MessageService) List(ctx context.Context, connectionID string) ([]Message, error) {
	var rows []Message
	q := backend.NewQuery().Eq("connection_id", connectionID).OrderAsc("created_at")
	if err := s.resource.Get(ctx, "messages", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UnreadCount counts messages in a connection sent by the other party.
// There is no per-message read receipt; this is the peer's message total.
func (s *MessageService) UnreadCount(ctx context.Context, connectionID string) (int, error) {
	sess, err := s.sessions.Require()
	if err != nil {
		return 0, err
	}
	q := backend.NewQuery().
		Eq("connection_id", connectionID).
		Neq("sender_id", sess.User.ID).
		Select("id")
	return s.resource.Count(ctx, "messages", q)
}

// Delete removes a message the current user sent. Ownership is verified
// first so a foreign id fails with a real error instead of a silent
// zero-row delete under the server's policies.
func (s *MessageService) Delete(ctx context.Context, messageID string) error {
	sess, err := s.sessions.Require()
	if err != nil {
		return err
	}

	var rows []Message
	q := backend.NewQuery().Eq("id", messageID).Eq("sender_id", sess.User.ID)
	if err := s.resource.Get(ctx, "messages", q, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("message not found or not yours to delete")
	}

	return s.resource.Delete(ctx, "messages", backend.NewQuery().Eq("id", messageID))
}

// Subscribe opens a live feed of messages for one connection. The feed
// owns duplicate suppression: optimistic local appends and their realtime
// echoes collapse to one delivery per message id. Close the feed to
// unsubscribe.
func (s *MessageService) Subscribe(connectionID string) (*Feed, error) {
	channel, err := realtime.NewChannel(
		s.backendCfg.URL,
		s.backendCfg.AnonKey,
		realtime.MessagesTopic(connectionID),
		s.realtimeCfg,
	)
	if err != nil {
		return nil, err
	}

	feed := newFeed(channel)
	channel.OnInsert(func(record json.RawMessage) {
		var msg Message
		if err := json.Unmarshal(record, &msg); err != nil {
			logging.Error().Err(err).Msg("message record parse failed")
			return
		}
		feed.deliver(msg)
	})

	return feed, nil
}

// Feed is a deduplicated stream of messages for one connection.
//
// All paths that can produce a message (initial fetch via Prime, optimistic
// append via Append, realtime echo) funnel through one id check, so no
// consumer has to remember to check for an existing id before rendering.
type Feed struct {
	channel *realtime.Channel

	mu     sync.Mutex
	seen   map[string]struct{}
	out    chan Message
	closed bool
}

const feedBuffer = 64

func newFeed(channel *realtime.Channel) *Feed {
	return &Feed{
		channel: channel,
		seen:    make(map[string]struct{}),
		out:     make(chan Message, feedBuffer),
	}
}

// Channel returns the underlying realtime channel, e.g. to hand to a
// supervisor for reconnect-on-failure.
func (f *Feed) Channel() *realtime.Channel {
	return f.channel
}

// Connect opens the socket directly, for callers not running the channel
// under a supervisor.
func (f *Feed) Connect(ctx context.Context) error {
	return f.channel.Connect(ctx)
}

// Messages is the stream of deduplicated messages. Closed when the feed
// closes.
func (f *Feed) Messages() <-chan Message {
	return f.out
}

// Prime marks already-rendered messages as seen so the realtime echo of a
// freshly fetched history does not duplicate it.
func (f *Feed) Prime(messages []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range messages {
		f.seen[messages[i].ID] = struct{}{}
	}
}

// Append records an optimistic local append and delivers it if unseen.
func (f *Feed) Append(msg Message) {
	f.deliver(msg)
}

// deliver forwards msg exactly once per id. An overflowing consumer drops
// the newest message rather than blocking the socket read loop.
func (f *Feed) deliver(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if _, dup := f.seen[msg.ID]; dup {
		metrics.RealtimeDuplicatesDropped.Inc()
		return
	}
	f.seen[msg.ID] = struct{}{}

	select {
	case f.out <- msg:
	default:
		logging.Warn().Str("message_id", msg.ID).Msg("feed consumer too slow, dropping message")
	}
}

// Close unsubscribes and closes the message stream.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.out)
	f.mu.Unlock()

	return f.channel.Close()
}

// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

/*
rest.go - Resource endpoint client

One authenticated operation per call against a named remote collection
(users, content, connections, assignments, messages) at /rest/v1. The
client attaches two credentials to every request: the static application
key (apikey header) and the signed-in user's bearer token. Authorization
decisions are entirely server-side row-level policies; this client
performs none.

On a 401 the client refreshes the session once through the session manager
and retries the request with the new token, so a long-lived process is not
forced back to the login prompt when its access token expires mid-flight.
*/

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/logging"
	"github.com/coachess/coachess/internal/metrics"
	"github.com/coachess/coachess/internal/session"
)

// Resource is the interface for one-shot operations against named remote
// collections. Both Client and BreakerClient implement it.
type Resource interface {
	// Get fetches rows matching q into out (a pointer to a slice).
	Get(ctx context.Context, collection string, q *Query, out interface{}) error

	// GetAnonymous fetches without a bearer token. Used for reads the
	// backend exposes to unauthenticated callers (invite token lookup).
	GetAnonymous(ctx context.Context, collection string, q *Query, out interface{}) error

	// Insert creates a row. When out is non-nil the created representation
	// is requested and decoded into it; otherwise a minimal acknowledgement
	// is accepted.
	Insert(ctx context.Context, collection string, record, out interface{}) error

	// Update applies a partial update to rows matching q. Representation
	// handling follows Insert.
	Update(ctx context.Context, collection string, q *Query, changes, out interface{}) error

	// Delete removes rows matching q.
	Delete(ctx context.Context, collection string, q *Query) error

	// Count returns the exact number of rows matching q without
	// transferring them.
	Count(ctx context.Context, collection string, q *Query) (int, error)
}

// Ensure Client implements Resource.
var _ Resource = (*Client)(nil)

// Client is the direct (unwrapped) resource endpoint client.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	sessions   *session.Manager
}

// NewClient creates a resource client for the backend described by cfg,
// signing requests through the given session manager.
func NewClient(cfg config.BackendConfig, sessions *session.Manager) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/") + "/rest/v1",
		anonKey: cfg.AnonKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		sessions: sessions,
	}
}

// Get fetches rows matching q into out.
func (c *Client) Get(ctx context.Context, collection string, q *Query, out interface{}) error {
	body, _, err := c.roundTrip(ctx, http.MethodGet, collection, q, nil, "", true, nil)
	if err != nil {
		return err
	}
	return decodeRows(collection, body, out)
}

// GetAnonymous fetches rows without attaching a bearer token.
func (c *Client) GetAnonymous(ctx context.Context, collection string, q *Query, out interface{}) error {
	body, _, err := c.roundTrip(ctx, http.MethodGet, collection, q, nil, "", false, nil)
	if err != nil {
		return err
	}
	return decodeRows(collection, body, out)
}

// Insert creates a row in collection.
func (c *Client) Insert(ctx context.Context, collection string, record, out interface{}) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s insert: %w", collection, err)
	}
	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}
	body, _, err := c.roundTrip(ctx, http.MethodPost, collection, nil, payload, prefer, true, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeFirstRow(collection, body, out)
}

// Update applies a partial update to rows matching q.
func (c *Client) Update(ctx context.Context, collection string, q *Query, changes, out interface{}) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode %s update: %w", collection, err)
	}
	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}
	body, _, err := c.roundTrip(ctx, http.MethodPatch, collection, q, payload, prefer, true, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeFirstRow(collection, body, out)
}

// Delete removes rows matching q.
func (c *Client) Delete(ctx context.Context, collection string, q *Query) error {
	_, _, err := c.roundTrip(ctx, http.MethodDelete, collection, q, nil, "", true, nil)
	return err
}

// Count returns the exact number of rows matching q. No row data is
// transferred: the request asks for a zero-length range with an exact
// count, and the total comes back in the Content-Range header.
func (c *Client) Count(ctx context.Context, collection string, q *Query) (int, error) {
	extra := http.Header{}
	extra.Set("Range", "0-0")
	_, header, err := c.roundTrip(ctx, http.MethodGet, collection, q, nil, "count=exact", true, extra)
	if err != nil {
		return 0, err
	}
	return parseContentRangeTotal(header.Get("Content-Range"))
}

// roundTrip performs one operation, handling authentication, the
// refresh-on-401 retry, error body parsing, and metrics.
func (c *Client) roundTrip(
	ctx context.Context,
	method, collection string,
	q *Query,
	payload []byte,
	prefer string,
	authed bool,
	extra http.Header,
) ([]byte, http.Header, error) {
	start := time.Now()
	operation := strings.ToLower(method)

	token := ""
	if authed {
		s, err := c.sessions.Require()
		if err != nil {
			// Fails before any network attempt.
			return nil, nil, err
		}
		token = s.AccessToken
	}

	status, header, body, err := c.send(ctx, method, collection, q, payload, prefer, token, extra)
	if err != nil {
		metrics.ResourceRequestErrors.WithLabelValues(collection, operation, "transport").Inc()
		return nil, nil, err
	}

	// An expired-but-present token comes back as 401. Refresh once and
	// retry with the new token; a second 401 surfaces as-is.
	if status == http.StatusUnauthorized && authed {
		fresh, refreshErr := c.sessions.Refresh(ctx)
		if refreshErr != nil {
			metrics.ResourceTokenRefreshes.WithLabelValues("failure").Inc()
			if errors.Is(refreshErr, session.ErrNotAuthenticated) {
				return nil, nil, session.ErrNotAuthenticated
			}
			return nil, nil, newRequestError(status, body)
		}
		metrics.ResourceTokenRefreshes.WithLabelValues("success").Inc()
		logging.Debug().Str("collection", collection).Msg("retrying request with refreshed token")

		status, header, body, err = c.send(ctx, method, collection, q, payload, prefer, fresh.AccessToken, extra)
		if err != nil {
			metrics.ResourceRequestErrors.WithLabelValues(collection, operation, "transport").Inc()
			return nil, nil, err
		}
	}

	metrics.ResourceRequestDuration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())

	if status < 200 || status >= 300 {
		metrics.ResourceRequestErrors.WithLabelValues(collection, operation, strconv.Itoa(status)).Inc()
		return nil, nil, newRequestError(status, body)
	}
	return body, header, nil
}

// send issues a single HTTP request and reads the full response.
func (c *Client) send(
	ctx context.Context,
	method, collection string,
	q *Query,
	payload []byte,
	prefer, token string,
	extra http.Header,
) (int, http.Header, []byte, error) {
	fullURL := c.baseURL + "/" + collection
	if encoded := q.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("create %s request: %w", collection, err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, vals := range extra {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s request failed: %w", collection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read %s response: %w", collection, err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// decodeRows decodes a JSON array response into out.
func decodeRows(collection string, body []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", collection, err)
	}
	return nil
}

// decodeFirstRow decodes the first element of a JSON array response into
// out. Write operations with return=representation come back as a
// single-element array.
func decodeFirstRow(collection string, body []byte, out interface{}) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("decode %s response: %w", collection, err)
	}
	if len(rows) == 0 {
		return &RequestError{
			Status:  http.StatusOK,
			Message: fmt.Sprintf("%s write affected no rows", collection),
		}
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return fmt.Errorf("decode %s row: %w", collection, err)
	}
	return nil
}

// parseContentRangeTotal extracts the total from a Content-Range header
// value such as "0-0/42" or "*/42".
func parseContentRangeTotal(value string) (int, error) {
	idx := strings.LastIndex(value, "/")
	if idx < 0 || idx == len(value)-1 {
		return 0, fmt.Errorf("missing total in Content-Range %q", value)
	}
	total, err := strconv.Atoi(value[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("parse Content-Range total %q: %w", value, err)
	}
	return total, nil
}

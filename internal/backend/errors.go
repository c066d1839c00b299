// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// AuthError indicates the identity endpoint rejected credentials or a
// registration attempt.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// RateLimitedError indicates the identity endpoint is throttling the caller.
// Classified primarily by HTTP 429; the message-substring check remains as a
// fallback for proxies that rewrite status codes.
type RateLimitedError struct {
	Message string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// RequestError indicates a non-2xx response from the resource endpoint.
// Message carries the server's error body message when one could be parsed,
// or a generic fallback including the status code.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// errorBody is the JSON error shape returned by the backend. Different
// endpoints populate different fields; firstMessage picks in the order the
// backend is observed to prefer them.
type errorBody struct {
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Err              string `json:"error"`
	Hint             string `json:"hint"`
	Code             string `json:"code"`
}

func (b *errorBody) firstMessage() string {
	for _, m := range []string{b.Message, b.ErrorDescription, b.Msg, b.Err, b.Hint} {
		if m != "" {
			return m
		}
	}
	return ""
}

// parseErrorMessage extracts the server's error message from a response
// body, falling back to a generic message when the body is empty or not
// valid JSON.
func parseErrorMessage(status int, body []byte) string {
	var eb errorBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &eb); err == nil {
			if m := eb.firstMessage(); m != "" {
				return m
			}
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// newIdentityError classifies a non-2xx identity endpoint response.
func newIdentityError(status int, body []byte) error {
	message := parseErrorMessage(status, body)

	if status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(message), "rate limit") {
		return &RateLimitedError{Message: message}
	}
	return &AuthError{Status: status, Message: message}
}

// newRequestError builds the error for a non-2xx resource endpoint response.
func newRequestError(status int, body []byte) error {
	return &RequestError{Status: status, Message: parseErrorMessage(status, body)}
}

// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package backend

import (
	"net/url"
	"strconv"
	"strings"
)

// Query builds the filter, ordering, selection, and paging parameters of a
// resource request. The client forwards the encoded parameters verbatim;
// their interpretation (and authorization) is entirely server-side.
//
//	q := backend.NewQuery().
//	    Eq("connection_id", id).
//	    OrderAsc("created_at")
type Query struct {
	filters [][2]string // column -> op.value, in insertion order
	order   []string
	sel     string
	limit   int
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{limit: -1}
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column, value string) *Query {
	return q.Filter(column, "eq", value)
}

// Neq filters rows where column does not equal value.
func (q *Query) Neq(column, value string) *Query {
	return q.Filter(column, "neq", value)
}

// Ilike filters rows where column matches the pattern case-insensitively.
// The pattern uses * as wildcard, e.g. Ilike("title", "*fork*").
func (q *Query) Ilike(column, pattern string) *Query {
	return q.Filter(column, "ilike", pattern)
}

// Filter adds an arbitrary operator filter (column=op.value).
func (q *Query) Filter(column, op, value string) *Query {
	q.filters = append(q.filters, [2]string{column, op + "." + value})
	return q
}

// OrderAsc sorts results by column ascending.
func (q *Query) OrderAsc(column string) *Query {
	q.order = append(q.order, column+".asc")
	return q
}

// OrderDesc sorts results by column descending.
func (q *Query) OrderDesc(column string) *Query {
	q.order = append(q.order, column+".desc")
	return q
}

// Select sets the field selection / relation expansion expression,
// e.g. "*,coach:users!coach_id(*),player:users!player_id(*)".
func (q *Query) Select(expr string) *Query {
	q.sel = expr
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Encode renders the query string (without leading "?").
func (q *Query) Encode() string {
	if q == nil {
		return ""
	}
	values := url.Values{}
	for _, f := range q.filters {
		values.Add(f[0], f[1])
	}
	if len(q.order) > 0 {
		values.Set("order", strings.Join(q.order, ","))
	}
	if q.sel != "" {
		values.Set("select", q.sel)
	}
	if q.limit >= 0 {
		values.Set("limit", strconv.Itoa(q.limit))
	}
	return values.Encode()
}

// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// Query parameter names that are not column filters.
var reservedParams = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
}

// restRequest is one parsed REST call.
type restRequest struct {
	collection string
	filters    []Filter
	order      *Order
	limit      int
	selectExpr string
	prefer     map[string]bool
	countExact bool
}

// parseRestRequest extracts collection, filters, ordering, and Prefer
// semantics from the request.
func parseRestRequest(r *http.Request) (*restRequest, error) {
	req := &restRequest{
		collection: chi.URLParam(r, "collection"),
		limit:      -1,
		selectExpr: "*",
		prefer:     make(map[string]bool),
	}

	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case "select":
			req.selectExpr = value
		case "order":
			req.order = parseOrder(value)
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid limit %q", value)
			}
			req.limit = n
		default:
			if reservedParams[key] {
				continue
			}
			f, err := parseFilter(key, value)
			if err != nil {
				return nil, err
			}
			req.filters = append(req.filters, f)
		}
	}

	for _, token := range strings.Split(r.Header.Get("Prefer"), ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			req.prefer[token] = true
		}
	}
	req.countExact = req.prefer["count=exact"]

	return req, nil
}

func parseFilter(column, value string) (Filter, error) {
	op, operand, found := strings.Cut(value, ".")
	if !found {
		return Filter{}, fmt.Errorf("filter %s=%s has no operator", column, value)
	}
	switch op {
	case "eq", "neq", "ilike":
		return Filter{Column: column, Op: op, Value: operand}, nil
	}
	return Filter{}, fmt.Errorf("unsupported filter operator %q", op)
}

// parseOrder accepts "column", "column.asc", or "column.desc". Only the
// first order term is honored.
func parseOrder(value string) *Order {
	first, _, _ := strings.Cut(value, ",")
	column, direction, _ := strings.Cut(first, ".")
	return &Order{Column: column, Descending: direction == "desc"}
}

// handleRestGet serves filtered reads, including count=exact headcounts.
func (s *Server) handleRestGet(w http.ResponseWriter, r *http.Request) {
	req, err := parseRestRequest(r)
	if err != nil {
		writeRestError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.store.Select(req.collection, req.filters, req.order, req.limit)
	if err != nil {
		writeRestError(w, http.StatusNotFound, err.Error())
		return
	}

	if req.countExact {
		total, _ := s.store.Count(req.collection, req.filters)
		upper := len(rows) - 1
		if upper < 0 {
			upper = 0
		}
		w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", upper, total))
	}

	s.writeRows(w, http.StatusOK, req, rows)
}

// handleRestPost inserts one row. Message inserts are fanned out to the
// realtime hub after commit.
func (s *Server) handleRestPost(w http.ResponseWriter, r *http.Request) {
	req, err := parseRestRequest(r)
	if err != nil {
		writeRestError(w, http.StatusBadRequest, err.Error())
		return
	}

	var row Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeRestError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.store.Insert(req.collection, row)
	if err != nil {
		writeRestError(w, http.StatusNotFound, err.Error())
		return
	}

	if req.collection == "messages" {
		s.hub.BroadcastInsert("messages", created)
	}

	if req.prefer["return=representation"] {
		s.writeRows(w, http.StatusCreated, req, []Row{created})
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleRestPatch updates rows by filter.
func (s *Server) handleRestPatch(w http.ResponseWriter, r *http.Request) {
	req, err := parseRestRequest(r)
	if err != nil {
		writeRestError(w, http.StatusBadRequest, err.Error())
		return
	}

	var changes Row
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeRestError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.store.Update(req.collection, req.filters, changes)
	if err != nil {
		writeRestError(w, http.StatusNotFound, err.Error())
		return
	}

	if req.prefer["return=representation"] {
		s.writeRows(w, http.StatusOK, req, updated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestDelete removes rows by filter.
func (s *Server) handleRestDelete(w http.ResponseWriter, r *http.Request) {
	req, err := parseRestRequest(r)
	if err != nil {
		writeRestError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.Delete(req.collection, req.filters); err != nil {
		writeRestError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeRows applies select expansion and writes the JSON array response.
func (s *Server) writeRows(w http.ResponseWriter, status int, req *restRequest, rows []Row) {
	expanded := make([]Row, 0, len(rows))
	for _, row := range rows {
		expanded = append(expanded, s.applySelect(row, req.selectExpr))
	}
	writeJSON(w, status, expanded)
}

// applySelect projects the row through the select expression, resolving
// related-record expansions of the forms "content(*)" and
// "alias:users!fk_column(*)". A plain column list projects those columns.
func (s *Server) applySelect(row Row, selectExpr string) Row {
	if selectExpr == "" || selectExpr == "*" {
		return row
	}

	out := make(Row)
	for _, part := range splitSelect(selectExpr) {
		switch {
		case part == "*":
			for k, v := range row {
				out[k] = v
			}

		case strings.Contains(part, "("):
			name, _, _ := strings.Cut(part, "(")
			alias := name
			target := name
			fk := ""
			if a, rest, found := strings.Cut(name, ":"); found {
				alias = a
				target = rest
				if t, f, hasFK := strings.Cut(rest, "!"); hasFK {
					target = t
					fk = f
				}
			}
			if fk == "" {
				fk = target + "_id"
			}
			if related := s.store.Lookup(target, "id", stringField(row, fk)); related != nil {
				out[alias] = related
			} else {
				out[alias] = nil
			}

		default:
			if v, ok := row[part]; ok {
				out[part] = v
			}
		}
	}
	return out
}

// splitSelect splits a select expression on commas outside parentheses.
func splitSelect(expr string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range expr {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

// writeRestError writes the resource endpoint's error body shape.
func writeRestError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"message": message})
}

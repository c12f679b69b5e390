package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query builds a single PostgREST table request. Filters compose in call
// order; the terminal Do sends the request.
type Query struct {
	client  *Client
	table   string
	method  string
	body    any
	columns string
	filters url.Values
	order   string
	limit   int
	single  bool
	prefers []string
}

func (q *Query) addFilter(column, op string, value any) *Query {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("%s.%v", op, value))
	return q
}

// Select reads rows, returning the named columns ("*" for all).
func (q *Query) Select(columns string) *Query {
	q.method = http.MethodGet
	q.columns = columns
	return q
}

// Insert writes a new row and returns its representation.
func (q *Query) Insert(row any) *Query {
	q.method = http.MethodPost
	q.body = row
	q.prefers = append(q.prefers, "return=representation")
	return q
}

// Upsert inserts or merges on conflict, returning the representation.
func (q *Query) Upsert(row any) *Query {
	q.method = http.MethodPost
	q.body = row
	q.prefers = append(q.prefers, "resolution=merge-duplicates", "return=representation")
	return q
}

// Update patches the rows matched by the filters.
func (q *Query) Update(changes any) *Query {
	q.method = http.MethodPatch
	q.body = changes
	q.prefers = append(q.prefers, "return=representation")
	return q
}

// Delete removes the rows matched by the filters.
func (q *Query) Delete() *Query {
	q.method = http.MethodDelete
	q.prefers = append(q.prefers, "return=representation")
	return q
}

// Eq filters on column equality.
func (q *Query) Eq(column string, value any) *Query { return q.addFilter(column, "eq", value) }

// Neq filters on column inequality.
func (q *Query) Neq(column string, value any) *Query { return q.addFilter(column, "neq", value) }

// Lt filters on column < value.
func (q *Query) Lt(column string, value any) *Query { return q.addFilter(column, "lt", value) }

// Gt filters on column > value.
func (q *Query) Gt(column string, value any) *Query { return q.addFilter(column, "gt", value) }

// Gte filters on column >= value.
func (q *Query) Gte(column string, value any) *Query { return q.addFilter(column, "gte", value) }

// Order sorts results by the column. Repeated calls compose, earlier
// columns sorting first.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	expr := column + "." + dir
	if q.order != "" {
		q.order += "," + expr
	} else {
		q.order = expr
	}
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Single asks for exactly one row as a bare object instead of an array.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

// Do sends the query. Backend-reported errors land in the Result; only
// transport failures come back as a Go error.
func (q *Query) Do(ctx context.Context) (*Result, error) {
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for column, exprs := range q.filters {
		for _, expr := range exprs {
			params.Add(column, expr)
		}
	}
	if q.order != "" {
		params.Set("order", q.order)
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	var bodyReader *bytes.Buffer
	if q.body != nil {
		bodyReader = &bytes.Buffer{}
		if err := json.NewEncoder(bodyReader).Encode(q.body); err != nil {
			return nil, fmt.Errorf("failed to encode %s body for %s: %w", q.method, q.table, err)
		}
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, q.method, reqURL, bodyReader)
	if err != nil {
		return nil, err
	}
	if q.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if len(q.prefers) > 0 {
		req.Header.Set("Prefer", strings.Join(q.prefers, ","))
	}

	return q.client.send(req)
}

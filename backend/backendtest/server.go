// Package backendtest provides an in-memory stand-in for the hosted
// backend's REST and RPC surface, for use with httptest. It implements
// just enough of the filter grammar (eq, neq, lt, gt, gte) and the
// representation headers for the service packages to run against it.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Row is one stored record.
type Row = map[string]any

// RPCFunc handles one named procedure call.
type RPCFunc func(params map[string]any) (any, error)

// Server is the fake backend. Configure tables and procedures before
// serving; all methods are safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	tables map[string][]Row
	rpcs   map[string]RPCFunc
	router chi.Router

	// FailuresLeft makes the next N requests return 503, for retry tests.
	FailuresLeft int
}

// NewServer returns an empty fake backend.
func NewServer() *Server {
	s := &Server{
		tables: make(map[string][]Row),
		rpcs:   make(map[string]RPCFunc),
	}
	r := chi.NewRouter()
	r.Post("/rest/v1/rpc/{name}", s.handleRPC)
	r.HandleFunc("/rest/v1/{table}", s.handleTable)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.FailuresLeft > 0 {
		s.FailuresLeft--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "connection refused")
		return
	}
	s.mu.Unlock()
	s.router.ServeHTTP(w, r)
}

// CreateTable registers a table with initial rows. Rows without an id get
// one assigned.
func (s *Server) CreateTable(name string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]Row, 0, len(rows))
	for _, row := range rows {
		stored = append(stored, withID(row))
	}
	s.tables[name] = stored
}

// DropTable removes a table so requests against it report a missing
// relation, simulating a deployment without the optional schema.
func (s *Server) DropTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
}

// Rows returns a copy of a table's current rows.
func (s *Server) Rows(name string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.tables[name]))
	copy(out, s.tables[name])
	return out
}

// HandleRPC registers a procedure.
func (s *Server) HandleRPC(name string, fn RPCFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcs[name] = fn
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	fn, ok := s.rpcs[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("function public.%s does not exist", name))
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := fn(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("relation \"public.%s\" does not exist", table))
		return
	}

	filters := parseFilters(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		matched := filterRows(rows, filters)
		sortRows(matched, r.URL.Query().Get("order"))
		if n := r.URL.Query().Get("limit"); n != "" {
			if limit, err := strconv.Atoi(n); err == nil && limit < len(matched) {
				matched = matched[:limit]
			}
		}
		if wantsSingle(r) {
			if len(matched) != 1 {
				writeError(w, http.StatusNotAcceptable, "JSON object requested, multiple (or no) rows returned")
				return
			}
			writeJSON(w, http.StatusOK, matched[0])
			return
		}
		writeJSON(w, http.StatusOK, matched)

	case http.MethodPost:
		var incoming []Row
		body, _ := readAnyRows(r)
		for _, row := range body {
			incoming = append(incoming, withID(row))
		}
		s.tables[table] = append(rows, incoming...)
		writeJSON(w, http.StatusCreated, incoming)

	case http.MethodPatch:
		var changes Row
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var updated []Row
		for i, row := range rows {
			if matches(row, filters) {
				for k, v := range changes {
					rows[i][k] = v
				}
				updated = append(updated, rows[i])
			}
		}
		if updated == nil {
			updated = []Row{}
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		var kept, deleted []Row
		for _, row := range rows {
			if matches(row, filters) {
				deleted = append(deleted, row)
			} else {
				kept = append(kept, row)
			}
		}
		s.tables[table] = kept
		if deleted == nil {
			deleted = []Row{}
		}
		writeJSON(w, http.StatusOK, deleted)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// readAnyRows accepts either a single object or an array body.
func readAnyRows(r *http.Request) ([]Row, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var many []Row
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one Row
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []Row{one}, nil
}

type filter struct {
	column string
	op     string
	value  string
}

func parseFilters(query map[string][]string) []filter {
	var out []filter
	for column, values := range query {
		switch column {
		case "select", "order", "limit":
			continue
		}
		for _, v := range values {
			op, value, ok := strings.Cut(v, ".")
			if !ok {
				continue
			}
			out = append(out, filter{column: column, op: op, value: value})
		}
	}
	return out
}

// sortRows applies a PostgREST order expression ("col.asc,col2.desc").
func sortRows(rows []Row, order string) {
	if order == "" {
		return
	}
	var terms []filter
	for _, part := range strings.Split(order, ",") {
		column, dir, ok := strings.Cut(part, ".")
		if !ok {
			continue
		}
		terms = append(terms, filter{column: column, op: dir})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, t := range terms {
			c := compare(fmt.Sprint(rows[i][t.column]), fmt.Sprint(rows[j][t.column]))
			if c == 0 {
				continue
			}
			if t.op == "desc" {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func filterRows(rows []Row, filters []filter) []Row {
	out := []Row{}
	for _, row := range rows {
		if matches(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row Row, filters []filter) bool {
	for _, f := range filters {
		cell := fmt.Sprint(row[f.column])
		if row[f.column] == nil {
			cell = ""
		}
		switch f.op {
		case "eq":
			if cell != f.value {
				return false
			}
		case "neq":
			if cell == f.value {
				return false
			}
		case "lt":
			if compare(cell, f.value) >= 0 {
				return false
			}
		case "gt":
			if compare(cell, f.value) <= 0 {
				return false
			}
		case "gte":
			if compare(cell, f.value) < 0 {
				return false
			}
		}
	}
	return true
}

// compare orders numerically when both sides parse as numbers, otherwise
// lexically. ISO timestamps order correctly under the lexical path.
func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func wantsSingle(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "vnd.pgrst.object")
}

func withID(row Row) Row {
	stored := make(Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	return stored
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message, "code": fmt.Sprintf("%d", status)})
}

package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Error is a backend-reported error (constraint violation, RLS denial,
// missing relation). It travels inside a Result rather than as a native
// transport failure, so callers must check for it explicitly.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return "Database operation failed"
}

// Result is the outcome of a single backend call: either data or a
// backend-reported error.
type Result struct {
	Data  json.RawMessage
	Error *Error
}

// Err folds the backend-reported error into a Go error. Nil on success.
func (r *Result) Err() error {
	if r == nil {
		return fmt.Errorf("nil backend result")
	}
	if r.Error != nil {
		return r.Error
	}
	return nil
}

// Decode unmarshals the result data into v.
func (r *Result) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// DecodeLoose decodes the result data into v through mapstructure with
// weak typing. RPC payloads come back as loosely-typed JSON (numbers as
// floats, timestamps as strings), so strict unmarshalling is too brittle
// for them.
func (r *Result) DecodeLoose(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Data) == 0 {
		return nil
	}

	var raw any
	if err := json.Unmarshal(r.Data, &raw); err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// IsMissingRelation reports whether the error indicates absent optional
// schema (table or relationship not deployed). Callers degrade these to
// empty results instead of failing.
func IsMissingRelation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"does not exist", "relationship", "406", "Not Acceptable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"flowmoney/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object into dst. Unknown fields, trailing
// data and oversized bodies are validation errors on the body field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.NewValidationError("body", "request body is empty")
		case errors.As(err, &maxErr):
			return core.NewValidationError("body", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return core.NewValidationError("body", "malformed JSON: "+err.Error())
		}
	}
	if dec.More() {
		return core.NewValidationError("body", "request body must hold a single JSON object")
	}
	return nil
}

// looseString accepts a JSON string or number, keeping the literal text.
// Clients send amounts both ways.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

// sanitizeInput trims and drops control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// queryString returns a sanitized query parameter.
func queryString(q url.Values, key string) string {
	return sanitizeInput(q.Get(key))
}

// queryInt parses an optional integer query parameter.
func queryInt(q url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError(key, "must be an integer")
	}
	return n, nil
}

// pathID returns the {id} wildcard, rejecting blanks.
func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", core.NewValidationError("id", "id is required")
	}
	return id, nil
}

type createTransactionRequest struct {
	Amount   looseString `json:"amount"`
	Type     string      `json:"type"`
	Category string      `json:"category"`
	LedgerID string      `json:"ledger_id"`
	Date     string      `json:"date"`
	Note     string      `json:"note"`
	Mood     string      `json:"mood"`
}

type ledgerNameRequest struct {
	Name string `json:"name"`
}

type savingsRequest struct {
	Enabled bool        `json:"enabled"`
	Goal    looseString `json:"goal"`
}

type membershipRequest struct {
	IsPro bool `json:"is_pro"`
	Days  int  `json:"days"`
}

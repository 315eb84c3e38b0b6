package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"flowmoney/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantField string
		wantAmt   string
	}{
		{name: "string amount", body: `{"amount":"12,50","type":"expense","category":"🍔"}`, wantAmt: "12,50"},
		{name: "number amount", body: `{"amount":12.5,"type":"expense","category":"🍔"}`, wantAmt: "12.5"},
		{name: "null amount", body: `{"amount":null}`, wantAmt: ""},
		{name: "empty body", body: ``, wantErr: true, wantField: "body"},
		{name: "unknown field", body: `{"amount":"1","colour":"red"}`, wantErr: true, wantField: "body"},
		{name: "two objects", body: `{"amount":"1"}{"amount":"2"}`, wantErr: true, wantField: "body"},
		{name: "amount is an object", body: `{"amount":{"v":1}}`, wantErr: true, wantField: "body"},
		{name: "oversized", body: `{"note":"` + strings.Repeat("x", maxBodyBytes) + `"}`, wantErr: true, wantField: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(tt.body))
			var req createTransactionRequest
			err := decodeJSON(httptest.NewRecorder(), r, &req)

			if tt.wantErr {
				var verr *core.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(req.Amount) != tt.wantAmt {
				t.Errorf("amount = %q, want %q", req.Amount, tt.wantAmt)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  lunch  ", "lunch"},
		{"a\x00b\x07c", "abc"},
		{"line1\nline2", "line1\nline2"},
		{"tab\there", "tab\there"},
		{"午饭", "午饭"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"page": {"3"}, "bad": {"x"}, "blank": {" "}}

	if n, err := queryInt(q, "page", 1); err != nil || n != 3 {
		t.Errorf("page = %d, %v", n, err)
	}
	if n, err := queryInt(q, "missing", 1); err != nil || n != 1 {
		t.Errorf("missing = %d, %v", n, err)
	}
	if n, err := queryInt(q, "blank", 7); err != nil || n != 7 {
		t.Errorf("blank = %d, %v", n, err)
	}
	if _, err := queryInt(q, "bad", 1); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bad: expected validation error, got %v", err)
	}
}

func TestPathID(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/api/ledgers/x", nil)
	r.SetPathValue("id", " l1 ")
	if id, err := pathID(r); err != nil || id != "l1" {
		t.Errorf("pathID = %q, %v", id, err)
	}

	r.SetPathValue("id", "  ")
	if _, err := pathID(r); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

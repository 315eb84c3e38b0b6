package google

import (
	"context"
	"strings"
	"testing"

	gsheet "google.golang.org/api/sheets/v4"
)

func TestQuoteTab(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ledger-u1", "'ledger-u1'"},
		{"it's", "'it''s'"},
	}
	for _, tt := range tests {
		if got := quoteTab(tt.in); got != tt.want {
			t.Errorf("quoteTab(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasTab(t *testing.T) {
	ss := &gsheet.Spreadsheet{Sheets: []*gsheet.Sheet{
		{Properties: &gsheet.SheetProperties{Title: "Sheet1"}},
		{Properties: &gsheet.SheetProperties{Title: "ledger-u1"}},
		nil,
	}}
	if !hasTab(ss, "ledger-u1") {
		t.Error("expected ledger-u1 to be found")
	}
	if hasTab(ss, "ledger-u2") {
		t.Error("did not expect ledger-u2")
	}
	if hasTab(nil, "x") {
		t.Error("nil spreadsheet has no tabs")
	}
}

func TestToValues(t *testing.T) {
	got := toValues([]string{"Date", "Amount"}, [][]string{{"2025-03-01", "12.50"}})
	if len(got) != 2 || got[0][0] != "Date" || got[1][1] != "12.50" {
		t.Fatalf("toValues() = %v", got)
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || !strings.Contains(err.Error(), "spreadsheet") {
		t.Fatalf("New() error = %v", err)
	}
}

func TestLoadCredentialsPrefersInline(t *testing.T) {
	b, err := loadCredentials(context.Background(), Config{CredentialsJSON: `{"type":"service_account"}`, CredentialsFile: "/nonexistent"})
	if err != nil {
		t.Fatalf("loadCredentials() error = %v", err)
	}
	if !strings.Contains(string(b), "service_account") {
		t.Fatalf("loadCredentials() = %s", b)
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	if _, err := loadCredentials(context.Background(), Config{CredentialsFile: "/nonexistent/creds.json"}); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

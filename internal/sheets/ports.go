// Package sheets mirrors exported transactions to a spreadsheet.
package sheets

import (
	"context"
	"strings"
)

// Ports for outbound adapters.
type (
	// ExportWriter replaces the contents of one tab with header and rows.
	ExportWriter interface {
		ReplaceRows(ctx context.Context, tab string, header []string, rows [][]string) error
	}
)

const maxTabName = 100

// TabName is the tab holding a user's mirror. Sheet titles cannot contain
// a few characters and are limited in length.
func TabName(userID string) string {
	name := "ledger-" + strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '*', '?', '/', '\\', ':', '\'':
			return '_'
		}
		return r
	}, userID)
	if len(name) > maxTabName {
		name = name[:maxTabName]
	}
	return name
}

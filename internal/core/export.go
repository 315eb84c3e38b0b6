package core

import "time"

const (
	exportExpenseLabel = "支出"
	exportIncomeLabel  = "收入"
	exportUnknown      = "Unknown"
	exportDefaultName  = "Default"
	exportDateLayout   = "2006-01-02"
)

// ExportHeader is the column order of exported rows.
var ExportHeader = []string{"Date", "Type", "Category", "Amount", "Note", "Mood", "Ledger"}

// ExportRow is one flattened transaction as written to CSV, XLSX or Sheets.
type ExportRow struct {
	Date     string
	Type     string
	Category string
	Amount   string
	Note     string
	Mood     string
	Ledger   string
}

// NewExportRow flattens a transaction, rendering its date in loc.
func NewExportRow(v TransactionView, loc *time.Location) ExportRow {
	if loc == nil {
		loc = time.UTC
	}
	r := ExportRow{
		Date:     v.Date.In(loc).Format(exportDateLayout),
		Type:     exportIncomeLabel,
		Category: v.CategoryName,
		Amount:   FormatAmount(v.Amount.Abs()),
		Note:     v.Note,
		Mood:     string(v.Mood),
		Ledger:   v.LedgerName,
	}
	if v.Amount.IsNegative() {
		r.Type = exportExpenseLabel
	}
	if r.Category == "" {
		r.Category = exportUnknown
	}
	if r.Ledger == "" {
		r.Ledger = exportDefaultName
	}
	return r
}

// Values returns the row in ExportHeader order.
func (r ExportRow) Values() []string {
	return []string{r.Date, r.Type, r.Category, r.Amount, r.Note, r.Mood, r.Ledger}
}

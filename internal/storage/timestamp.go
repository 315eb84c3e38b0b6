package storage

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// timestampLayout is fixed width so that text comparison orders correctly.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp stores times as UTC text, readable by both dialects.
type Timestamp time.Time

func (t Timestamp) Value() (driver.Value, error) {
	return time.Time(t).UTC().Format(timestampLayout), nil
}

// nullTimestamp writes NULL for a nil pointer.
func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Timestamp(*t)
}

// timeScanner reads a timestamp column. Postgres hands back time.Time,
// SQLite hands back the stored text.
type timeScanner struct {
	dst *time.Time
	ptr **time.Time
}

func scanTime(dst *time.Time) *timeScanner { return &timeScanner{dst: dst} }

func scanNullTime(dst **time.Time) *timeScanner { return &timeScanner{ptr: dst} }

func (s *timeScanner) Scan(src any) error {
	var t time.Time
	switch v := src.(type) {
	case nil:
		if s.ptr != nil {
			*s.ptr = nil
			return nil
		}
		return fmt.Errorf("scan timestamp: unexpected NULL")
	case time.Time:
		t = v
	case string:
		p, err := parseTimestamp(v)
		if err != nil {
			return err
		}
		t = p
	case []byte:
		p, err := parseTimestamp(string(v))
		if err != nil {
			return err
		}
		t = p
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
	t = t.UTC()
	if s.ptr != nil {
		*s.ptr = &t
	} else {
		*s.dst = t
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("scan timestamp: cannot parse %q", s)
}

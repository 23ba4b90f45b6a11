package storage

import (
	"fmt"
	"time"

	"spndr/internal/core"
)

// Layouts SQLite hands back for TIMESTAMP columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// dateColumn scans DATE values from either driver: pgx returns time.Time,
// SQLite may return text.
type dateColumn struct {
	core.Date
}

func (d *dateColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Date = core.Date{}
	case time.Time:
		d.Date = core.NewDate(v.Year(), int(v.Month()), v.Day())
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
	return nil
}

func (d *dateColumn) parse(s string) error {
	parsed, err := core.ParseDate(s)
	if err != nil {
		return err
	}
	d.Date = parsed
	return nil
}

type timeColumn struct {
	time.Time
}

func (t *timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
	return nil
}

func (t *timeColumn) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognized value %q", s)
}

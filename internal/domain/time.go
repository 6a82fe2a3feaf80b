package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeLayout is fixed width so that text comparison on SQLite orders the same
// way as the instants themselves.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time is a UTC instant with microsecond precision that round-trips through
// both SQLite (TEXT) and Postgres (TIMESTAMPTZ) columns.
type Time struct{ time.Time }

func NewTime(t time.Time) Time { return Time{t.UTC().Truncate(time.Microsecond)} }

func TimePtr(t time.Time) *Time {
	v := NewTime(t)
	return &v
}

// ParseTime accepts RFC 3339 timestamps and plain dates.
func ParseTime(s string) (Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTime(t), nil
		}
	}
	return Time{}, fmt.Errorf("unrecognized time %q", s)
}

func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format(TimeLayout), nil
}

func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		*t = NewTime(v)
		return nil
	case string:
		p, err := ParseTime(v)
		if err != nil {
			return err
		}
		*t = p
		return nil
	case []byte:
		return t.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into domain.Time", src)
}

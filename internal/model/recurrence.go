package model

import (
	"fmt"
	"strings"
)

// Recurrence is the closed set of repeat patterns an event may carry.
type Recurrence int

const (
	RecurrenceNone Recurrence = iota
	RecurrenceDaily
	RecurrenceWeekly
	RecurrenceWeekdays
)

// ParseRecurrence maps the stored/API spelling onto the enum.
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RecurrenceNone, nil
	case "daily":
		return RecurrenceDaily, nil
	case "weekly":
		return RecurrenceWeekly, nil
	case "weekdays":
		return RecurrenceWeekdays, nil
	default:
		return RecurrenceNone, fmt.Errorf("%w: %q", ErrUnknownRecurrence, s)
	}
}

func (r Recurrence) String() string {
	switch r {
	case RecurrenceNone:
		return ""
	case RecurrenceDaily:
		return "daily"
	case RecurrenceWeekly:
		return "weekly"
	case RecurrenceWeekdays:
		return "weekdays"
	default:
		return fmt.Sprintf("recurrence(%d)", int(r))
	}
}

func (r Recurrence) IsRecurring() bool {
	return r != RecurrenceNone
}

func (r Recurrence) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Recurrence) UnmarshalText(b []byte) error {
	v, err := ParseRecurrence(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

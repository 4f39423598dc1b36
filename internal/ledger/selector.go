package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnitSelector addresses one payment unit of an opportunity through the
// external API's "payment type" field: "value" for the lump sum,
// "schedule:<n>" for the nth schedule item (zero-based), and
// "recurring:<YYYY-MM-DD>" for the instalment due on that date.
type UnitSelector struct {
	Type          UnitType
	ScheduleIndex int
	DueDate       *time.Time
}

// ParseUnitSelector parses a payment-type string into a selector.
func ParseUnitSelector(s string) (UnitSelector, error) {
	switch {
	case s == "value":
		return UnitSelector{Type: UnitTypeValue}, nil
	case strings.HasPrefix(s, "schedule:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(s, "schedule:"))
		if err != nil || idx < 0 {
			return UnitSelector{}, fmt.Errorf("invalid schedule index in payment type %q", s)
		}
		return UnitSelector{Type: UnitTypeSchedule, ScheduleIndex: idx}, nil
	case strings.HasPrefix(s, "recurring:"):
		due, err := time.Parse("2006-01-02", strings.TrimPrefix(s, "recurring:"))
		if err != nil {
			return UnitSelector{}, fmt.Errorf("invalid due date in payment type %q", s)
		}
		return UnitSelector{Type: UnitTypeRecurring, DueDate: &due}, nil
	}
	return UnitSelector{}, fmt.Errorf("unknown payment type %q", s)
}

// String renders the selector back to its wire form.
func (s UnitSelector) String() string {
	switch s.Type {
	case UnitTypeSchedule:
		return fmt.Sprintf("schedule:%d", s.ScheduleIndex)
	case UnitTypeRecurring:
		if s.DueDate != nil {
			return "recurring:" + s.DueDate.Format("2006-01-02")
		}
		return "recurring"
	}
	return "value"
}

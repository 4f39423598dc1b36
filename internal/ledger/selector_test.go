package ledger

import (
	"testing"
	"time"
)

func TestParseUnitSelector(t *testing.T) {
	due := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		input   string
		want    UnitSelector
		wantErr bool
	}{
		{input: "value", want: UnitSelector{Type: UnitTypeValue}},
		{input: "schedule:0", want: UnitSelector{Type: UnitTypeSchedule, ScheduleIndex: 0}},
		{input: "schedule:7", want: UnitSelector{Type: UnitTypeSchedule, ScheduleIndex: 7}},
		{input: "recurring:2024-03-15", want: UnitSelector{Type: UnitTypeRecurring, DueDate: &due}},
		{input: "", wantErr: true},
		{input: "VALUE", wantErr: true},
		{input: "schedule:", wantErr: true},
		{input: "schedule:-1", wantErr: true},
		{input: "schedule:abc", wantErr: true},
		{input: "recurring:15-03-2024", wantErr: true},
		{input: "retainer", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseUnitSelector(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseUnitSelector(%q) succeeded, want error", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnitSelector(%q) failed: %v", tc.input, err)
			}
			if got.Type != tc.want.Type || got.ScheduleIndex != tc.want.ScheduleIndex {
				t.Errorf("ParseUnitSelector(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
			if tc.want.DueDate != nil && (got.DueDate == nil || !got.DueDate.Equal(*tc.want.DueDate)) {
				t.Errorf("ParseUnitSelector(%q) due date = %v, want %v", tc.input, got.DueDate, tc.want.DueDate)
			}
		})
	}
}

func TestUnitSelectorRoundTrip(t *testing.T) {
	for _, input := range []string{"value", "schedule:3", "recurring:2024-06-01"} {
		sel, err := ParseUnitSelector(input)
		if err != nil {
			t.Fatalf("ParseUnitSelector(%q) failed: %v", input, err)
		}
		if sel.String() != input {
			t.Errorf("round trip of %q produced %q", input, sel.String())
		}
	}
}

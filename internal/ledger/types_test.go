package ledger

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from PayoutStatus
		to   PayoutStatus
		want bool
	}{
		{PayoutPending, PayoutScheduled, true},
		{PayoutPending, PayoutCancelled, true},
		{PayoutPending, PayoutProcessing, false},
		{PayoutPending, PayoutPaid, false},
		{PayoutScheduled, PayoutProcessing, true},
		{PayoutScheduled, PayoutPaid, false},
		{PayoutProcessing, PayoutPaid, true},
		{PayoutProcessing, PayoutFailed, true},
		{PayoutProcessing, PayoutCancelled, true},
		{PayoutFailed, PayoutProcessing, true},
		{PayoutFailed, PayoutCancelled, true},
		{PayoutFailed, PayoutPaid, false},
		{PayoutPaid, PayoutProcessing, false},
		{PayoutPaid, PayoutCancelled, false},
		{PayoutCancelled, PayoutProcessing, false},
	}

	for _, tc := range testCases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[PayoutStatus]bool{
		PayoutPending:    false,
		PayoutScheduled:  false,
		PayoutProcessing: false,
		PayoutFailed:     false,
		PayoutPaid:       true,
		PayoutCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestParsePayoutStatus(t *testing.T) {
	if _, err := ParsePayoutStatus("PAID"); err != nil {
		t.Errorf("ParsePayoutStatus(PAID) failed: %v", err)
	}
	for _, bad := range []string{"", "paid", "SETTLED", "DONE"} {
		if _, err := ParsePayoutStatus(bad); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("ParsePayoutStatus(%q) error = %v, want ErrInvalidStatus", bad, err)
		}
	}
}

func TestAggregateDelta(t *testing.T) {
	testCases := []struct {
		name        string
		from        PayoutStatus
		to          PayoutStatus
		wantEarned  int64
		wantPending int64
	}{
		{name: "pending to scheduled", from: PayoutPending, to: PayoutScheduled},
		{name: "scheduled to processing", from: PayoutScheduled, to: PayoutProcessing},
		{name: "processing to paid", from: PayoutProcessing, to: PayoutPaid, wantEarned: 1000, wantPending: -1000},
		{name: "processing to failed", from: PayoutProcessing, to: PayoutFailed, wantPending: -1000},
		{name: "failed retry", from: PayoutFailed, to: PayoutProcessing, wantPending: 1000},
		{name: "pending cancelled", from: PayoutPending, to: PayoutCancelled, wantPending: -1000},
		{name: "failed cancelled", from: PayoutFailed, to: PayoutCancelled},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			earned, pending := AggregateDelta(tc.from, tc.to, 1000)
			if int64(earned) != tc.wantEarned || int64(pending) != tc.wantPending {
				t.Errorf("AggregateDelta(%s, %s) = %d/%d, want %d/%d",
					tc.from, tc.to, earned, pending, tc.wantEarned, tc.wantPending)
			}
		})
	}
}

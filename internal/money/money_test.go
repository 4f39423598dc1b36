package money

import (
	"testing"
)

func TestBasisPointsFromPercent(t *testing.T) {
	testCases := []struct {
		name    string
		pct     float64
		want    BasisPoints
		wantErr bool
	}{
		{"whole percent", 60, 6000, false},
		{"two decimals", 33.33, 3333, false},
		{"full share", 100, 10000, false},
		{"zero", 0, 0, false},
		{"three decimals rejected", 33.333, 0, true},
		{"negative rejected", -5, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BasisPointsFromPercent(tc.pct)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v, got %v", tc.pct, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %d basis points, got %d", tc.want, got)
			}
		})
	}
}

func TestShareTruncatesTowardZero(t *testing.T) {
	// 100.01 at 33.33% = 3333.63... cents, truncated to 3333
	share, frac := Amount(10001).Share(3333)
	if share != 3333 {
		t.Errorf("expected share 3333, got %d", share)
	}
	if frac != 3333 {
		t.Errorf("expected fractional remainder 3333, got %d", frac)
	}
}

func TestAllocateExactSplit(t *testing.T) {
	shares, err := Allocate(100000, []Portion{
		{Key: "a", Points: 6000},
		{Key: "b", Points: 4000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares[0] != 60000 || shares[1] != 40000 {
		t.Errorf("expected 60000/40000, got %d/%d", shares[0], shares[1])
	}
}

func TestAllocateRemainderToLargestFraction(t *testing.T) {
	// 10001 cents at 33.33/33.33/33.34: truncated shares are
	// 3333/3333/3334, leaving one cent for the largest fractional
	// remainder (the 33.34% portion).
	shares, err := Allocate(10001, []Portion{
		{Key: "a", Points: 3333},
		{Key: "b", Points: 3333},
		{Key: "c", Points: 3334},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total Amount
	for _, s := range shares {
		total += s
	}
	if total != 10001 {
		t.Errorf("expected conservation of 10001 cents, got %d", total)
	}
	if shares[0] != 3333 || shares[1] != 3333 || shares[2] != 3335 {
		t.Errorf("expected 3333/3333/3335, got %d/%d/%d", shares[0], shares[1], shares[2])
	}
}

func TestAllocateRemainderTieBreaksOnSmallestKey(t *testing.T) {
	// Equal fractional remainders: the smaller key wins the cent.
	shares, err := Allocate(101, []Portion{
		{Key: "z", Points: 5000},
		{Key: "a", Points: 5000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares[0] != 50 || shares[1] != 51 {
		t.Errorf("expected z=50 a=51, got z=%d a=%d", shares[0], shares[1])
	}
}

func TestAllocatePartialLeavesRemainderUnassigned(t *testing.T) {
	shares, err := Allocate(10000, []Portion{
		{Key: "a", Points: 5000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares[0] != 5000 {
		t.Errorf("expected 5000, got %d", shares[0])
	}
}

func TestAllocateRejectsOverAllocation(t *testing.T) {
	_, err := Allocate(10000, []Portion{
		{Key: "a", Points: 7000},
		{Key: "b", Points: 5000},
	})
	if err == nil {
		t.Fatal("expected error for portions over 100%")
	}
}

func TestAllocateConservation(t *testing.T) {
	// Any full-share split of any amount must conserve every cent.
	amounts := []Amount{1, 99, 100, 10001, 123456789}
	memberCounts := []int{1, 2, 3, 7, 50}

	for _, amount := range amounts {
		for _, n := range memberCounts {
			portions := make([]Portion, n)
			each := FullShare / BasisPoints(n)
			for i := range portions {
				portions[i] = Portion{Key: string(rune('a' + i%26)) + string(rune('0'+i/26)), Points: each}
			}
			portions[n-1].Points += FullShare - each*BasisPoints(n)

			shares, err := Allocate(amount, portions)
			if err != nil {
				t.Fatalf("amount=%d n=%d: %v", amount, n, err)
			}
			var total Amount
			for _, s := range shares {
				total += s
			}
			if total != amount {
				t.Errorf("amount=%d n=%d: allocated %d, lost %d cents", amount, n, total, amount-total)
			}
		}
	}
}

func TestAmountString(t *testing.T) {
	if got := Amount(100000).String(); got != "1000.00" {
		t.Errorf("expected 1000.00, got %s", got)
	}
	if got := Amount(5).String(); got != "0.05" {
		t.Errorf("expected 0.05, got %s", got)
	}
}

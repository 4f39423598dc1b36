package ledger

import (
	"context"
	"errors"
	"testing"

	"payout-ledger/internal/money"
)

func TestCheckSplits(t *testing.T) {
	testCases := []struct {
		name         string
		points       []money.BasisPoints
		amount       money.Amount
		wantValid    bool
		wantErr      error
		wantWarnings int
	}{
		{
			name:      "exactly 100 percent",
			points:    []money.BasisPoints{3333, 3333, 3334},
			amount:    10000,
			wantValid: true,
		},
		{
			name:         "under 100 percent warns",
			points:       []money.BasisPoints{4000, 2000},
			amount:       10000,
			wantValid:    true,
			wantWarnings: 1,
		},
		{
			name:    "one basis point over blocks",
			points:  []money.BasisPoints{5000, 5001},
			amount:  10000,
			wantErr: ErrSplitOverAllocated,
		},
		{
			name:    "positive amount with no splits blocks",
			points:  nil,
			amount:  10000,
			wantErr: ErrNoActiveMembers,
		},
		{
			name:      "zero amount with no splits passes",
			points:    nil,
			amount:    0,
			wantValid: true,
		},
	}

	validator := NewSplitValidator(NewSplitRegistry(NewMemStore()))

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			splits := make([]EffectiveSplit, len(tc.points))
			for i, p := range tc.points {
				splits[i] = EffectiveSplit{ClientID: clientName(i), Points: p}
			}
			unit := &PaymentUnit{ID: "unit-1", OpportunityID: "opp-1", Amount: tc.amount}

			result := validator.Check(unit, splits)

			if result.Valid != tc.wantValid {
				t.Errorf("valid = %v, want %v", result.Valid, tc.wantValid)
			}
			if tc.wantErr != nil {
				if !errors.Is(result.Err, tc.wantErr) {
					t.Errorf("err = %v, want %v", result.Err, tc.wantErr)
				}
				if result.Error == "" {
					t.Error("Error message not populated for API serialization")
				}
			} else if result.Err != nil {
				t.Errorf("unexpected err: %v", result.Err)
			}
			if len(result.Warnings) != tc.wantWarnings {
				t.Errorf("warnings = %d, want %d", len(result.Warnings), tc.wantWarnings)
			}
		})
	}
}

func TestValidateResolvesSplits(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", 6000, 0)
	seedMember(store, "opp-1", "bob", 4000, 0)

	registry := NewSplitRegistry(store)
	validator := NewSplitValidator(registry)

	unit := &PaymentUnit{ID: "unit-1", OpportunityID: "opp-1", Type: UnitTypeValue, Amount: 10000}
	result, err := validator.Validate(context.Background(), unit)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid result, got err %v", result.Err)
	}
	if result.TotalPoints != money.FullShare {
		t.Errorf("total = %d, want %d", result.TotalPoints, money.FullShare)
	}
	if result.SplitCount != 2 {
		t.Errorf("split count = %d, want 2", result.SplitCount)
	}
}

package ledger

import (
	"context"
	"testing"

	"payout-ledger/internal/money"
)

func TestEffectiveSplitsFromMemberDefaults(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "zoe", 4000, 7)
	seedMember(store, "opp-1", "adam", 6000, 0)
	seedMember(store, "opp-1", "gone", 1000, 0)
	if _, err := store.DeactivateMember(context.Background(), "opp-1", "gone"); err != nil {
		t.Fatalf("DeactivateMember failed: %v", err)
	}

	unit := &PaymentUnit{ID: "unit-1", OpportunityID: "opp-1", Type: UnitTypeValue}
	splits, err := NewSplitRegistry(store).EffectiveSplits(context.Background(), unit)
	if err != nil {
		t.Fatalf("EffectiveSplits failed: %v", err)
	}

	// Inactive members are excluded; output is ordered by client ID.
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}
	if splits[0].ClientID != "adam" || splits[1].ClientID != "zoe" {
		t.Errorf("order = [%s %s], want [adam zoe]", splits[0].ClientID, splits[1].ClientID)
	}
	if splits[1].Points != 4000 || splits[1].PayoutDelayDays != 7 {
		t.Errorf("zoe split = %d/%d days, want 4000/7 days", splits[1].Points, splits[1].PayoutDelayDays)
	}
}

func TestEffectiveSplitsOverrideWins(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", 9000, 0)

	unit := &PaymentUnit{
		ID:            "unit-1",
		OpportunityID: "opp-1",
		Type:          UnitTypeSchedule,
		MemberSplits: []SplitOverride{
			{ClientID: "alice", Points: 2500, PayoutDelayDays: 30},
			{ClientID: "external", Points: 2500},
		},
	}
	splits, err := NewSplitRegistry(store).EffectiveSplits(context.Background(), unit)
	if err != nil {
		t.Fatalf("EffectiveSplits failed: %v", err)
	}

	if len(splits) != 2 {
		t.Fatalf("expected 2 splits from override, got %d", len(splits))
	}
	if splits[0].ClientID != "alice" || splits[0].Points != 2500 {
		t.Errorf("alice = %d points from override, want 2500 (default must not leak in)", splits[0].Points)
	}
	if splits[1].ClientID != "external" {
		t.Errorf("override may name non-members, got %s", splits[1].ClientID)
	}
}

func TestEffectiveSplitsEmptyOverrideFallsBack(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", money.FullShare, 0)

	// A nil and an empty override list mean the same thing.
	for _, override := range [][]SplitOverride{nil, {}} {
		unit := &PaymentUnit{ID: "unit-1", OpportunityID: "opp-1", Type: UnitTypeValue, MemberSplits: override}
		splits, err := NewSplitRegistry(store).EffectiveSplits(context.Background(), unit)
		if err != nil {
			t.Fatalf("EffectiveSplits failed: %v", err)
		}
		if len(splits) != 1 || splits[0].Points != money.FullShare {
			t.Errorf("override %v: expected member default, got %+v", override, splits)
		}
	}
}

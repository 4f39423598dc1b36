package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"payout-ledger/internal/money"
)

// ============================================================================
// DISTRIBUTION
// ============================================================================

func TestDistributeRemainderGoesToLargestFraction(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10001)
	seedMember(store, "opp-1", "alice", 3333, 0)
	seedMember(store, "opp-1", "bob", 3333, 0)
	seedMember(store, "opp-1", "carol", 3334, 0)
	seedReceivedUnit(store, "opp-1", "unit-1", 10001, mustDate("2024-01-01"))

	engine := newTestEngine(store)
	records, created, err := engine.Distribute(context.Background(), "unit-1", false)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if !created {
		t.Error("expected created=true on first distribution")
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	// Records come back ordered by client ID.
	want := map[string]money.Amount{"alice": 3333, "bob": 3333, "carol": 3335}
	var total money.Amount
	for _, rec := range records {
		if rec.Amount != want[rec.ClientID] {
			t.Errorf("client %s: amount = %d, want %d", rec.ClientID, rec.Amount, want[rec.ClientID])
		}
		total += rec.Amount
	}
	if total != 10001 {
		t.Errorf("distributed total = %d, want 10001", total)
	}
}

func TestDistributePayoutDatesAndStatuses(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 100000)
	seedMember(store, "opp-1", "fast", 5000, 0)
	seedMember(store, "opp-1", "slow", 5000, 30)
	seedReceivedUnit(store, "opp-1", "unit-1", 100000, mustDate("2024-01-01"))

	engine := newTestEngine(store)
	engine.now = func() time.Time { return mustDate("2024-01-15") }

	records, _, err := engine.Distribute(context.Background(), "unit-1", false)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}

	byClient := make(map[string]PayoutRecord)
	for _, rec := range records {
		byClient[rec.ClientID] = rec
	}

	fast := byClient["fast"]
	if !fast.PayoutDate.Equal(mustDate("2024-01-01")) {
		t.Errorf("fast payout date = %s, want 2024-01-01", fast.PayoutDate.Format("2006-01-02"))
	}
	if fast.Status != PayoutScheduled {
		t.Errorf("fast status = %s, want SCHEDULED (payout date already due)", fast.Status)
	}

	slow := byClient["slow"]
	if !slow.PayoutDate.Equal(mustDate("2024-01-31")) {
		t.Errorf("slow payout date = %s, want 2024-01-31", slow.PayoutDate.Format("2006-01-02"))
	}
	if slow.Status != PayoutPending {
		t.Errorf("slow status = %s, want PENDING (payout date in the future)", slow.Status)
	}
}

func TestDistributeIdempotent(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 50000)
	seedMember(store, "opp-1", "alice", 6000, 0)
	seedMember(store, "opp-1", "bob", 4000, 0)
	seedReceivedUnit(store, "opp-1", "unit-1", 50000, mustDate("2024-01-01"))

	engine := newTestEngine(store)
	ctx := context.Background()

	first, created, err := engine.Distribute(ctx, "unit-1", false)
	if err != nil {
		t.Fatalf("first Distribute failed: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first distribution")
	}

	second, created, err := engine.Distribute(ctx, "unit-1", false)
	if err != nil {
		t.Fatalf("second Distribute failed: %v", err)
	}
	if created {
		t.Error("expected created=false on repeat distribution")
	}
	if len(second) != len(first) {
		t.Fatalf("repeat returned %d records, want %d", len(second), len(first))
	}
	firstIDs := make(map[string]bool)
	for _, rec := range first {
		firstIDs[rec.ID] = true
	}
	for _, rec := range second {
		if !firstIDs[rec.ID] {
			t.Errorf("repeat distribution returned new record %s", rec.ID)
		}
	}

	// Aggregates counted exactly once.
	alice, err := store.GetMember(ctx, "opp-1", "alice")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if alice.TotalPending != 30000 {
		t.Errorf("alice totalPending = %d, want 30000", alice.TotalPending)
	}
}

func TestDistributeConservation(t *testing.T) {
	amounts := []money.Amount{1, 99, 10001, 333333, 99999999}

	for memberCount := 1; memberCount <= 50; memberCount++ {
		for _, amount := range amounts {
			store := NewMemStore()
			seedOpportunity(store, "opp-1", amount)

			// Splits that sum to exactly 100%.
			each := money.BasisPoints(10000 / memberCount)
			for i := 0; i < memberCount-1; i++ {
				seedMember(store, "opp-1", clientName(i), each, 0)
			}
			last := money.FullShare - each*money.BasisPoints(memberCount-1)
			seedMember(store, "opp-1", clientName(memberCount-1), last, 0)

			seedReceivedUnit(store, "opp-1", "unit-1", amount, mustDate("2024-01-01"))

			records, _, err := newTestEngine(store).Distribute(context.Background(), "unit-1", false)
			if err != nil {
				t.Fatalf("members=%d amount=%d: Distribute failed: %v", memberCount, amount, err)
			}

			var total money.Amount
			for _, rec := range records {
				if rec.Amount < 0 {
					t.Errorf("members=%d amount=%d: negative share %d for %s", memberCount, amount, rec.Amount, rec.ClientID)
				}
				total += rec.Amount
			}
			if total != amount {
				t.Errorf("members=%d amount=%d: distributed %d, want %d", memberCount, amount, total, amount)
			}
		}
	}
}

func TestDistributeDeterministic(t *testing.T) {
	build := func() *MemStore {
		store := NewMemStore()
		seedOpportunity(store, "opp-1", 10007)
		seedMember(store, "opp-1", "zed", 2500, 0)
		seedMember(store, "opp-1", "amy", 2500, 0)
		seedMember(store, "opp-1", "mia", 2500, 0)
		seedMember(store, "opp-1", "ben", 2500, 0)
		seedReceivedUnit(store, "opp-1", "unit-1", 10007, mustDate("2024-01-01"))
		return store
	}

	reference, _, err := newTestEngine(build()).Distribute(context.Background(), "unit-1", false)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}

	for run := 0; run < 10; run++ {
		records, _, err := newTestEngine(build()).Distribute(context.Background(), "unit-1", false)
		if err != nil {
			t.Fatalf("run %d: Distribute failed: %v", run, err)
		}
		for i := range records {
			if records[i].ClientID != reference[i].ClientID || records[i].Amount != reference[i].Amount {
				t.Fatalf("run %d: record %d = %s/%d, want %s/%d", run, i,
					records[i].ClientID, records[i].Amount, reference[i].ClientID, reference[i].Amount)
			}
		}
	}
}

func TestDistributeBlockedByValidation(t *testing.T) {
	testCases := []struct {
		name    string
		points  []money.BasisPoints
		amount  money.Amount
		wantErr error
	}{
		{name: "over-allocated splits", points: []money.BasisPoints{6000, 5000}, amount: 10000, wantErr: ErrSplitOverAllocated},
		{name: "no members with positive amount", points: nil, amount: 10000, wantErr: ErrNoActiveMembers},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemStore()
			seedOpportunity(store, "opp-1", tc.amount)
			for i, points := range tc.points {
				seedMember(store, "opp-1", clientName(i), points, 0)
			}
			seedReceivedUnit(store, "opp-1", "unit-1", tc.amount, mustDate("2024-01-01"))

			ctx := context.Background()
			_, _, err := newTestEngine(store).Distribute(ctx, "unit-1", false)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Distribute error = %v, want %v", err, tc.wantErr)
			}

			// Nothing written.
			unit, _ := store.GetPaymentUnit(ctx, "unit-1")
			if unit.Status != UnitReceived {
				t.Errorf("unit status = %s, want RECEIVED after failed validation", unit.Status)
			}
			records, _ := store.ListPayoutsByOpportunity(ctx, "opp-1")
			if len(records) != 0 {
				t.Errorf("expected no payout records, got %d", len(records))
			}
		})
	}
}

func TestDistributePartialAllocation(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", 6000, 0)
	seedReceivedUnit(store, "opp-1", "unit-1", 10000, mustDate("2024-01-01"))

	engine := newTestEngine(store)
	ctx := context.Background()

	_, _, err := engine.Distribute(ctx, "unit-1", false)
	if !errors.Is(err, ErrPartialAllocation) {
		t.Fatalf("Distribute without acceptPartial: error = %v, want ErrPartialAllocation", err)
	}

	records, created, err := engine.Distribute(ctx, "unit-1", true)
	if err != nil {
		t.Fatalf("Distribute with acceptPartial failed: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if len(records) != 1 || records[0].Amount != 6000 {
		t.Fatalf("expected one record of 6000, got %+v", records)
	}
}

func TestDistributeNotReceived(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", 10000, 0)
	store.PutPaymentUnit(&PaymentUnit{
		ID:            "unit-1",
		OpportunityID: "opp-1",
		Type:          UnitTypeValue,
		Amount:        10000,
		Status:        UnitPending,
	})

	_, _, err := newTestEngine(store).Distribute(context.Background(), "unit-1", false)
	if !errors.Is(err, ErrUnitNotReceived) {
		t.Fatalf("Distribute error = %v, want ErrUnitNotReceived", err)
	}
}

func TestDistributeStoreFailureWritesNothing(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", 10000, 0)
	seedReceivedUnit(store, "opp-1", "unit-1", 10000, mustDate("2024-01-01"))

	engine := newTestEngine(store)
	ctx := context.Background()

	store.FailNextCreate = true
	if _, _, err := engine.Distribute(ctx, "unit-1", false); err == nil {
		t.Fatal("expected error from failing store")
	}

	unit, _ := store.GetPaymentUnit(ctx, "unit-1")
	if unit.Status != UnitReceived {
		t.Errorf("unit status = %s, want RECEIVED after store failure", unit.Status)
	}
	records, _ := store.ListPayoutsByOpportunity(ctx, "opp-1")
	if len(records) != 0 {
		t.Errorf("expected no records after store failure, got %d", len(records))
	}

	// The retry succeeds cleanly.
	retried, created, err := engine.Distribute(ctx, "unit-1", false)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !created || len(retried) != 1 {
		t.Errorf("retry: created=%v records=%d, want created=true records=1", created, len(retried))
	}
}

// ============================================================================
// REDISTRIBUTION
// ============================================================================

func TestRedistributeSupersedesAndAppends(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 10000)
	seedMember(store, "opp-1", "alice", 7000, 0)
	seedMember(store, "opp-1", "bob", 3000, 0)
	seedReceivedUnit(store, "opp-1", "unit-1", 10000, mustDate("2024-01-01"))

	engine := newTestEngine(store)
	service := newTestService(store, 3)
	ctx := context.Background()

	if _, _, err := engine.Distribute(ctx, "unit-1", false); err != nil {
		t.Fatalf("initial Distribute failed: %v", err)
	}

	// Splits change after the fact; the correction is a new version.
	if _, err := service.UpdateMember(ctx, "opp-1", "alice", MemberInput{Role: "partner", SplitPercentage: 50, PayoutDelayDays: 0}); err != nil {
		t.Fatalf("UpdateMember failed: %v", err)
	}
	if _, err := service.UpdateMember(ctx, "opp-1", "bob", MemberInput{Role: "partner", SplitPercentage: 50, PayoutDelayDays: 0}); err != nil {
		t.Fatalf("UpdateMember failed: %v", err)
	}

	records, err := engine.Redistribute(ctx, "unit-1", false)
	if err != nil {
		t.Fatalf("Redistribute failed: %v", err)
	}
	for _, rec := range records {
		if rec.DistributionVersion != 2 {
			t.Errorf("new record version = %d, want 2", rec.DistributionVersion)
		}
		if rec.Amount != 5000 {
			t.Errorf("client %s: amount = %d, want 5000", rec.ClientID, rec.Amount)
		}
	}

	// History is kept: version 1 records are cancelled and flagged, never
	// deleted.
	all, _ := store.ListPayoutsByOpportunity(ctx, "opp-1")
	if len(all) != 4 {
		t.Fatalf("expected 4 records across versions, got %d", len(all))
	}
	for _, rec := range all {
		if rec.DistributionVersion == 1 {
			if !rec.Superseded {
				t.Errorf("v1 record for %s not flagged superseded", rec.ClientID)
			}
			if rec.Status != PayoutCancelled {
				t.Errorf("v1 record for %s status = %s, want CANCELLED", rec.ClientID, rec.Status)
			}
		}
	}

	// Aggregates reflect only the live version.
	alice, _ := store.GetMember(ctx, "opp-1", "alice")
	if alice.TotalPending != 5000 {
		t.Errorf("alice totalPending = %d, want 5000", alice.TotalPending)
	}
}

func TestAutoDistributeSkipsFailingUnits(t *testing.T) {
	store := NewMemStore()
	seedOpportunity(store, "opp-1", 30000)
	seedMember(store, "opp-1", "alice", 10000, 0)

	seedReceivedUnit(store, "opp-1", "unit-good", 10000, mustDate("2024-01-01"))
	received := mustDate("2024-01-01")
	store.PutPaymentUnit(&PaymentUnit{
		ID:            "unit-bad",
		OpportunityID: "opp-1",
		Type:          UnitTypeSchedule,
		ScheduleIndex: 0,
		Amount:        20000,
		ReceivedDate:  &received,
		Status:        UnitReceived,
		MemberSplits: []SplitOverride{
			{ClientID: "alice", Points: 8000},
			{ClientID: "bob", Points: 8000},
		},
	})

	records, skipped, err := newTestEngine(store).AutoDistribute(context.Background(), "opp-1", false)
	if err != nil {
		t.Fatalf("AutoDistribute failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record from the valid unit, got %d", len(records))
	}
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped unit, got %d", len(skipped))
	}
	if !errors.Is(skipped[0], ErrSplitOverAllocated) {
		t.Errorf("skipped error = %v, want ErrSplitOverAllocated", skipped[0])
	}
}

func clientName(i int) string {
	return "client-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

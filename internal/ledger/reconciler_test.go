package ledger

import (
	"context"
	"errors"
	"testing"
)

func newTestReconciler(store *MemStore) *Reconciler {
	return NewReconciler(newTestService(store, 3), testLogger())
}

func TestReconcileByNaturalKeyThenTransactionID(t *testing.T) {
	store := NewMemStore()
	distributeFixture(t, store)
	reconciler := newTestReconciler(store)
	ctx := context.Background()

	// First report: the ledger has never seen this transaction ID, so the
	// event is addressed by key and the ID sticks to the record.
	record, err := reconciler.Reconcile(ctx, ExternalPayoutEvent{
		TransactionID: "txn-777",
		OpportunityID: "opp-1",
		ClientID:      "alice",
		PaymentType:   "value",
		Status:        "PROCESSING",
	})
	if err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}
	if record.TransactionID == nil || *record.TransactionID != "txn-777" {
		t.Fatalf("transaction ID not recorded, got %v", record.TransactionID)
	}

	// Later reports address by transaction ID alone.
	paid := mustDate("2024-02-01")
	record, err = reconciler.Reconcile(ctx, ExternalPayoutEvent{
		TransactionID: "txn-777",
		Status:        "PAID",
		PaidOutDate:   &paid,
	})
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if record.ClientID != "alice" || record.Status != PayoutPaid {
		t.Errorf("record = %s/%s, want alice/PAID", record.ClientID, record.Status)
	}
	if record.PaidOutDate == nil || !record.PaidOutDate.Equal(paid) {
		t.Errorf("paid out date = %v, want %s", record.PaidOutDate, paid)
	}
}

func TestReconcileDuplicateDeliveryIsNoOp(t *testing.T) {
	store := NewMemStore()
	distributeFixture(t, store)
	reconciler := newTestReconciler(store)
	ctx := context.Background()

	ev := ExternalPayoutEvent{
		TransactionID: "txn-1",
		OpportunityID: "opp-1",
		ClientID:      "bob",
		PaymentType:   "value",
		Status:        "PROCESSING",
	}
	if _, err := reconciler.Reconcile(ctx, ev); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	record, err := reconciler.Reconcile(ctx, ev)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if record.Status != PayoutProcessing {
		t.Errorf("status = %s, want PROCESSING", record.Status)
	}
}

func TestReconcileRejections(t *testing.T) {
	testCases := []struct {
		name    string
		event   ExternalPayoutEvent
		wantErr error
	}{
		{
			name:    "unknown status",
			event:   ExternalPayoutEvent{OpportunityID: "opp-1", ClientID: "alice", PaymentType: "value", Status: "SETTLED"},
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "no addressing fields",
			event:   ExternalPayoutEvent{Status: "PAID"},
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown transaction and no key",
			event:   ExternalPayoutEvent{TransactionID: "txn-missing", Status: "PAID"},
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown client",
			event:   ExternalPayoutEvent{OpportunityID: "opp-1", ClientID: "nobody", PaymentType: "value", Status: "PAID"},
			wantErr: ErrNotFound,
		},
	}

	store := NewMemStore()
	distributeFixture(t, store)
	reconciler := newTestReconciler(store)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reconciler.Reconcile(context.Background(), tc.event)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

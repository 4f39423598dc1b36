package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"payout-ledger/internal/events"
	"payout-ledger/internal/money"
)

// ============================================================================
// SHARED TEST FIXTURES
// ============================================================================

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestEngine(store *MemStore) *DistributionEngine {
	return NewDistributionEngine(store, events.NewEventBus(), testLogger())
}

func newTestService(store *MemStore, maxRetries int) *Service {
	return NewService(store, events.NewEventBus(), testLogger(), maxRetries)
}

func seedOpportunity(store *MemStore, id string, value money.Amount) {
	store.PutOpportunity(&Opportunity{
		ID:                 id,
		TenantID:           "tenant-1",
		Name:               "Test Opportunity",
		Value:              value,
		ValuePaymentStatus: UnitPending,
	})
}

func seedMember(store *MemStore, opportunityID, clientID string, points money.BasisPoints, delayDays int) {
	store.AddMember(context.Background(), &OpportunityMember{
		ID:                     "member-" + clientID,
		OpportunityID:          opportunityID,
		ClientID:               clientID,
		Role:                   "partner",
		DefaultSplitPoints:     points,
		DefaultPayoutDelayDays: delayDays,
		IsActive:               true,
	})
}

func seedReceivedUnit(store *MemStore, opportunityID, unitID string, amount money.Amount, received time.Time) {
	store.PutPaymentUnit(&PaymentUnit{
		ID:            unitID,
		OpportunityID: opportunityID,
		Type:          UnitTypeValue,
		Amount:        amount,
		ReceivedDate:  &received,
		Status:        UnitReceived,
	})
}

func mustDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

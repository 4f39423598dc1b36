package ledger

import (
	"context"
	"time"
)

// Store is the persistence boundary of the ledger core. The Postgres
// implementation lives in internal/database; an in-memory implementation
// backs the unit tests.
//
// The three write methods that carry accounting invariants are conditional:
// CreateDistribution is keyed by (unit, distributionVersion) and inserts all
// records or none, ApplyPayoutOutcome is a compare-and-swap on the record's
// status, and SupersedeDistribution bumps the unit's version exactly once.
// Losing writers observe the existing state instead of reapplying effects.
// Aggregate counters (member totalEarned/totalPending, opportunity totals)
// move in the same transaction as the record write they derive from.
type Store interface {
	// Opportunities.
	GetOpportunity(ctx context.Context, opportunityID string) (*Opportunity, error)

	// Members.
	ListMembers(ctx context.Context, opportunityID string, activeOnly bool) ([]OpportunityMember, error)
	GetMember(ctx context.Context, opportunityID, clientID string) (*OpportunityMember, error)
	AddMember(ctx context.Context, member *OpportunityMember) error
	UpdateMember(ctx context.Context, member *OpportunityMember) error
	DeactivateMember(ctx context.Context, opportunityID, clientID string) (*OpportunityMember, error)

	// Payment units.
	GetPaymentUnit(ctx context.Context, unitID string) (*PaymentUnit, error)
	FindPaymentUnit(ctx context.Context, opportunityID string, unitType UnitType, scheduleIndex int, dueDate *time.Time) (*PaymentUnit, error)
	ListReceivedUndistributed(ctx context.Context, opportunityID string) ([]PaymentUnit, error)
	// MarkUnitReceived moves a PENDING unit to RECEIVED. Calling it on a
	// unit already RECEIVED is an idempotent no-op; any other status is an
	// error.
	MarkUnitReceived(ctx context.Context, unitID string, receivedDate time.Time) (*PaymentUnit, error)

	// CreateDistribution atomically inserts every record of one
	// distribution, marks the unit DISTRIBUTED, and applies the pending
	// aggregates. If records already exist for the unit's current
	// distribution version it returns them unchanged with created=false.
	CreateDistribution(ctx context.Context, unit *PaymentUnit, records []PayoutRecord) (result []PayoutRecord, created bool, err error)

	// SupersedeDistribution cancels the non-terminal records of the unit's
	// current version, marks all of that version's records superseded, and
	// increments the unit's distribution version, all atomically. The
	// conditional write is keyed on fromVersion.
	SupersedeDistribution(ctx context.Context, unitID string, fromVersion int) (*PaymentUnit, error)

	// Payout records.
	GetPayoutRecord(ctx context.Context, recordID string) (*PayoutRecord, error)
	FindPayoutByKey(ctx context.Context, opportunityID, unitID, clientID string, version int) (*PayoutRecord, error)
	FindPayoutByTransactionID(ctx context.Context, transactionID string) (*PayoutRecord, error)
	ListPayoutsByOpportunity(ctx context.Context, opportunityID string) ([]PayoutRecord, error)
	ListPayoutsByMember(ctx context.Context, clientID string) ([]PayoutRecord, error)
	// ListDuePayouts returns PENDING records whose payout date is at or
	// before asOf, oldest first.
	ListDuePayouts(ctx context.Context, asOf time.Time, limit int) ([]PayoutRecord, error)

	// ApplyPayoutOutcome transitions a record from expectedStatus to
	// outcome.Status and moves the owning member's aggregates in the same
	// transaction. If the record's status is no longer expectedStatus the
	// write is skipped and the current record is returned with
	// applied=false.
	ApplyPayoutOutcome(ctx context.Context, recordID string, expectedStatus PayoutStatus, outcome PayoutOutcome) (record *PayoutRecord, applied bool, err error)
}

// Package ledger implements the revenue-split and payout-distribution core:
// effective split resolution, pre-distribution validation, the distribution
// algorithm, the payout record state machine, and reconciliation of external
// payout outcomes.
package ledger

import (
	"fmt"
	"time"

	"payout-ledger/internal/money"
)

// PayoutStatus is the lifecycle state of a single payout record.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"    // payout date in the future
	PayoutScheduled  PayoutStatus = "SCHEDULED"  // due, awaiting rail execution
	PayoutProcessing PayoutStatus = "PROCESSING" // rail execution in flight
	PayoutPaid       PayoutStatus = "PAID"       // terminal
	PayoutFailed     PayoutStatus = "FAILED"     // retryable until declared terminal
	PayoutCancelled  PayoutStatus = "CANCELLED"  // terminal
)

// payoutTransitions is the closed transition table. A status maps to the set
// of statuses it may move to; anything absent is an illegal transition.
var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:    {PayoutScheduled, PayoutCancelled},
	PayoutScheduled:  {PayoutProcessing, PayoutCancelled},
	PayoutProcessing: {PayoutPaid, PayoutFailed, PayoutCancelled},
	PayoutFailed:     {PayoutProcessing, PayoutCancelled},
	PayoutPaid:       {},
	PayoutCancelled:  {},
}

// ParsePayoutStatus validates an externally supplied status string.
func ParsePayoutStatus(s string) (PayoutStatus, error) {
	status := PayoutStatus(s)
	if _, ok := payoutTransitions[status]; !ok {
		return "", fmt.Errorf("%w: unknown payout status %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// CanTransition reports whether from -> to is a legal move in the payout
// state machine.
func CanTransition(from, to PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func (s PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[s]) == 0
}

// countsAsPending reports whether a record in this status contributes to a
// member's totalPending aggregate.
func (s PayoutStatus) countsAsPending() bool {
	switch s {
	case PayoutPending, PayoutScheduled, PayoutProcessing:
		return true
	}
	return false
}

// UnitStatus is the lifecycle state of a payment unit.
type UnitStatus string

const (
	UnitPending     UnitStatus = "PENDING"     // not yet received
	UnitReceived    UnitStatus = "RECEIVED"    // money arrived, distribution precondition
	UnitDistributed UnitStatus = "DISTRIBUTED" // payout records exist
	UnitPaid        UnitStatus = "PAID"        // terminal
	UnitCancelled   UnitStatus = "CANCELLED"   // terminal
)

// UnitType identifies which of the three receivables a payment unit is.
type UnitType string

const (
	UnitTypeValue     UnitType = "VALUE"     // the opportunity's lump-sum value
	UnitTypeSchedule  UnitType = "SCHEDULE"  // one item of the payment schedule
	UnitTypeRecurring UnitType = "RECURRING" // one recurring instalment
)

// Opportunity is the ledger's read/write projection of a CRM sales deal.
// The CRM owns identity and value; the ledger owns the payment aggregates.
type Opportunity struct {
	ID                   string       `json:"id"`
	TenantID             string       `json:"tenant_id"`
	Name                 string       `json:"name"`
	Value                money.Amount `json:"value"`
	TotalPaidAmount      money.Amount `json:"total_paid_amount"`
	TotalScheduledAmount money.Amount `json:"total_scheduled_amount"`
	ValuePaymentStatus   UnitStatus   `json:"value_payment_status"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// OpportunityMember is a party entitled to a share of an opportunity's
// proceeds. Members are soft-deactivated, never deleted, once they have
// payout history.
type OpportunityMember struct {
	ID                    string            `json:"id"`
	OpportunityID         string            `json:"opportunity_id"`
	ClientID              string            `json:"client_id"`
	Role                  string            `json:"role"`
	DefaultSplitPoints    money.BasisPoints `json:"default_split_basis_points"`
	DefaultPayoutDelayDays int              `json:"default_payout_delay_days"`
	IsActive              bool              `json:"is_active"`
	TotalEarned           money.Amount      `json:"total_earned"`
	TotalPending          money.Amount      `json:"total_pending"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// SplitOverride is one entry of a unit-level split override. When a unit
// carries a non-empty override list it supersedes member defaults for that
// unit only.
type SplitOverride struct {
	ClientID        string            `json:"client_id"`
	Points          money.BasisPoints `json:"basis_points"`
	PayoutDelayDays int               `json:"payout_delay_days"`
}

// PaymentUnit is one receivable: the lump-sum value, a schedule item, or a
// recurring instalment.
type PaymentUnit struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	Type          UnitType        `json:"type"`
	ScheduleIndex int             `json:"schedule_index"` // position for SCHEDULE units
	Amount        money.Amount    `json:"amount"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	ReceivedDate  *time.Time      `json:"received_date,omitempty"`
	Status        UnitStatus      `json:"status"`
	MemberSplits  []SplitOverride `json:"member_splits,omitempty"`
	// DistributionVersion is the version the next distribution will write.
	// It starts at 1 and increments when a distribution is superseded.
	DistributionVersion int       `json:"distribution_version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// EffectiveSplit is one member's resolved entitlement on a unit, after
// override-vs-default resolution.
type EffectiveSplit struct {
	ClientID        string
	Points          money.BasisPoints
	PayoutDelayDays int
}

// PayoutRecord is the ledger's unit of truth: one member's realized share of
// one payment unit at one distribution version. Records are never deleted;
// corrections append records at a higher version.
type PayoutRecord struct {
	ID                  string            `json:"id"`
	OpportunityID       string            `json:"opportunity_id"`
	PaymentUnitID       string            `json:"payment_unit_id"`
	ClientID            string            `json:"client_id"`
	DistributionVersion int               `json:"distribution_version"`
	Points              money.BasisPoints `json:"basis_points"`
	Amount              money.Amount      `json:"amount"`
	PayoutDelayDays     int               `json:"payout_delay_days"`
	PayoutDate          time.Time         `json:"payout_date"`
	PaidOutDate         *time.Time        `json:"paid_out_date,omitempty"`
	Status              PayoutStatus      `json:"status"`
	Superseded          bool              `json:"superseded"`
	TransactionID       *string           `json:"transaction_id,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	RetryCount          int               `json:"retry_count"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// IdempotencyKey returns the natural key a distribution write is conditioned
// on.
func (r *PayoutRecord) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", r.OpportunityID, r.PaymentUnitID, r.ClientID, r.DistributionVersion)
}

// PayoutOutcome carries the fields of an external execution report applied to
// a payout record.
type PayoutOutcome struct {
	Status        PayoutStatus
	PaidOutDate   *time.Time
	TransactionID *string
	Notes         string
}

// AggregateDelta computes how a status transition moves the owning member's
// totalEarned/totalPending aggregates. It is applied in the same transaction
// as the record write so the aggregates can never drift from the records.
func AggregateDelta(from, to PayoutStatus, amount money.Amount) (earned, pending money.Amount) {
	if from.countsAsPending() && !to.countsAsPending() {
		pending = -amount
	}
	if !from.countsAsPending() && to.countsAsPending() {
		pending = amount
	}
	if to == PayoutPaid && from != PayoutPaid {
		earned = amount
	}
	return earned, pending
}

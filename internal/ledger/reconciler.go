package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExternalPayoutEvent is an execution report delivered by the payment-rail
// integration. Records are addressed by transaction ID when the rail knows
// it, otherwise by the ledger's natural key.
type ExternalPayoutEvent struct {
	TransactionID string     `json:"transaction_id,omitempty"`
	OpportunityID string     `json:"opportunity_id,omitempty"`
	ClientID      string     `json:"client_id,omitempty"`
	PaymentType   string     `json:"payment_type,omitempty"`
	Status        string     `json:"status"`
	PaidOutDate   *time.Time `json:"paid_out_date,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// Reconciler applies external payout-execution outcomes back onto payout
// records. External rails commonly redeliver confirmations, so a duplicate
// event for an outcome already applied is a no-op.
type Reconciler struct {
	service *Service
	store   Store
	logger  zerolog.Logger
}

// NewReconciler creates a reconciler over the ledger service.
func NewReconciler(service *Service, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		service: service,
		store:   service.Store(),
		logger:  logger.With().Str("component", "payout_reconciler").Logger(),
	}
}

// Reconcile looks up the payout record the event addresses and applies the
// reported transition. It returns ErrNotFound when no record matches, which
// callers surface rather than swallow so a mis-addressed rail event is
// visible.
func (r *Reconciler) Reconcile(ctx context.Context, ev ExternalPayoutEvent) (*PayoutRecord, error) {
	status, err := ParsePayoutStatus(ev.Status)
	if err != nil {
		return nil, err
	}

	record, err := r.lookup(ctx, ev)
	if err != nil {
		return nil, err
	}

	outcome := PayoutOutcome{
		Status:      status,
		PaidOutDate: ev.PaidOutDate,
		Notes:       ev.Notes,
	}
	if ev.TransactionID != "" {
		outcome.TransactionID = &ev.TransactionID
	}

	updated, err := r.service.RecordPayoutOutcome(ctx, record.ID, outcome)
	if err != nil {
		// A redelivered event for a record already in a different
		// terminal state is a configuration or rail problem; an event
		// re-reporting the applied outcome never reaches here because
		// RecordPayoutOutcome treats it as a no-op.
		r.logger.Warn().Err(err).
			Str("record_id", record.ID).
			Str("reported_status", ev.Status).
			Msg("reconciliation rejected")
		return nil, err
	}
	return updated, nil
}

func (r *Reconciler) lookup(ctx context.Context, ev ExternalPayoutEvent) (*PayoutRecord, error) {
	if ev.TransactionID != "" {
		record, err := r.store.FindPayoutByTransactionID(ctx, ev.TransactionID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Fall through: first report for this transaction arrives before
		// the ledger has seen the ID, so address by key instead.
	}

	if ev.OpportunityID == "" || ev.ClientID == "" || ev.PaymentType == "" {
		return nil, fmt.Errorf("%w: event addresses no payout record", ErrNotFound)
	}
	sel, err := ParseUnitSelector(ev.PaymentType)
	if err != nil {
		return nil, err
	}
	unit, err := r.store.FindPaymentUnit(ctx, ev.OpportunityID, sel.Type, sel.ScheduleIndex, sel.DueDate)
	if err != nil {
		return nil, err
	}
	return r.store.FindPayoutByKey(ctx, ev.OpportunityID, unit.ID, ev.ClientID, unit.DistributionVersion)
}

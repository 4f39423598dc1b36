package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"payout-ledger/internal/events"
	"payout-ledger/internal/money"
)

// DistributionEngine turns a received payment unit into payout records, one
// per effective split, exactly once per distribution version.
type DistributionEngine struct {
	store     Store
	registry  *SplitRegistry
	validator *SplitValidator
	bus       *events.EventBus
	logger    zerolog.Logger

	// now is swappable so tests can pin the pending/scheduled boundary.
	now func() time.Time
}

// NewDistributionEngine creates an engine over the given store.
func NewDistributionEngine(store Store, bus *events.EventBus, logger zerolog.Logger) *DistributionEngine {
	registry := NewSplitRegistry(store)
	return &DistributionEngine{
		store:     store,
		registry:  registry,
		validator: NewSplitValidator(registry),
		bus:       bus,
		logger:    logger.With().Str("component", "distribution_engine").Logger(),
		now:       time.Now,
	}
}

// Validator exposes the engine's validator for standalone pre-checks.
func (e *DistributionEngine) Validator() *SplitValidator { return e.validator }

// Registry exposes the engine's split registry.
func (e *DistributionEngine) Registry() *SplitRegistry { return e.registry }

// Distribute computes and persists the payout records for a received unit.
// Repeated calls for the same unit and version return the existing records
// with created=false; concurrent callers race on a single conditional write
// and the loser observes the winner's records. Validation failures abort
// with nothing written. A partial allocation (splits under 100%) goes
// through only when the caller passes acceptPartial.
func (e *DistributionEngine) Distribute(ctx context.Context, unitID string, acceptPartial bool) ([]PayoutRecord, bool, error) {
	unit, err := e.store.GetPaymentUnit(ctx, unitID)
	if err != nil {
		return nil, false, err
	}

	switch unit.Status {
	case UnitReceived:
	case UnitDistributed:
		// Already distributed at the current version: idempotent no-op.
		existing, err := e.recordsForVersion(ctx, unit)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("%w: unit %s is %s", ErrUnitNotReceived, unit.ID, unit.Status)
	}
	if unit.ReceivedDate == nil {
		return nil, false, fmt.Errorf("%w: unit %s has no received date", ErrUnitNotReceived, unit.ID)
	}

	splits, err := e.registry.EffectiveSplits(ctx, unit)
	if err != nil {
		return nil, false, err
	}
	check := e.validator.Check(unit, splits)
	if check.Err != nil {
		return nil, false, check.Err
	}
	if len(check.Warnings) > 0 && !acceptPartial {
		return nil, false, fmt.Errorf("%w: configured %s", ErrPartialAllocation, check.TotalPoints)
	}

	records, err := e.buildRecords(unit, splits)
	if err != nil {
		return nil, false, err
	}

	result, created, err := e.store.CreateDistribution(ctx, unit, records)
	if err != nil {
		return nil, false, err
	}
	if created {
		e.logger.Info().
			Str("opportunity_id", unit.OpportunityID).
			Str("unit_id", unit.ID).
			Int("version", unit.DistributionVersion).
			Int("records", len(result)).
			Str("amount", unit.Amount.String()).
			Msg("distributed payment unit")
		e.bus.Publish(events.Event{
			Type: events.EventSplitsDistributed,
			Data: map[string]interface{}{
				"opportunity_id": unit.OpportunityID,
				"unit_id":        unit.ID,
				"version":        unit.DistributionVersion,
				"records":        len(result),
			},
		})
	}
	return result, created, nil
}

// AutoDistribute runs Distribute over every received-but-undistributed unit
// of an opportunity. It is safe to call repeatedly; units that fail
// validation are skipped and reported, not fatal to the rest.
func (e *DistributionEngine) AutoDistribute(ctx context.Context, opportunityID string, acceptPartial bool) ([]PayoutRecord, []error, error) {
	units, err := e.store.ListReceivedUndistributed(ctx, opportunityID)
	if err != nil {
		return nil, nil, err
	}

	var all []PayoutRecord
	var skipped []error
	for i := range units {
		records, _, err := e.Distribute(ctx, units[i].ID, acceptPartial)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("unit %s: %w", units[i].ID, err))
			e.logger.Warn().Err(err).Str("unit_id", units[i].ID).Msg("skipping unit during auto-distribution")
			continue
		}
		all = append(all, records...)
	}
	return all, skipped, nil
}

// Redistribute supersedes the unit's current distribution and runs a fresh
// one at the next version. Prior records are cancelled where still live and
// kept as history, never deleted.
func (e *DistributionEngine) Redistribute(ctx context.Context, unitID string, acceptPartial bool) ([]PayoutRecord, error) {
	unit, err := e.store.GetPaymentUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.Status != UnitDistributed {
		return nil, fmt.Errorf("%w: unit %s is %s, nothing to supersede", ErrUnitNotReceived, unit.ID, unit.Status)
	}

	unit, err = e.store.SupersedeDistribution(ctx, unitID, unit.DistributionVersion)
	if err != nil {
		return nil, err
	}
	e.bus.Publish(events.Event{
		Type: events.EventDistributionSuperseded,
		Data: map[string]interface{}{
			"unit_id": unit.ID,
			"version": unit.DistributionVersion,
		},
	})

	records, _, err := e.Distribute(ctx, unitID, acceptPartial)
	return records, err
}

func (e *DistributionEngine) buildRecords(unit *PaymentUnit, splits []EffectiveSplit) ([]PayoutRecord, error) {
	portions := make([]money.Portion, len(splits))
	for i, s := range splits {
		portions[i] = money.Portion{Key: s.ClientID, Points: s.Points}
	}
	shares, err := money.Allocate(unit.Amount, portions)
	if err != nil {
		return nil, err
	}

	now := e.now()
	records := make([]PayoutRecord, len(splits))
	for i, s := range splits {
		payoutDate := unit.ReceivedDate.AddDate(0, 0, s.PayoutDelayDays)
		status := PayoutScheduled
		if payoutDate.After(now) {
			status = PayoutPending
		}
		records[i] = PayoutRecord{
			ID:                  uuid.New().String(),
			OpportunityID:       unit.OpportunityID,
			PaymentUnitID:       unit.ID,
			ClientID:            s.ClientID,
			DistributionVersion: unit.DistributionVersion,
			Points:              s.Points,
			Amount:              shares[i],
			PayoutDelayDays:     s.PayoutDelayDays,
			PayoutDate:          payoutDate,
			Status:              status,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	}
	return records, nil
}

func (e *DistributionEngine) recordsForVersion(ctx context.Context, unit *PaymentUnit) ([]PayoutRecord, error) {
	all, err := e.store.ListPayoutsByOpportunity(ctx, unit.OpportunityID)
	if err != nil {
		return nil, err
	}
	var records []PayoutRecord
	for _, r := range all {
		if r.PaymentUnitID == unit.ID && r.DistributionVersion == unit.DistributionVersion {
			records = append(records, r)
		}
	}
	return records, nil
}

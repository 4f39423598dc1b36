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

// casAttempts bounds the compare-and-swap retry loop on outcome writes.
const casAttempts = 3

// Service is the payout ledger: member management, payment-unit status, the
// payout record state machine, and the aggregate read paths. All writes that
// touch aggregates go through the store's conditional operations so the
// counters can never drift from the records they derive from.
type Service struct {
	store  Store
	bus    *events.EventBus
	logger zerolog.Logger

	// maxRetries bounds FAILED -> PROCESSING re-entries; past it the record
	// stays FAILED pending manual resolution. Zero means unbounded.
	maxRetries int

	now func() time.Time
}

// NewService creates a ledger service.
func NewService(store Store, bus *events.EventBus, logger zerolog.Logger, maxRetries int) *Service {
	return &Service{
		store:      store,
		bus:        bus,
		logger:     logger.With().Str("component", "payout_ledger").Logger(),
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Store exposes the underlying store for composition with the engine.
func (s *Service) Store() Store { return s.store }

// --- MEMBERS ---

// MemberInput carries the caller-supplied fields of a member write.
type MemberInput struct {
	ClientID        string  `json:"client_id"`
	Role            string  `json:"role"`
	SplitPercentage float64 `json:"split_percentage"`
	PayoutDelayDays int     `json:"payout_delay_days"`
}

// AddMember registers a new active member on an opportunity.
func (s *Service) AddMember(ctx context.Context, opportunityID string, in MemberInput) (*OpportunityMember, error) {
	if in.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if in.PayoutDelayDays < 0 {
		return nil, fmt.Errorf("payout delay cannot be negative")
	}
	points, err := money.BasisPointsFromPercent(in.SplitPercentage)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetOpportunity(ctx, opportunityID); err != nil {
		return nil, err
	}

	now := s.now()
	member := &OpportunityMember{
		ID:                     uuid.New().String(),
		OpportunityID:          opportunityID,
		ClientID:               in.ClientID,
		Role:                   in.Role,
		DefaultSplitPoints:     points,
		DefaultPayoutDelayDays: in.PayoutDelayDays,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.AddMember(ctx, member); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("opportunity_id", opportunityID).
		Str("client_id", in.ClientID).
		Str("split", points.String()).
		Msg("member added")
	s.bus.Publish(events.Event{
		Type: events.EventMemberAdded,
		Data: map[string]interface{}{"opportunity_id": opportunityID, "client_id": in.ClientID},
	})
	return member, nil
}

// UpdateMember changes a member's role, default split, or payout delay.
// Existing payout records keep the percentages they were distributed with.
func (s *Service) UpdateMember(ctx context.Context, opportunityID, clientID string, in MemberInput) (*OpportunityMember, error) {
	member, err := s.store.GetMember(ctx, opportunityID, clientID)
	if err != nil {
		return nil, err
	}
	if in.PayoutDelayDays < 0 {
		return nil, fmt.Errorf("payout delay cannot be negative")
	}
	points, err := money.BasisPointsFromPercent(in.SplitPercentage)
	if err != nil {
		return nil, err
	}

	member.Role = in.Role
	member.DefaultSplitPoints = points
	member.DefaultPayoutDelayDays = in.PayoutDelayDays
	member.UpdatedAt = s.now()
	if err := s.store.UpdateMember(ctx, member); err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{
		Type: events.EventMemberUpdated,
		Data: map[string]interface{}{"opportunity_id": opportunityID, "client_id": clientID},
	})
	return member, nil
}

// RemoveMember soft-deactivates a member. History is kept; future
// distributions simply stop including them.
func (s *Service) RemoveMember(ctx context.Context, opportunityID, clientID string) (*OpportunityMember, error) {
	member, err := s.store.DeactivateMember(ctx, opportunityID, clientID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("opportunity_id", opportunityID).
		Str("client_id", clientID).
		Msg("member deactivated")
	s.bus.Publish(events.Event{
		Type: events.EventMemberDeactivated,
		Data: map[string]interface{}{"opportunity_id": opportunityID, "client_id": clientID},
	})
	return member, nil
}

// ListMembers returns an opportunity's members, active and inactive.
func (s *Service) ListMembers(ctx context.Context, opportunityID string) ([]OpportunityMember, error) {
	return s.store.ListMembers(ctx, opportunityID, false)
}

// --- PAYMENT UNITS ---

// MarkUnitReceived resolves a payment-type selector and marks the unit
// received, the precondition for distribution. Calling it again for an
// already-received unit is a no-op.
func (s *Service) MarkUnitReceived(ctx context.Context, opportunityID, paymentType string, receivedDate *time.Time) (*PaymentUnit, error) {
	sel, err := ParseUnitSelector(paymentType)
	if err != nil {
		return nil, err
	}
	unit, err := s.store.FindPaymentUnit(ctx, opportunityID, sel.Type, sel.ScheduleIndex, sel.DueDate)
	if err != nil {
		return nil, err
	}

	when := s.now()
	if receivedDate != nil {
		when = *receivedDate
	}
	updated, err := s.store.MarkUnitReceived(ctx, unit.ID, when)
	if err != nil {
		return nil, err
	}

	s.bus.PublishUnitReceived(opportunityID, updated.ID, updated.Amount.Cents())
	return updated, nil
}

// --- PAYOUT OUTCOMES ---

// RecordPayoutOutcome applies a status transition to a payout record and, in
// the same transaction, moves the owning member's totalEarned/totalPending.
// Replaying the same outcome is a no-op returning the current record;
// concurrent writers race on a compare-and-swap and the loser re-evaluates
// against the winner's result.
func (s *Service) RecordPayoutOutcome(ctx context.Context, recordID string, outcome PayoutOutcome) (*PayoutRecord, error) {
	if _, err := ParsePayoutStatus(string(outcome.Status)); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		record, err := s.store.GetPayoutRecord(ctx, recordID)
		if err != nil {
			return nil, err
		}

		if record.Status == outcome.Status {
			// Duplicate delivery of an outcome already applied.
			return record, nil
		}
		if !CanTransition(record.Status, outcome.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, record.Status, outcome.Status)
		}
		if record.Status == PayoutFailed && outcome.Status == PayoutProcessing &&
			s.maxRetries > 0 && record.RetryCount >= s.maxRetries {
			return nil, fmt.Errorf("%w: record %s exhausted %d retries, manual resolution required",
				ErrIllegalTransition, recordID, s.maxRetries)
		}

		updated, applied, err := s.store.ApplyPayoutOutcome(ctx, recordID, record.Status, outcome)
		if err != nil {
			return nil, err
		}
		if !applied {
			// Lost the conditional write; re-evaluate against the
			// winner's state.
			continue
		}

		s.logger.Info().
			Str("record_id", recordID).
			Str("client_id", updated.ClientID).
			Str("from", string(record.Status)).
			Str("to", string(updated.Status)).
			Str("amount", updated.Amount.String()).
			Msg("payout outcome recorded")
		s.bus.PublishPayoutStatusChanged(updated.ID, updated.OpportunityID, updated.ClientID,
			string(record.Status), string(updated.Status))
		return updated, nil
	}
	return nil, fmt.Errorf("record %s: conditional write contention, giving up", recordID)
}

// UpdatePayoutStatus is the opportunity-scoped form of RecordPayoutOutcome:
// it addresses the record by (opportunity, payment type, client) at the
// unit's current distribution version.
func (s *Service) UpdatePayoutStatus(ctx context.Context, opportunityID, clientID, paymentType string, outcome PayoutOutcome) (*PayoutRecord, error) {
	sel, err := ParseUnitSelector(paymentType)
	if err != nil {
		return nil, err
	}
	unit, err := s.store.FindPaymentUnit(ctx, opportunityID, sel.Type, sel.ScheduleIndex, sel.DueDate)
	if err != nil {
		return nil, err
	}
	record, err := s.store.FindPayoutByKey(ctx, opportunityID, unit.ID, clientID, unit.DistributionVersion)
	if err != nil {
		return nil, err
	}
	return s.RecordPayoutOutcome(ctx, record.ID, outcome)
}

// MarkDuePayouts moves every PENDING record whose payout date has arrived to
// SCHEDULED. The scheduler drives this on a clock tick; the operation is
// idempotent because a record already moved is skipped by the conditional
// write.
func (s *Service) MarkDuePayouts(ctx context.Context, asOf time.Time, limit int) (int, error) {
	due, err := s.store.ListDuePayouts(ctx, asOf, limit)
	if err != nil {
		return 0, err
	}

	marked := 0
	for i := range due {
		_, err := s.RecordPayoutOutcome(ctx, due[i].ID, PayoutOutcome{Status: PayoutScheduled})
		if err != nil {
			s.logger.Warn().Err(err).Str("record_id", due[i].ID).Msg("failed to mark payout due")
			continue
		}
		marked++
		s.bus.Publish(events.Event{
			Type: events.EventPayoutDue,
			Data: map[string]interface{}{"record_id": due[i].ID, "client_id": due[i].ClientID},
		})
	}
	return marked, nil
}

// --- READ PATHS ---

// ListPayoutsByOpportunity returns an opportunity's payout records ordered by
// payout date.
func (s *Service) ListPayoutsByOpportunity(ctx context.Context, opportunityID string) ([]PayoutRecord, error) {
	return s.store.ListPayoutsByOpportunity(ctx, opportunityID)
}

// ListPayoutsByMember returns a member's payout records across opportunities,
// ordered by payout date.
func (s *Service) ListPayoutsByMember(ctx context.Context, clientID string) ([]PayoutRecord, error) {
	return s.store.ListPayoutsByMember(ctx, clientID)
}

// GetMember returns one member with its running aggregates.
func (s *Service) GetMember(ctx context.Context, opportunityID, clientID string) (*OpportunityMember, error) {
	return s.store.GetMember(ctx, opportunityID, clientID)
}

// GetOpportunity returns the opportunity with its payment aggregates.
func (s *Service) GetOpportunity(ctx context.Context, opportunityID string) (*Opportunity, error) {
	return s.store.GetOpportunity(ctx, opportunityID)
}

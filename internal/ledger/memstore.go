package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"payout-ledger/internal/money"
)

// MemStore is a mutex-guarded in-memory Store. It mirrors the conditional
// write semantics of the Postgres repository and backs the unit tests; the
// ledger-admin tool also uses it for dry runs.
type MemStore struct {
	mu            sync.Mutex
	opportunities map[string]*Opportunity
	members       map[string]*OpportunityMember // key opportunityID:clientID
	units         map[string]*PaymentUnit
	records       map[string]*PayoutRecord

	// FailNextCreate makes the next CreateDistribution fail after
	// validation, for exercising the nothing-written guarantee.
	FailNextCreate bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		opportunities: make(map[string]*Opportunity),
		members:       make(map[string]*OpportunityMember),
		units:         make(map[string]*PaymentUnit),
		records:       make(map[string]*PayoutRecord),
	}
}

func memberKey(opportunityID, clientID string) string {
	return opportunityID + ":" + clientID
}

// PutOpportunity seeds or replaces an opportunity.
func (m *MemStore) PutOpportunity(o *Opportunity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.opportunities[o.ID] = &cp
}

// PutPaymentUnit seeds or replaces a payment unit. A zero distribution
// version is initialized to 1.
func (m *MemStore) PutPaymentUnit(u *PaymentUnit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	if cp.DistributionVersion == 0 {
		cp.DistributionVersion = 1
	}
	m.units[u.ID] = &cp
}

func (m *MemStore) GetOpportunity(ctx context.Context, opportunityID string) (*Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opportunities[opportunityID]
	if !ok {
		return nil, fmt.Errorf("%w: opportunity %s", ErrNotFound, opportunityID)
	}
	cp := *o
	return &cp, nil
}

func (m *MemStore) ListMembers(ctx context.Context, opportunityID string, activeOnly bool) ([]OpportunityMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OpportunityMember
	for _, member := range m.members {
		if member.OpportunityID != opportunityID {
			continue
		}
		if activeOnly && !member.IsActive {
			continue
		}
		out = append(out, *member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (m *MemStore) GetMember(ctx context.Context, opportunityID, clientID string) (*OpportunityMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[memberKey(opportunityID, clientID)]
	if !ok {
		return nil, fmt.Errorf("%w: member %s on opportunity %s", ErrNotFound, clientID, opportunityID)
	}
	cp := *member
	return &cp, nil
}

func (m *MemStore) AddMember(ctx context.Context, member *OpportunityMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(member.OpportunityID, member.ClientID)
	if _, exists := m.members[key]; exists {
		return fmt.Errorf("member %s already exists on opportunity %s", member.ClientID, member.OpportunityID)
	}
	cp := *member
	m.members[key] = &cp
	return nil
}

func (m *MemStore) UpdateMember(ctx context.Context, member *OpportunityMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(member.OpportunityID, member.ClientID)
	existing, ok := m.members[key]
	if !ok {
		return fmt.Errorf("%w: member %s", ErrNotFound, member.ClientID)
	}
	cp := *member
	// Aggregates are owned by the store, not the caller.
	cp.TotalEarned = existing.TotalEarned
	cp.TotalPending = existing.TotalPending
	m.members[key] = &cp
	return nil
}

func (m *MemStore) DeactivateMember(ctx context.Context, opportunityID, clientID string) (*OpportunityMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[memberKey(opportunityID, clientID)]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", ErrNotFound, clientID)
	}
	member.IsActive = false
	member.UpdatedAt = time.Now()
	cp := *member
	return &cp, nil
}

func (m *MemStore) GetPaymentUnit(ctx context.Context, unitID string) (*PaymentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: payment unit %s", ErrNotFound, unitID)
	}
	cp := *unit
	return &cp, nil
}

func (m *MemStore) FindPaymentUnit(ctx context.Context, opportunityID string, unitType UnitType, scheduleIndex int, dueDate *time.Time) (*PaymentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, unit := range m.units {
		if unit.OpportunityID != opportunityID || unit.Type != unitType {
			continue
		}
		switch unitType {
		case UnitTypeSchedule:
			if unit.ScheduleIndex != scheduleIndex {
				continue
			}
		case UnitTypeRecurring:
			if dueDate == nil || unit.DueDate == nil || !unit.DueDate.Equal(*dueDate) {
				continue
			}
		}
		cp := *unit
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: no %s unit on opportunity %s", ErrNotFound, unitType, opportunityID)
}

func (m *MemStore) ListReceivedUndistributed(ctx context.Context, opportunityID string) ([]PaymentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PaymentUnit
	for _, unit := range m.units {
		if unit.OpportunityID == opportunityID && unit.Status == UnitReceived {
			out = append(out, *unit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) MarkUnitReceived(ctx context.Context, unitID string, receivedDate time.Time) (*PaymentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: payment unit %s", ErrNotFound, unitID)
	}
	switch unit.Status {
	case UnitReceived:
		// Redelivered payment confirmation.
	case UnitPending:
		unit.Status = UnitReceived
		unit.ReceivedDate = &receivedDate
		unit.UpdatedAt = time.Now()
		if unit.Type == UnitTypeValue {
			if opp, ok := m.opportunities[unit.OpportunityID]; ok {
				opp.ValuePaymentStatus = UnitReceived
			}
		}
	default:
		return nil, fmt.Errorf("cannot mark %s unit %s received", unit.Status, unitID)
	}
	cp := *unit
	return &cp, nil
}

func (m *MemStore) CreateDistribution(ctx context.Context, unit *PaymentUnit, records []PayoutRecord) ([]PayoutRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.units[unit.ID]
	if !ok {
		return nil, false, fmt.Errorf("%w: payment unit %s", ErrNotFound, unit.ID)
	}

	// Conditional write: if the version already has records, the unit was
	// distributed by a concurrent caller.
	existing := m.recordsForLocked(unit.ID, unit.DistributionVersion)
	if len(existing) > 0 || stored.Status == UnitDistributed {
		return existing, false, nil
	}

	if m.FailNextCreate {
		m.FailNextCreate = false
		return nil, false, fmt.Errorf("simulated persistence failure")
	}

	var distributed int64
	for i := range records {
		cp := records[i]
		m.records[cp.ID] = &cp
		distributed += cp.Amount.Cents()

		if member, ok := m.members[memberKey(cp.OpportunityID, cp.ClientID)]; ok {
			member.TotalPending += cp.Amount
		}
	}

	stored.Status = UnitDistributed
	stored.UpdatedAt = time.Now()
	if opp, ok := m.opportunities[stored.OpportunityID]; ok {
		opp.TotalPaidAmount += stored.Amount
		opp.TotalScheduledAmount += money.Amount(distributed)
		if stored.Type == UnitTypeValue {
			opp.ValuePaymentStatus = UnitDistributed
		}
		opp.UpdatedAt = time.Now()
	}

	return m.recordsForLocked(unit.ID, unit.DistributionVersion), true, nil
}

func (m *MemStore) SupersedeDistribution(ctx context.Context, unitID string, fromVersion int) (*PaymentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unit, ok := m.units[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: payment unit %s", ErrNotFound, unitID)
	}
	if unit.DistributionVersion != fromVersion {
		// Lost the race; a concurrent supersede already moved the version.
		cp := *unit
		return &cp, nil
	}

	for _, rec := range m.records {
		if rec.PaymentUnitID != unitID || rec.DistributionVersion != fromVersion {
			continue
		}
		rec.Superseded = true
		if !rec.Status.IsTerminal() {
			m.applyAggregatesLocked(rec, rec.Status, PayoutCancelled)
			rec.Status = PayoutCancelled
			rec.Notes = appendNote(rec.Notes, "superseded by redistribution")
			rec.UpdatedAt = time.Now()
		}
	}

	unit.DistributionVersion++
	unit.Status = UnitReceived
	unit.UpdatedAt = time.Now()
	cp := *unit
	return &cp, nil
}

func (m *MemStore) GetPayoutRecord(ctx context.Context, recordID string) (*PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, fmt.Errorf("%w: payout record %s", ErrNotFound, recordID)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) FindPayoutByKey(ctx context.Context, opportunityID, unitID, clientID string, version int) (*PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.OpportunityID == opportunityID && rec.PaymentUnitID == unitID &&
			rec.ClientID == clientID && rec.DistributionVersion == version {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: payout record for %s on unit %s v%d", ErrNotFound, clientID, unitID, version)
}

func (m *MemStore) FindPayoutByTransactionID(ctx context.Context, transactionID string) (*PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.TransactionID != nil && *rec.TransactionID == transactionID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: payout record with transaction %s", ErrNotFound, transactionID)
}

func (m *MemStore) ListPayoutsByOpportunity(ctx context.Context, opportunityID string) ([]PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PayoutRecord
	for _, rec := range m.records {
		if rec.OpportunityID == opportunityID {
			out = append(out, *rec)
		}
	}
	sortByPayoutDate(out)
	return out, nil
}

func (m *MemStore) ListPayoutsByMember(ctx context.Context, clientID string) ([]PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PayoutRecord
	for _, rec := range m.records {
		if rec.ClientID == clientID {
			out = append(out, *rec)
		}
	}
	sortByPayoutDate(out)
	return out, nil
}

func (m *MemStore) ListDuePayouts(ctx context.Context, asOf time.Time, limit int) ([]PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PayoutRecord
	for _, rec := range m.records {
		if rec.Status == PayoutPending && !rec.Superseded && !rec.PayoutDate.After(asOf) {
			out = append(out, *rec)
		}
	}
	sortByPayoutDate(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ApplyPayoutOutcome(ctx context.Context, recordID string, expectedStatus PayoutStatus, outcome PayoutOutcome) (*PayoutRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, false, fmt.Errorf("%w: payout record %s", ErrNotFound, recordID)
	}
	if rec.Status != expectedStatus {
		cp := *rec
		return &cp, false, nil
	}

	m.applyAggregatesLocked(rec, rec.Status, outcome.Status)
	if rec.Status == PayoutFailed && outcome.Status == PayoutProcessing {
		rec.RetryCount++
	}
	rec.Status = outcome.Status
	if outcome.PaidOutDate != nil {
		rec.PaidOutDate = outcome.PaidOutDate
	}
	if outcome.TransactionID != nil {
		rec.TransactionID = outcome.TransactionID
	}
	if outcome.Notes != "" {
		rec.Notes = appendNote(rec.Notes, outcome.Notes)
	}
	rec.UpdatedAt = time.Now()

	cp := *rec
	return &cp, true, nil
}

func (m *MemStore) recordsForLocked(unitID string, version int) []PayoutRecord {
	var out []PayoutRecord
	for _, rec := range m.records {
		if rec.PaymentUnitID == unitID && rec.DistributionVersion == version {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (m *MemStore) applyAggregatesLocked(rec *PayoutRecord, from, to PayoutStatus) {
	member, ok := m.members[memberKey(rec.OpportunityID, rec.ClientID)]
	if !ok {
		return
	}
	earned, pending := AggregateDelta(from, to, rec.Amount)
	member.TotalEarned += earned
	member.TotalPending += pending
	member.UpdatedAt = time.Now()
}

func sortByPayoutDate(records []PayoutRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].PayoutDate.Equal(records[j].PayoutDate) {
			return records[i].PayoutDate.Before(records[j].PayoutDate)
		}
		return records[i].ClientID < records[j].ClientID
	})
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}

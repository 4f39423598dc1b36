package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/money"
)

// Repository provides data access methods. It implements ledger.Store.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetDB returns the underlying DB instance
func (r *Repository) GetDB() *DB {
	return r.db
}

// ============================================================================
// OPPORTUNITIES
// ============================================================================

// CreateOpportunity inserts an opportunity projection synced from the CRM.
func (r *Repository) CreateOpportunity(ctx context.Context, o *ledger.Opportunity) error {
	query := `
		INSERT INTO opportunities (id, tenant_id, name, value_cents, value_payment_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	status := o.ValuePaymentStatus
	if status == "" {
		status = ledger.UnitPending
	}
	return r.db.Pool.QueryRow(ctx, query,
		o.ID, o.TenantID, o.Name, o.Value.Cents(), string(status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

// GetOpportunity retrieves one opportunity with its payment aggregates.
func (r *Repository) GetOpportunity(ctx context.Context, opportunityID string) (*ledger.Opportunity, error) {
	query := `
		SELECT id, tenant_id, name, value_cents, total_paid_cents,
			total_scheduled_cents, value_payment_status, created_at, updated_at
		FROM opportunities
		WHERE id = $1`

	var o ledger.Opportunity
	var valueCents, paidCents, scheduledCents int64
	var status string
	err := r.db.Pool.QueryRow(ctx, query, opportunityID).Scan(
		&o.ID, &o.TenantID, &o.Name, &valueCents, &paidCents,
		&scheduledCents, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: opportunity %s", ledger.ErrNotFound, opportunityID)
		}
		return nil, err
	}
	o.Value = money.Amount(valueCents)
	o.TotalPaidAmount = money.Amount(paidCents)
	o.TotalScheduledAmount = money.Amount(scheduledCents)
	o.ValuePaymentStatus = ledger.UnitStatus(status)
	return &o, nil
}

// ============================================================================
// PAYMENT UNITS
// ============================================================================

const unitColumns = `id, opportunity_id, unit_type, schedule_index, amount_cents,
	due_date, received_date, status, member_splits, distribution_version,
	created_at, updated_at`

// CreatePaymentUnit inserts a payment unit synced from the CRM schedule.
func (r *Repository) CreatePaymentUnit(ctx context.Context, u *ledger.PaymentUnit) error {
	var splits []byte
	if len(u.MemberSplits) > 0 {
		var err error
		splits, err = json.Marshal(u.MemberSplits)
		if err != nil {
			return fmt.Errorf("marshaling member splits: %w", err)
		}
	}
	if u.DistributionVersion == 0 {
		u.DistributionVersion = 1
	}
	if u.Status == "" {
		u.Status = ledger.UnitPending
	}
	query := `
		INSERT INTO payment_units (id, opportunity_id, unit_type, schedule_index,
			amount_cents, due_date, status, member_splits, distribution_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	return r.db.Pool.QueryRow(ctx, query,
		u.ID, u.OpportunityID, string(u.Type), u.ScheduleIndex,
		u.Amount.Cents(), u.DueDate, string(u.Status), splits, u.DistributionVersion,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetPaymentUnit retrieves one unit by ID.
func (r *Repository) GetPaymentUnit(ctx context.Context, unitID string) (*ledger.PaymentUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM payment_units WHERE id = $1`
	unit, err := scanUnit(r.db.Pool.QueryRow(ctx, query, unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment unit %s", ledger.ErrNotFound, unitID)
		}
		return nil, err
	}
	return unit, nil
}

// FindPaymentUnit resolves a unit by opportunity and selector fields.
func (r *Repository) FindPaymentUnit(ctx context.Context, opportunityID string, unitType ledger.UnitType, scheduleIndex int, dueDate *time.Time) (*ledger.PaymentUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM payment_units WHERE opportunity_id = $1 AND unit_type = $2`
	args := []interface{}{opportunityID, string(unitType)}
	switch unitType {
	case ledger.UnitTypeSchedule:
		query += ` AND schedule_index = $3`
		args = append(args, scheduleIndex)
	case ledger.UnitTypeRecurring:
		if dueDate == nil {
			return nil, fmt.Errorf("recurring unit lookup requires a due date")
		}
		query += ` AND due_date = $3`
		args = append(args, *dueDate)
	}

	unit, err := scanUnit(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no %s unit on opportunity %s", ledger.ErrNotFound, unitType, opportunityID)
		}
		return nil, err
	}
	return unit, nil
}

// ListReceivedUndistributed returns the units of an opportunity awaiting
// distribution.
func (r *Repository) ListReceivedUndistributed(ctx context.Context, opportunityID string) ([]ledger.PaymentUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM payment_units
		WHERE opportunity_id = $1 AND status = $2
		ORDER BY id`

	rows, err := r.db.Pool.Query(ctx, query, opportunityID, string(ledger.UnitReceived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []ledger.PaymentUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *unit)
	}
	return units, rows.Err()
}

// MarkUnitReceived moves a PENDING unit to RECEIVED. Re-marking a RECEIVED
// unit is a no-op so redelivered payment confirmations are safe.
func (r *Repository) MarkUnitReceived(ctx context.Context, unitID string, receivedDate time.Time) (*ledger.PaymentUnit, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE payment_units
		SET status = $2, received_date = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`
	tag, err := tx.Exec(ctx, query, unitID, string(ledger.UnitReceived), receivedDate, string(ledger.UnitPending))
	if err != nil {
		return nil, err
	}

	unit, err := scanUnit(tx.QueryRow(ctx, `SELECT `+unitColumns+` FROM payment_units WHERE id = $1`, unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment unit %s", ledger.ErrNotFound, unitID)
		}
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		// Nothing moved: fine when already RECEIVED, an error otherwise.
		if unit.Status != ledger.UnitReceived {
			return nil, fmt.Errorf("cannot mark %s unit %s received", unit.Status, unitID)
		}
		return unit, tx.Commit(ctx)
	}

	if unit.Type == ledger.UnitTypeValue {
		_, err = tx.Exec(ctx,
			`UPDATE opportunities SET value_payment_status = $2, updated_at = NOW() WHERE id = $1`,
			unit.OpportunityID, string(ledger.UnitReceived))
		if err != nil {
			return nil, err
		}
	}
	return unit, tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row rowScanner) (*ledger.PaymentUnit, error) {
	var u ledger.PaymentUnit
	var unitType, status string
	var amountCents int64
	var splits []byte
	err := row.Scan(
		&u.ID, &u.OpportunityID, &unitType, &u.ScheduleIndex, &amountCents,
		&u.DueDate, &u.ReceivedDate, &status, &splits, &u.DistributionVersion,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Type = ledger.UnitType(unitType)
	u.Status = ledger.UnitStatus(status)
	u.Amount = money.Amount(amountCents)
	if len(splits) > 0 {
		if err := json.Unmarshal(splits, &u.MemberSplits); err != nil {
			return nil, fmt.Errorf("unmarshaling member splits for unit %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

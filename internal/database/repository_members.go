package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/money"
)

// Member repository methods. Aggregate columns (total_earned_cents,
// total_pending_cents) are only ever written by the distribution and outcome
// transactions, never by member CRUD.

const memberColumns = `id, opportunity_id, client_id, role, default_split_bp,
	default_payout_delay_days, is_active, total_earned_cents, total_pending_cents,
	created_at, updated_at`

// ListMembers returns an opportunity's members ordered by client ID.
func (r *Repository) ListMembers(ctx context.Context, opportunityID string, activeOnly bool) ([]ledger.OpportunityMember, error) {
	query := `SELECT ` + memberColumns + ` FROM opportunity_members WHERE opportunity_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY client_id`

	rows, err := r.db.Pool.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []ledger.OpportunityMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// GetMember returns one member of an opportunity.
func (r *Repository) GetMember(ctx context.Context, opportunityID, clientID string) (*ledger.OpportunityMember, error) {
	query := `SELECT ` + memberColumns + ` FROM opportunity_members
		WHERE opportunity_id = $1 AND client_id = $2`
	m, err := scanMember(r.db.Pool.QueryRow(ctx, query, opportunityID, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: member %s on opportunity %s", ledger.ErrNotFound, clientID, opportunityID)
		}
		return nil, err
	}
	return m, nil
}

// AddMember inserts a new member.
func (r *Repository) AddMember(ctx context.Context, m *ledger.OpportunityMember) error {
	query := `
		INSERT INTO opportunity_members (id, opportunity_id, client_id, role,
			default_split_bp, default_payout_delay_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	return r.db.Pool.QueryRow(ctx, query,
		m.ID, m.OpportunityID, m.ClientID, m.Role,
		int64(m.DefaultSplitPoints), m.DefaultPayoutDelayDays, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// UpdateMember updates a member's configurable fields.
func (r *Repository) UpdateMember(ctx context.Context, m *ledger.OpportunityMember) error {
	query := `
		UPDATE opportunity_members
		SET role = $3, default_split_bp = $4, default_payout_delay_days = $5,
			is_active = $6, updated_at = NOW()
		WHERE opportunity_id = $1 AND client_id = $2`
	tag, err := r.db.Pool.Exec(ctx, query,
		m.OpportunityID, m.ClientID, m.Role,
		int64(m.DefaultSplitPoints), m.DefaultPayoutDelayDays, m.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: member %s on opportunity %s", ledger.ErrNotFound, m.ClientID, m.OpportunityID)
	}
	return nil
}

// DeactivateMember soft-deactivates a member, keeping its payout history and
// aggregates intact.
func (r *Repository) DeactivateMember(ctx context.Context, opportunityID, clientID string) (*ledger.OpportunityMember, error) {
	query := `
		UPDATE opportunity_members
		SET is_active = FALSE, updated_at = NOW()
		WHERE opportunity_id = $1 AND client_id = $2
		RETURNING ` + memberColumns
	m, err := scanMember(r.db.Pool.QueryRow(ctx, query, opportunityID, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: member %s on opportunity %s", ledger.ErrNotFound, clientID, opportunityID)
		}
		return nil, err
	}
	return m, nil
}

func scanMember(row rowScanner) (*ledger.OpportunityMember, error) {
	var m ledger.OpportunityMember
	var splitBP, earnedCents, pendingCents int64
	err := row.Scan(
		&m.ID, &m.OpportunityID, &m.ClientID, &m.Role, &splitBP,
		&m.DefaultPayoutDelayDays, &m.IsActive, &earnedCents, &pendingCents,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.DefaultSplitPoints = money.BasisPoints(splitBP)
	m.TotalEarned = money.Amount(earnedCents)
	m.TotalPending = money.Amount(pendingCents)
	return &m, nil
}

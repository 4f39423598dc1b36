package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/money"
)

// Payout record repository methods. CreateDistribution, SupersedeDistribution
// and ApplyPayoutOutcome are the three conditional writes the ledger's
// idempotency contract rests on; each runs in a single transaction that also
// moves the aggregates derived from it.

const payoutColumns = `id, opportunity_id, payment_unit_id, client_id,
	distribution_version, split_bp, amount_cents, payout_delay_days, payout_date,
	paid_out_date, status, superseded, transaction_id, notes, retry_count,
	created_at, updated_at`

// CreateDistribution inserts every record of one distribution atomically,
// marks the unit DISTRIBUTED, and applies the pending aggregates. The unit
// row is locked for the duration, so concurrent distributions of the same
// unit serialize and the loser returns the winner's records unchanged.
func (r *Repository) CreateDistribution(ctx context.Context, unit *ledger.PaymentUnit, records []ledger.PayoutRecord) ([]ledger.PayoutRecord, bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var status string
	var version int
	err = tx.QueryRow(ctx,
		`SELECT status, distribution_version FROM payment_units WHERE id = $1 FOR UPDATE`,
		unit.ID,
	).Scan(&status, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("%w: payment unit %s", ledger.ErrNotFound, unit.ID)
		}
		return nil, false, err
	}

	if ledger.UnitStatus(status) == ledger.UnitDistributed || version != unit.DistributionVersion {
		// A concurrent caller won the conditional write; return its
		// records.
		existing, err := r.recordsForVersion(ctx, tx, unit.ID, version)
		if err != nil {
			return nil, false, err
		}
		return existing, false, tx.Commit(ctx)
	}

	var distributedCents int64
	for i := range records {
		rec := &records[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO payout_records (id, opportunity_id, payment_unit_id,
				client_id, distribution_version, split_bp, amount_cents,
				payout_delay_days, payout_date, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, rec.OpportunityID, rec.PaymentUnitID, rec.ClientID,
			rec.DistributionVersion, int64(rec.Points), rec.Amount.Cents(),
			rec.PayoutDelayDays, rec.PayoutDate, string(rec.Status))
		if err != nil {
			return nil, false, fmt.Errorf("inserting payout record for %s: %w", rec.ClientID, err)
		}
		distributedCents += rec.Amount.Cents()

		// New records start in a pending-side status.
		_, err = tx.Exec(ctx, `
			UPDATE opportunity_members
			SET total_pending_cents = total_pending_cents + $3, updated_at = NOW()
			WHERE opportunity_id = $1 AND client_id = $2`,
			rec.OpportunityID, rec.ClientID, rec.Amount.Cents())
		if err != nil {
			return nil, false, err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE payment_units SET status = $2, updated_at = NOW() WHERE id = $1`,
		unit.ID, string(ledger.UnitDistributed))
	if err != nil {
		return nil, false, err
	}

	valueStatusUpdate := ``
	if unit.Type == ledger.UnitTypeValue {
		valueStatusUpdate = `, value_payment_status = '` + string(ledger.UnitDistributed) + `'`
	}
	_, err = tx.Exec(ctx, `
		UPDATE opportunities
		SET total_paid_cents = total_paid_cents + $2,
			total_scheduled_cents = total_scheduled_cents + $3,
			updated_at = NOW()`+valueStatusUpdate+`
		WHERE id = $1`,
		unit.OpportunityID, unit.Amount.Cents(), distributedCents)
	if err != nil {
		return nil, false, err
	}

	result, err := r.recordsForVersion(ctx, tx, unit.ID, unit.DistributionVersion)
	if err != nil {
		return nil, false, err
	}
	return result, true, tx.Commit(ctx)
}

// SupersedeDistribution cancels the live records of the unit's current
// version, marks the version's records superseded, and bumps the unit back
// to RECEIVED at the next version. The write is conditioned on fromVersion;
// a lost race returns the current unit untouched.
func (r *Repository) SupersedeDistribution(ctx context.Context, unitID string, fromVersion int) (*ledger.PaymentUnit, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx,
		`SELECT distribution_version FROM payment_units WHERE id = $1 FOR UPDATE`,
		unitID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment unit %s", ledger.ErrNotFound, unitID)
		}
		return nil, err
	}

	if version == fromVersion {
		// Cancel live records and give their amounts back to the
		// members' pending totals.
		rows, err := tx.Query(ctx, `
			SELECT id, opportunity_id, client_id, amount_cents, status
			FROM payout_records
			WHERE payment_unit_id = $1 AND distribution_version = $2
			FOR UPDATE`,
			unitID, fromVersion)
		if err != nil {
			return nil, err
		}
		type liveRec struct {
			id, opportunityID, clientID string
			amountCents                 int64
			status                      ledger.PayoutStatus
		}
		var live []liveRec
		for rows.Next() {
			var rec liveRec
			var status string
			if err := rows.Scan(&rec.id, &rec.opportunityID, &rec.clientID, &rec.amountCents, &status); err != nil {
				rows.Close()
				return nil, err
			}
			rec.status = ledger.PayoutStatus(status)
			live = append(live, rec)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, rec := range live {
			if rec.status.IsTerminal() {
				_, err = tx.Exec(ctx,
					`UPDATE payout_records SET superseded = TRUE, updated_at = NOW() WHERE id = $1`,
					rec.id)
				if err != nil {
					return nil, err
				}
				continue
			}
			_, err = tx.Exec(ctx, `
				UPDATE payout_records
				SET superseded = TRUE, status = $2,
					notes = CASE WHEN notes = '' THEN $3 ELSE notes || '; ' || $3 END,
					updated_at = NOW()
				WHERE id = $1`,
				rec.id, string(ledger.PayoutCancelled), "superseded by redistribution")
			if err != nil {
				return nil, err
			}
			earned, pending := ledger.AggregateDelta(rec.status, ledger.PayoutCancelled, money.Amount(rec.amountCents))
			if err := applyMemberDelta(ctx, tx, rec.opportunityID, rec.clientID, earned, pending); err != nil {
				return nil, err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE payment_units
			SET distribution_version = distribution_version + 1, status = $2, updated_at = NOW()
			WHERE id = $1`,
			unitID, string(ledger.UnitReceived))
		if err != nil {
			return nil, err
		}
	}

	unit, err := scanUnit(tx.QueryRow(ctx, `SELECT `+unitColumns+` FROM payment_units WHERE id = $1`, unitID))
	if err != nil {
		return nil, err
	}
	return unit, tx.Commit(ctx)
}

// ApplyPayoutOutcome is a compare-and-swap on the record's status. The
// member aggregates move in the same transaction, so a lost race applies
// nothing at all.
func (r *Repository) ApplyPayoutOutcome(ctx context.Context, recordID string, expectedStatus ledger.PayoutStatus, outcome ledger.PayoutOutcome) (*ledger.PayoutRecord, bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	retryBump := 0
	if expectedStatus == ledger.PayoutFailed && outcome.Status == ledger.PayoutProcessing {
		retryBump = 1
	}
	query := `
		UPDATE payout_records
		SET status = $3,
			paid_out_date = COALESCE($4, paid_out_date),
			transaction_id = COALESCE($5, transaction_id),
			notes = CASE WHEN $6 = '' THEN notes
				WHEN notes = '' THEN $6
				ELSE notes || '; ' || $6 END,
			retry_count = retry_count + $7,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + payoutColumns
	rec, err := scanPayout(tx.QueryRow(ctx, query,
		recordID, string(expectedStatus), string(outcome.Status),
		outcome.PaidOutDate, outcome.TransactionID, outcome.Notes, retryBump))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
		// Conditional write did not apply: report the current state.
		current, err := scanPayout(tx.QueryRow(ctx,
			`SELECT `+payoutColumns+` FROM payout_records WHERE id = $1`, recordID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, false, fmt.Errorf("%w: payout record %s", ledger.ErrNotFound, recordID)
			}
			return nil, false, err
		}
		return current, false, tx.Commit(ctx)
	}

	earned, pending := ledger.AggregateDelta(expectedStatus, outcome.Status, rec.Amount)
	if err := applyMemberDelta(ctx, tx, rec.OpportunityID, rec.ClientID, earned, pending); err != nil {
		return nil, false, err
	}
	return rec, true, tx.Commit(ctx)
}

// GetPayoutRecord retrieves one payout record.
func (r *Repository) GetPayoutRecord(ctx context.Context, recordID string) (*ledger.PayoutRecord, error) {
	rec, err := scanPayout(r.db.Pool.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payout_records WHERE id = $1`, recordID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payout record %s", ledger.ErrNotFound, recordID)
		}
		return nil, err
	}
	return rec, nil
}

// FindPayoutByKey retrieves a record by its idempotency key.
func (r *Repository) FindPayoutByKey(ctx context.Context, opportunityID, unitID, clientID string, version int) (*ledger.PayoutRecord, error) {
	rec, err := scanPayout(r.db.Pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payout_records
		WHERE opportunity_id = $1 AND payment_unit_id = $2 AND client_id = $3
			AND distribution_version = $4`,
		opportunityID, unitID, clientID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payout record for %s on unit %s v%d",
				ledger.ErrNotFound, clientID, unitID, version)
		}
		return nil, err
	}
	return rec, nil
}

// FindPayoutByTransactionID retrieves a record by the payment rail's
// transaction reference.
func (r *Repository) FindPayoutByTransactionID(ctx context.Context, transactionID string) (*ledger.PayoutRecord, error) {
	rec, err := scanPayout(r.db.Pool.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payout_records WHERE transaction_id = $1`, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payout record with transaction %s", ledger.ErrNotFound, transactionID)
		}
		return nil, err
	}
	return rec, nil
}

// ListPayoutsByOpportunity returns an opportunity's records ordered by payout
// date.
func (r *Repository) ListPayoutsByOpportunity(ctx context.Context, opportunityID string) ([]ledger.PayoutRecord, error) {
	return r.listPayouts(ctx,
		`SELECT `+payoutColumns+` FROM payout_records
		WHERE opportunity_id = $1 ORDER BY payout_date, client_id`, opportunityID)
}

// ListPayoutsByMember returns a member's records across opportunities ordered
// by payout date.
func (r *Repository) ListPayoutsByMember(ctx context.Context, clientID string) ([]ledger.PayoutRecord, error) {
	return r.listPayouts(ctx,
		`SELECT `+payoutColumns+` FROM payout_records
		WHERE client_id = $1 ORDER BY payout_date, opportunity_id`, clientID)
}

// ListDuePayouts returns live PENDING records due at or before asOf.
func (r *Repository) ListDuePayouts(ctx context.Context, asOf time.Time, limit int) ([]ledger.PayoutRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	return r.listPayouts(ctx, `
		SELECT `+payoutColumns+` FROM payout_records
		WHERE status = $1 AND superseded = FALSE AND payout_date <= $2
		ORDER BY payout_date
		LIMIT $3`,
		string(ledger.PayoutPending), asOf, limit)
}

func (r *Repository) listPayouts(ctx context.Context, query string, args ...interface{}) ([]ledger.PayoutRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.PayoutRecord
	for rows.Next() {
		rec, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *Repository) recordsForVersion(ctx context.Context, tx pgx.Tx, unitID string, version int) ([]ledger.PayoutRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_records
		WHERE payment_unit_id = $1 AND distribution_version = $2
		ORDER BY client_id`,
		unitID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.PayoutRecord
	for rows.Next() {
		rec, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func applyMemberDelta(ctx context.Context, tx pgx.Tx, opportunityID, clientID string, earned, pending money.Amount) error {
	if earned == 0 && pending == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE opportunity_members
		SET total_earned_cents = total_earned_cents + $3,
			total_pending_cents = total_pending_cents + $4,
			updated_at = NOW()
		WHERE opportunity_id = $1 AND client_id = $2`,
		opportunityID, clientID, earned.Cents(), pending.Cents())
	return err
}

func scanPayout(row rowScanner) (*ledger.PayoutRecord, error) {
	var rec ledger.PayoutRecord
	var splitBP, amountCents int64
	var status string
	err := row.Scan(
		&rec.ID, &rec.OpportunityID, &rec.PaymentUnitID, &rec.ClientID,
		&rec.DistributionVersion, &splitBP, &amountCents, &rec.PayoutDelayDays,
		&rec.PayoutDate, &rec.PaidOutDate, &status, &rec.Superseded,
		&rec.TransactionID, &rec.Notes, &rec.RetryCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Points = money.BasisPoints(splitBP)
	rec.Amount = money.Amount(amountCents)
	rec.Status = ledger.PayoutStatus(status)
	return &rec, nil
}

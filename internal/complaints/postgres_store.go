package complaints

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists complaints in PostgreSQL. The schema is created by
// the goose migrations under migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, complaint_id, fraud_type, amount, mule_account_id,
	withdrawal_atm_id, withdrawal_lat, withdrawal_long, location_name, event_time, status`

func (p *PostgresStore) Insert(ctx context.Context, e *Event) error {
	if err := prepare(e); err != nil {
		return err
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO complaints (
			complaint_id, fraud_type, amount, mule_account_id, withdrawal_atm_id,
			withdrawal_lat, withdrawal_long, location_name, event_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		e.ComplaintID, e.FraudType, e.Amount, e.AccountID, e.ATMID,
		e.Lat, e.Long, e.LocationName, e.Timestamp, string(e.Status),
	).Scan(&e.ID)
	if err != nil {
		return unavailable("insert complaint", err)
	}
	return nil
}

// InsertBatch loads events with COPY inside one transaction; either all
// rows land or none do.
func (p *PostgresStore) InsertBatch(ctx context.Context, events []*Event) (int, error) {
	for _, e := range events {
		if err := prepare(e); err != nil {
			return 0, err
		}
	}
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("complaints",
		"complaint_id", "fraud_type", "amount", "mule_account_id", "withdrawal_atm_id",
		"withdrawal_lat", "withdrawal_long", "location_name", "event_time", "status"))
	if err != nil {
		return 0, unavailable("prepare copy", err)
	}
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.ComplaintID, e.FraudType, e.Amount, e.AccountID, e.ATMID,
			e.Lat, e.Long, e.LocationName, e.Timestamp, string(e.Status),
		); err != nil {
			_ = stmt.Close()
			return 0, unavailable("copy row", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, unavailable("flush copy", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, unavailable("close copy", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit batch", err)
	}
	return len(events), nil
}

func (p *PostgresStore) List(ctx context.Context, accountID string) ([]Event, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if accountID == "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+eventColumns+`
			FROM complaints ORDER BY event_time ASC, id ASC`)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+eventColumns+`
			FROM complaints WHERE mule_account_id = $1
			ORDER BY event_time ASC, id ASC`, accountID)
	}
	if err != nil {
		return nil, unavailable("list complaints", err)
	}
	return scanEvents(rows)
}

func (p *PostgresStore) Latest(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+eventColumns+`
		FROM complaints ORDER BY event_time DESC, id ASC LIMIT $1`, n)
	if err != nil {
		return nil, unavailable("latest complaints", err)
	}
	return scanEvents(rows)
}

func (p *PostgresStore) Status(ctx context.Context, accountID string) (Status, error) {
	var frozen bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM complaints WHERE mule_account_id = $1 AND status = 'Frozen'
		) OR EXISTS (
			SELECT 1 FROM frozen_accounts WHERE mule_account_id = $1
		)`, accountID).Scan(&frozen)
	if err != nil {
		return "", unavailable("read status", err)
	}
	if frozen {
		return StatusFrozen, nil
	}
	return StatusOpen, nil
}

// Freeze flips every Open row of the account in one conditional UPDATE.
// Row locks make a concurrent second UPDATE re-check status and match
// nothing, so exactly one caller sees FreezeApplied. An account with no
// rows is recorded in frozen_accounts; the primary key admits one winner.
func (p *PostgresStore) Freeze(ctx context.Context, accountID string) (FreezeResult, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE complaints SET status = 'Frozen'
		WHERE mule_account_id = $1 AND status = 'Open'
		  AND NOT EXISTS (
			SELECT 1 FROM complaints WHERE mule_account_id = $1 AND status = 'Frozen'
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM frozen_accounts WHERE mule_account_id = $1
		  )`, accountID)
	if err != nil {
		return FreezeResult{}, unavailable("freeze account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return FreezeResult{}, unavailable("freeze account", err)
	}
	if n > 0 {
		return FreezeResult{Outcome: FreezeApplied, Rows: n}, nil
	}

	// Nothing changed: either someone froze it first or there is nothing to freeze.
	status, err := p.Status(ctx, accountID)
	if err != nil {
		return FreezeResult{}, err
	}
	if status == StatusFrozen {
		return FreezeResult{Outcome: FreezeAlreadyFrozen}, nil
	}

	res, err = p.db.ExecContext(ctx, `
		INSERT INTO frozen_accounts (mule_account_id) VALUES ($1)
		ON CONFLICT (mule_account_id) DO NOTHING`, accountID)
	if err != nil {
		return FreezeResult{}, unavailable("mark account frozen", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return FreezeResult{}, unavailable("mark account frozen", err)
	}
	if n == 0 {
		return FreezeResult{Outcome: FreezeAlreadyFrozen}, nil
	}
	return FreezeResult{Outcome: FreezeNoRecords}, nil
}

// ResetAll reopens every row and clears accounts frozen without rows.
func (p *PostgresStore) ResetAll(ctx context.Context) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin reset", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frozen_accounts`); err != nil {
		return 0, unavailable("clear frozen accounts", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE complaints SET status = 'Open'`)
	if err != nil {
		return 0, unavailable("reset statuses", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("reset statuses", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit reset", err)
	}
	return n, nil
}

// PingContext lets the store serve as a health check.
func (p *PostgresStore) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			e                           Event
			complaintID, fraudType      sql.NullString
			atmID, locationName, status sql.NullString
			amount                      sql.NullInt64
		)
		if err := rows.Scan(
			&e.ID, &complaintID, &fraudType, &amount, &e.AccountID,
			&atmID, &e.Lat, &e.Long, &locationName, &e.Timestamp, &status,
		); err != nil {
			return nil, unavailable("scan complaint", err)
		}
		e.ComplaintID = complaintID.String
		e.FraudType = fraudType.String
		e.Amount = amount.Int64
		e.ATMID = atmID.String
		e.LocationName = locationName.String
		e.Status = Status(status.String)
		if e.Status == "" {
			e.Status = StatusOpen
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate complaints", err)
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)

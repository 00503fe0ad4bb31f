package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresOutbox stores alerts in the alert_outbox table.
type PostgresOutbox struct {
	db *sql.DB
}

// NewPostgresOutbox creates an outbox over db.
func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

const alertColumns = `reference, account_id, recipient, message, amount, lat, long, status,
	attempts, last_error, provider_ref, created_at, updated_at, delivered_at`

func (p *PostgresOutbox) Enqueue(ctx context.Context, a *Alert) error {
	if a.Status == "" {
		a.Status = StatusPending
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alert_outbox (reference, account_id, recipient, message, amount, lat, long, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reference) DO NOTHING`,
		a.Reference, a.AccountID, a.Recipient, a.Message, a.Amount, a.Lat, a.Long, string(a.Status),
	)
	if err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}

func (p *PostgresOutbox) Get(ctx context.Context, reference string) (*Alert, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alert_outbox WHERE reference = $1`, reference)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (p *PostgresOutbox) ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+alertColumns+`
		FROM alert_outbox
		WHERE status = 'pending' AND updated_at <= $1
		ORDER BY created_at ASC, reference ASC
		LIMIT $2`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresOutbox) MarkDelivered(ctx context.Context, reference, providerRef string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE alert_outbox
		SET status = 'delivered', attempts = attempts + 1, provider_ref = $2,
		    last_error = NULL, delivered_at = $3, updated_at = NOW()
		WHERE reference = $1 AND status <> 'delivered'`,
		reference, providerRef, at)
	if err != nil {
		return fmt.Errorf("mark alert delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already delivered, or unknown
		if _, err := p.Get(ctx, reference); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresOutbox) MarkAttempt(ctx context.Context, reference, lastError string, maxAttempts int) (Status, error) {
	var status string
	err := p.db.QueryRowContext(ctx, `
		UPDATE alert_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    updated_at = NOW(),
		    status = CASE WHEN $3 > 0 AND attempts + 1 >= $3 THEN 'failed' ELSE status END
		WHERE reference = $1 AND status = 'pending'
		RETURNING status`,
		reference, lastError, maxAttempts).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		a, err := p.Get(ctx, reference)
		if err != nil {
			return "", err
		}
		return a.Status, nil
	}
	if err != nil {
		return "", fmt.Errorf("mark alert attempt: %w", err)
	}
	return Status(status), nil
}

func (p *PostgresOutbox) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_outbox WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending alerts: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*Alert, error) {
	var (
		a                      Alert
		status                 string
		lastError, providerRef sql.NullString
		deliveredAt            sql.NullTime
	)
	if err := s.Scan(
		&a.Reference, &a.AccountID, &a.Recipient, &a.Message, &a.Amount, &a.Lat, &a.Long, &status,
		&a.Attempts, &lastError, &providerRef, &a.CreatedAt, &a.UpdatedAt, &deliveredAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.LastError = lastError.String
	a.ProviderRef = providerRef.String
	if deliveredAt.Valid {
		t := deliveredAt.Time
		a.DeliveredAt = &t
	}
	return &a, nil
}

var (
	_ Outbox = (*PostgresOutbox)(nil)
	_ Outbox = (*MemoryOutbox)(nil)
)

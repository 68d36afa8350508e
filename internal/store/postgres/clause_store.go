package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/causeway-labs/causeway/internal/domain"
)

// clauseStore implements domain.ClauseStore. The per-event clause index is
// the clauses table itself ordered by id; serial allocation preserves
// insertion order, so the index is append-only without a separate structure.
type clauseStore struct {
	q querier
}

func (s clauseStore) Create(ctx context.Context, c domain.Clause) (int64, error) {
	const query = `
		INSERT INTO clauses (
			event_id, donor, payout_amount,
			recipient_if_true, recipient_if_false,
			executed, refunded, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.q.QueryRow(ctx, query,
		c.EventID, c.Donor, int64(c.PayoutAmount),
		c.RecipientIfTrue, c.RecipientIfFalse,
		c.Executed, c.Refunded, c.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create clause: %w", err)
	}
	return id, nil
}

func (s clauseStore) Get(ctx context.Context, id int64) (domain.Clause, error) {
	const query = `
		SELECT id, event_id, donor, payout_amount,
		       recipient_if_true, recipient_if_false,
		       executed, refunded, created_at, executed_at
		FROM clauses WHERE id = $1`

	c, err := scanClause(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Clause{}, domain.ErrNotFound
		}
		return domain.Clause{}, fmt.Errorf("postgres: get clause %d: %w", id, err)
	}
	return c, nil
}

func (s clauseStore) MarkExecuted(ctx context.Context, id int64, at time.Time) error {
	return s.mark(ctx, id, at, false)
}

func (s clauseStore) MarkRefunded(ctx context.Context, id int64, at time.Time) error {
	return s.mark(ctx, id, at, true)
}

func (s clauseStore) mark(ctx context.Context, id int64, at time.Time, refund bool) error {
	const query = `
		UPDATE clauses
		SET executed = TRUE, refunded = $2, executed_at = $3
		WHERE id = $1 AND NOT executed`

	tag, err := s.q.Exec(ctx, query, id, refund, at)
	if err != nil {
		return fmt.Errorf("postgres: mark clause %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyExecuted
	}
	return nil
}

func (s clauseStore) IDsForEvent(ctx context.Context, eventID int64) ([]int64, error) {
	const query = `SELECT id FROM clauses WHERE event_id = $1 ORDER BY id`

	rows, err := s.q.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: clause index for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan clause id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s clauseStore) ListByEvent(ctx context.Context, eventID int64, opts domain.ListOpts) ([]domain.Clause, error) {
	const query = `
		SELECT id, event_id, donor, payout_amount,
		       recipient_if_true, recipient_if_false,
		       executed, refunded, created_at, executed_at
		FROM clauses WHERE event_id = $1 ORDER BY id`
	return s.list(ctx, query, []any{eventID}, opts)
}

func (s clauseStore) ListByDonor(ctx context.Context, donor domain.Address, opts domain.ListOpts) ([]domain.Clause, error) {
	const query = `
		SELECT id, event_id, donor, payout_amount,
		       recipient_if_true, recipient_if_false,
		       executed, refunded, created_at, executed_at
		FROM clauses WHERE donor = $1 ORDER BY id`
	return s.list(ctx, query, []any{donor}, opts)
}

func (s clauseStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts) ([]domain.Clause, error) {
	query, args = limitClause(query, args, opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list clauses: %w", err)
	}
	defer rows.Close()

	var clauses []domain.Clause
	for rows.Next() {
		c, err := scanClause(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan clause: %w", err)
		}
		clauses = append(clauses, c)
	}
	return clauses, rows.Err()
}

func scanClause(row pgx.Row) (domain.Clause, error) {
	var c domain.Clause
	var amount int64
	err := row.Scan(
		&c.ID, &c.EventID, &c.Donor, &amount,
		&c.RecipientIfTrue, &c.RecipientIfFalse,
		&c.Executed, &c.Refunded, &c.CreatedAt, &c.ExecutedAt,
	)
	if err != nil {
		return domain.Clause{}, err
	}
	c.PayoutAmount = domain.Amount(amount)
	return c, nil
}

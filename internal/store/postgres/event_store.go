package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/causeway-labs/causeway/internal/domain"
)

// eventStore implements domain.EventStore.
type eventStore struct {
	q querier
}

func (s eventStore) Create(ctx context.Context, e domain.Event) (int64, error) {
	const query = `
		INSERT INTO events (description, resolver, created_by, status, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.q.QueryRow(ctx, query,
		e.Description, e.Resolver, e.CreatedBy, string(e.Status), e.Outcome, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create event: %w", err)
	}
	return id, nil
}

func (s eventStore) Get(ctx context.Context, id int64) (domain.Event, error) {
	const query = `
		SELECT id, description, resolver, created_by, status, outcome, created_at, resolved_at
		FROM events WHERE id = $1`

	e, err := scanEvent(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("postgres: get event %d: %w", id, err)
	}
	return e, nil
}

func (s eventStore) MarkResolved(ctx context.Context, id int64, outcome bool, at time.Time) error {
	// The status predicate makes the transition race-safe: the second
	// resolver matches zero rows.
	const query = `
		UPDATE events
		SET status = $2, outcome = $3, resolved_at = $4
		WHERE id = $1 AND status = $5`

	tag, err := s.q.Exec(ctx, query,
		id, string(domain.EventStatusResolved), outcome, at, string(domain.EventStatusPending),
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

func (s eventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	const query = `
		SELECT id, description, resolver, created_by, status, outcome, created_at, resolved_at
		FROM events ORDER BY id`
	return s.list(ctx, query, nil, opts)
}

func (s eventStore) ListPending(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	const query = `
		SELECT id, description, resolver, created_by, status, outcome, created_at, resolved_at
		FROM events WHERE status = $1 ORDER BY id`
	return s.list(ctx, query, []any{string(domain.EventStatusPending)}, opts)
}

func (s eventStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts) ([]domain.Event, error) {
	query, args = limitClause(query, args, opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var status string
	err := row.Scan(
		&e.ID, &e.Description, &e.Resolver, &e.CreatedBy,
		&status, &e.Outcome, &e.CreatedAt, &e.ResolvedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Status = domain.EventStatus(status)
	return e, nil
}

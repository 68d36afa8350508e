package postgres

import (
	"context"
	"fmt"

	"github.com/causeway-labs/causeway/internal/domain"
)

// transferStore implements domain.TransferStore.
type transferStore struct {
	q querier
}

func (s transferStore) Record(ctx context.Context, t domain.Transfer) error {
	const query = `
		INSERT INTO transfers (
			id, from_addr, to_addr, amount, kind, clause_id, event_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.From, t.To, int64(t.Amount), string(t.Kind), t.ClauseID, t.EventID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record transfer %s: %w", t.ID, err)
	}
	return nil
}

func (s transferStore) ListByAccount(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Transfer, error) {
	query := `
		SELECT id, from_addr, to_addr, amount, kind, clause_id, event_id, created_at
		FROM transfers
		WHERE from_addr = $1 OR to_addr = $1
		ORDER BY created_at, id`
	args := []any{addr}
	query, args = limitClause(query, args, opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transfers for %s: %w", addr, err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var amount int64
		var kind string
		if err := rows.Scan(&t.ID, &t.From, &t.To, &amount, &kind, &t.ClauseID, &t.EventID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transfer: %w", err)
		}
		t.Amount = domain.Amount(amount)
		t.Kind = domain.TransferKind(kind)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

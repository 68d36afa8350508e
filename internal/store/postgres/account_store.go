package postgres

import (
	"context"
	"fmt"

	"github.com/causeway-labs/causeway/internal/domain"
)

// accountStore implements domain.AccountStore. Accounts are created lazily
// on first credit; an absent row reads as a zero balance.
type accountStore struct {
	q querier
}

func (s accountStore) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	const query = `
		SELECT COALESCE((SELECT balance FROM accounts WHERE address = $1), 0)`

	var balance int64
	if err := s.q.QueryRow(ctx, query, addr).Scan(&balance); err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", addr, err)
	}
	return domain.Amount(balance), nil
}

func (s accountStore) Credit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	const query = `
		INSERT INTO accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`

	if _, err := s.q.Exec(ctx, query, addr, int64(amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", addr, err)
	}
	return nil
}

func (s accountStore) Debit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	// The balance predicate enforces no-overdraft at the row level; an
	// uncovered debit matches zero rows, including the no-account case.
	const query = `
		UPDATE accounts SET balance = balance - $2
		WHERE address = $1 AND balance >= $2`

	tag, err := s.q.Exec(ctx, query, addr, int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

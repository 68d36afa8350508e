package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/causeway-labs/causeway/internal/domain"
)

// TransferService is the unconditional payment path. It shares only the
// ledger with the escrow machinery: no clause, no event, no lingering state
// beyond the transfer receipt.
type TransferService struct {
	store  domain.Store
	clock  domain.Clock
	logger *slog.Logger
}

// NewTransferService creates a TransferService.
func NewTransferService(store domain.Store, clock domain.Clock, logger *slog.Logger) *TransferService {
	return &TransferService{
		store:  store,
		clock:  orSystemClock(clock),
		logger: logger.With(slog.String("component", "transfer")),
	}
}

// Send moves amount from one account to another immediately.
func (s *TransferService) Send(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Transfer, error) {
	if amount <= 0 {
		return domain.Transfer{}, fmt.Errorf("transfer: send %s: %w", amount, domain.ErrInvalidAmount)
	}
	from, err := domain.NormalizeAddress(from)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("transfer: from: %w", err)
	}
	to, err = domain.NormalizeAddress(to)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("transfer: to: %w", err)
	}

	t := domain.Transfer{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      domain.TransferKindInstant,
		CreatedAt: s.clock.Now(),
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		if err := move(ctx, tx, t); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "transfer.sent", map[string]any{
			"transfer_id": t.ID,
			"from":        from,
			"to":          to,
			"amount":      amount.String(),
		})
	})
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("transfer: send: %w", err)
	}

	s.logger.InfoContext(ctx, "instant transfer",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("amount", amount.String()),
	)
	return t, nil
}

// Fund credits an account from outside the ledger. This is the boundary to
// the external currency primitive; it is exposed only on the operator
// surface.
func (s *TransferService) Fund(ctx context.Context, addr domain.Address, amount domain.Amount) (domain.Amount, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("transfer: fund %s: %w", amount, domain.ErrInvalidAmount)
	}
	addr, err := domain.NormalizeAddress(addr)
	if err != nil {
		return 0, fmt.Errorf("transfer: %w", err)
	}

	var balance domain.Amount
	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		if err := tx.Accounts().Credit(ctx, addr, amount); err != nil {
			return err
		}
		if err := tx.Transfers().Record(ctx, domain.Transfer{
			ID:        uuid.New().String(),
			From:      addr, // funding has no internal source account
			To:        addr,
			Amount:    amount,
			Kind:      domain.TransferKindFunding,
			CreatedAt: s.clock.Now(),
		}); err != nil {
			return err
		}
		var err error
		balance, err = tx.Accounts().Balance(ctx, addr)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("transfer: fund %s: %w", addr, err)
	}

	s.logger.InfoContext(ctx, "account funded",
		slog.String("address", addr),
		slog.String("amount", amount.String()),
	)
	return balance, nil
}

// Balance returns an account's current balance.
func (s *TransferService) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	addr, err := domain.NormalizeAddress(addr)
	if err != nil {
		return 0, fmt.Errorf("transfer: %w", err)
	}
	return s.store.Accounts().Balance(ctx, addr)
}

// History returns transfer receipts touching the account.
func (s *TransferService) History(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Transfer, error) {
	addr, err := domain.NormalizeAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	return s.store.Transfers().ListByAccount(ctx, addr, opts)
}

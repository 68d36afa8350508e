package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
)

// EscrowService holds donor funds against pending events. A clause never
// exists without its full payout amount sitting in VaultEscrow: the debit,
// the vault credit, and the clause row are one atomic unit.
type EscrowService struct {
	store       domain.Store
	bus         domain.SignalBus
	clock       domain.Clock
	logger      *slog.Logger
	minDonation domain.Amount // floor for the instant leg of a mixed donation
}

// NewEscrowService creates an EscrowService. bus may be nil; minDonation of
// zero disables the instant-donation floor.
func NewEscrowService(store domain.Store, bus domain.SignalBus, clock domain.Clock, minDonation domain.Amount, logger *slog.Logger) *EscrowService {
	return &EscrowService{
		store:       store,
		bus:         bus,
		clock:       orSystemClock(clock),
		logger:      logger.With(slog.String("component", "escrow")),
		minDonation: minDonation,
	}
}

// Deposit escrows amount from donor and creates a clause against the event.
// The event may already be resolved; such a clause is immediately
// executable.
func (s *EscrowService) Deposit(ctx context.Context, eventID int64, donor domain.Address, amount domain.Amount, recipientIfTrue, recipientIfFalse domain.Address) (domain.Clause, error) {
	if amount <= 0 {
		return domain.Clause{}, fmt.Errorf("escrow: deposit of %s: %w", amount, domain.ErrInvalidAmount)
	}
	donor, recipientIfTrue, recipientIfFalse, err := normalizeTriple(donor, recipientIfTrue, recipientIfFalse)
	if err != nil {
		return domain.Clause{}, fmt.Errorf("escrow: %w", err)
	}

	clause := domain.Clause{
		EventID:          eventID,
		Donor:            donor,
		PayoutAmount:     amount,
		RecipientIfTrue:  recipientIfTrue,
		RecipientIfFalse: recipientIfFalse,
		CreatedAt:        s.clock.Now(),
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		if _, err := tx.Events().Get(ctx, eventID); err != nil {
			return err
		}
		id, err := tx.Clauses().Create(ctx, clause)
		if err != nil {
			return err
		}
		clause.ID = id
		if err := move(ctx, tx, domain.Transfer{
			From:      donor,
			To:        domain.VaultEscrow,
			Amount:    amount,
			Kind:      domain.TransferKindDeposit,
			ClauseID:  &clause.ID,
			EventID:   &eventID,
			CreatedAt: clause.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clause.deposited", map[string]any{
			"clause_id": id,
			"event_id":  eventID,
			"donor":     donor,
			"amount":    amount.String(),
		})
	})
	if err != nil {
		return domain.Clause{}, fmt.Errorf("escrow: deposit for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "clause deposited",
		slog.Int64("clause_id", clause.ID),
		slog.Int64("event_id", eventID),
		slog.String("amount", amount.String()),
	)
	publish(ctx, s.bus, s.logger, ChannelClauses, map[string]any{
		"type":   "clause_deposited",
		"clause": clause,
	})
	return clause, nil
}

// MixedDonation performs an instant payout and a conditional deposit in one
// atomic unit. total must cover both legs exactly: the conditional leg is
// total minus instantAmount and must be positive.
func (s *EscrowService) MixedDonation(ctx context.Context, donor, instantRecipient domain.Address, instantAmount domain.Amount, eventID int64, recipientIfTrue, recipientIfFalse domain.Address, total domain.Amount) (domain.Clause, error) {
	if total <= 0 || instantAmount < 0 {
		return domain.Clause{}, fmt.Errorf("escrow: mixed donation amounts: %w", domain.ErrInvalidAmount)
	}
	conditional := total - instantAmount
	if conditional <= 0 {
		return domain.Clause{}, fmt.Errorf("escrow: conditional amount must be positive: %w", domain.ErrInvalidAmount)
	}
	if instantAmount > 0 && instantAmount < s.minDonation {
		return domain.Clause{}, fmt.Errorf("escrow: instant amount below %s floor: %w", s.minDonation, domain.ErrInvalidAmount)
	}

	donor, recipientIfTrue, recipientIfFalse, err := normalizeTriple(donor, recipientIfTrue, recipientIfFalse)
	if err != nil {
		return domain.Clause{}, fmt.Errorf("escrow: %w", err)
	}
	if instantAmount > 0 {
		if instantRecipient, err = domain.NormalizeAddress(instantRecipient); err != nil {
			return domain.Clause{}, fmt.Errorf("escrow: instant recipient: %w", err)
		}
	}

	now := s.clock.Now()
	clause := domain.Clause{
		EventID:          eventID,
		Donor:            donor,
		PayoutAmount:     conditional,
		RecipientIfTrue:  recipientIfTrue,
		RecipientIfFalse: recipientIfFalse,
		CreatedAt:        now,
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		if _, err := tx.Events().Get(ctx, eventID); err != nil {
			return err
		}
		if instantAmount > 0 {
			if err := move(ctx, tx, domain.Transfer{
				From:      donor,
				To:        instantRecipient,
				Amount:    instantAmount,
				Kind:      domain.TransferKindInstant,
				EventID:   &eventID,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		id, err := tx.Clauses().Create(ctx, clause)
		if err != nil {
			return err
		}
		clause.ID = id
		if err := move(ctx, tx, domain.Transfer{
			From:      donor,
			To:        domain.VaultEscrow,
			Amount:    conditional,
			Kind:      domain.TransferKindDeposit,
			ClauseID:  &clause.ID,
			EventID:   &eventID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clause.mixed_donation", map[string]any{
			"clause_id":   id,
			"event_id":    eventID,
			"donor":       donor,
			"instant":     instantAmount.String(),
			"conditional": conditional.String(),
		})
	})
	if err != nil {
		return domain.Clause{}, fmt.Errorf("escrow: mixed donation for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "mixed donation accepted",
		slog.Int64("clause_id", clause.ID),
		slog.Int64("event_id", eventID),
		slog.String("instant", instantAmount.String()),
		slog.String("conditional", conditional.String()),
	)
	publish(ctx, s.bus, s.logger, ChannelClauses, map[string]any{
		"type":   "clause_deposited",
		"clause": clause,
	})
	return clause, nil
}

// ExecuteOne pays out a single clause according to its event's outcome and
// returns the recipient. A second call on the same clause fails with
// ErrAlreadyExecuted and moves no funds.
func (s *EscrowService) ExecuteOne(ctx context.Context, clauseID int64) (domain.Address, error) {
	var recipient domain.Address
	now := s.clock.Now()

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		var err error
		recipient, err = executeClause(ctx, tx, clauseID, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("escrow: execute clause %d: %w", clauseID, err)
	}

	s.logger.InfoContext(ctx, "clause executed",
		slog.Int64("clause_id", clauseID),
		slog.String("recipient", recipient),
	)
	publish(ctx, s.bus, s.logger, ChannelClauses, map[string]any{
		"type":      "clause_executed",
		"clause_id": clauseID,
		"recipient": recipient,
	})
	return recipient, nil
}

// executeClause is the shared payout step used by ExecuteOne and the batch
// executor. It must run inside an Atomic unit.
func executeClause(ctx context.Context, tx domain.Store, clauseID int64, now time.Time) (domain.Address, error) {
	clause, err := tx.Clauses().Get(ctx, clauseID)
	if err != nil {
		return "", err
	}
	if clause.Executed {
		return "", domain.ErrAlreadyExecuted
	}
	event, err := tx.Events().Get(ctx, clause.EventID)
	if err != nil {
		return "", err
	}
	if !event.Resolved() {
		return "", domain.ErrEventNotResolved
	}

	recipient := clause.RecipientIfFalse
	if event.Outcome {
		recipient = clause.RecipientIfTrue
	}

	if err := move(ctx, tx, domain.Transfer{
		From:      domain.VaultEscrow,
		To:        recipient,
		Amount:    clause.PayoutAmount,
		Kind:      domain.TransferKindPayout,
		ClauseID:  &clause.ID,
		EventID:   &clause.EventID,
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	if err := tx.Clauses().MarkExecuted(ctx, clauseID, now); err != nil {
		return "", err
	}
	if err := tx.Audit().Log(ctx, "clause.executed", map[string]any{
		"clause_id": clauseID,
		"event_id":  clause.EventID,
		"recipient": recipient,
		"amount":    clause.PayoutAmount.String(),
	}); err != nil {
		return "", err
	}
	return recipient, nil
}

// Refund returns an unexecuted clause's escrow to its donor. Only the donor
// may refund, and only while the event is still pending; the executed flag
// makes refund and execution mutually exclusive.
func (s *EscrowService) Refund(ctx context.Context, clauseID int64, caller domain.Address) error {
	now := s.clock.Now()

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		clause, err := tx.Clauses().Get(ctx, clauseID)
		if err != nil {
			return err
		}
		if clause.Executed {
			return domain.ErrAlreadyExecuted
		}
		if !domain.SameAddress(caller, clause.Donor) {
			return domain.ErrUnauthorized
		}
		event, err := tx.Events().Get(ctx, clause.EventID)
		if err != nil {
			return err
		}
		if event.Resolved() {
			return domain.ErrAlreadyResolved
		}
		if err := move(ctx, tx, domain.Transfer{
			From:      domain.VaultEscrow,
			To:        clause.Donor,
			Amount:    clause.PayoutAmount,
			Kind:      domain.TransferKindRefund,
			ClauseID:  &clause.ID,
			EventID:   &clause.EventID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.Clauses().MarkRefunded(ctx, clauseID, now); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "clause.refunded", map[string]any{
			"clause_id": clauseID,
			"event_id":  clause.EventID,
			"donor":     clause.Donor,
			"amount":    clause.PayoutAmount.String(),
		})
	})
	if err != nil {
		return fmt.Errorf("escrow: refund clause %d: %w", clauseID, err)
	}

	s.logger.InfoContext(ctx, "clause refunded", slog.Int64("clause_id", clauseID))
	publish(ctx, s.bus, s.logger, ChannelClauses, map[string]any{
		"type":      "clause_refunded",
		"clause_id": clauseID,
	})
	return nil
}

// GetClause returns a single clause.
func (s *EscrowService) GetClause(ctx context.Context, clauseID int64) (domain.Clause, error) {
	c, err := s.store.Clauses().Get(ctx, clauseID)
	if err != nil {
		return domain.Clause{}, fmt.Errorf("escrow: get clause %d: %w", clauseID, err)
	}
	return c, nil
}

// ListByEvent returns the event's clauses in index order.
func (s *EscrowService) ListByEvent(ctx context.Context, eventID int64, opts domain.ListOpts) ([]domain.Clause, error) {
	return s.store.Clauses().ListByEvent(ctx, eventID, opts)
}

// ListByDonor returns all clauses funded by donor.
func (s *EscrowService) ListByDonor(ctx context.Context, donor domain.Address, opts domain.ListOpts) ([]domain.Clause, error) {
	donor, err := domain.NormalizeAddress(donor)
	if err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}
	return s.store.Clauses().ListByDonor(ctx, donor, opts)
}

func normalizeTriple(donor, a, b domain.Address) (domain.Address, domain.Address, domain.Address, error) {
	donor, err := domain.NormalizeAddress(donor)
	if err != nil {
		return "", "", "", fmt.Errorf("donor: %w", err)
	}
	if a, err = domain.NormalizeAddress(a); err != nil {
		return "", "", "", fmt.Errorf("recipient if true: %w", err)
	}
	if b, err = domain.NormalizeAddress(b); err != nil {
		return "", "", "", fmt.Errorf("recipient if false: %w", err)
	}
	return donor, a, b, nil
}

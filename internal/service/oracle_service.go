package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
)

// OracleParams configures the resolution engine's economics and timing.
type OracleParams struct {
	// Identity is the engine's own address. Events whose resolver authority
	// equals Identity are resolved by this engine and nothing else.
	Identity domain.Address

	// MinProposalStake is the floor for the initial proposal bond.
	MinProposalStake domain.Amount

	// MinVoteStake is the floor for a single vote's stake.
	MinVoteStake domain.Amount

	// ProposalWindow is how long a proposal stays open to disputes. An
	// undisputed proposal becomes resolvable once the window elapses.
	ProposalWindow time.Duration

	// VotingWindow is how long voting stays open after a dispute is raised.
	VotingWindow time.Duration
}

// Validate checks the parameter set before wiring.
func (p OracleParams) Validate() error {
	if _, err := domain.NormalizeAddress(p.Identity); err != nil {
		return fmt.Errorf("oracle params: identity: %w", err)
	}
	if p.MinProposalStake <= 0 {
		return fmt.Errorf("oracle params: min proposal stake must be positive: %w", domain.ErrInvalidInput)
	}
	if p.MinVoteStake <= 0 {
		return fmt.Errorf("oracle params: min vote stake must be positive: %w", domain.ErrInvalidInput)
	}
	if p.ProposalWindow <= 0 || p.VotingWindow <= 0 {
		return fmt.Errorf("oracle params: windows must be positive: %w", domain.ErrInvalidInput)
	}
	return nil
}

// OracleService runs the propose -> dispute -> vote -> resolve state machine
// per event and manages the stake ledger behind it. Terminal resolutions are
// written back to the event registry under the engine's own identity.
type OracleService struct {
	store  domain.Store
	bus    domain.SignalBus
	clock  domain.Clock
	params OracleParams
	logger *slog.Logger
}

// NewOracleService creates an OracleService. bus may be nil.
func NewOracleService(store domain.Store, bus domain.SignalBus, clock domain.Clock, params OracleParams, logger *slog.Logger) *OracleService {
	return &OracleService{
		store:  store,
		bus:    bus,
		clock:  orSystemClock(clock),
		params: params,
		logger: logger.With(slog.String("component", "oracle")),
	}
}

// Identity returns the engine's resolver address.
func (s *OracleService) Identity() domain.Address {
	return s.params.Identity
}

// Propose opens a resolution case for an oracle-routed event with an
// initial asserted outcome backed by stake. The stake is locked in
// VaultStake until claimed after resolution.
func (s *OracleService) Propose(ctx context.Context, eventID int64, outcome bool, proposer domain.Address, stake domain.Amount) (domain.OracleCase, error) {
	if stake < s.params.MinProposalStake {
		return domain.OracleCase{}, fmt.Errorf("oracle: propose with stake %s (minimum %s): %w",
			stake, s.params.MinProposalStake, domain.ErrBelowMinimumStake)
	}
	proposer, err := domain.NormalizeAddress(proposer)
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: proposer: %w", err)
	}

	now := s.clock.Now()
	oc := domain.OracleCase{
		EventID:          eventID,
		Phase:            domain.OraclePhaseProposed,
		ProposedOutcome:  outcome,
		Proposer:         proposer,
		ProposerStake:    stake,
		ProposalDeadline: now.Add(s.params.ProposalWindow),
		CreatedAt:        now,
	}
	if outcome {
		oc.StakeTrue = stake
	} else {
		oc.StakeFalse = stake
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		if err := s.requireOracleEvent(ctx, tx, eventID); err != nil {
			return err
		}
		if err := tx.Oracle().CreateCase(ctx, oc); err != nil {
			return err
		}
		if err := s.lockStake(ctx, tx, eventID, proposer, stake, now); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "oracle.proposed", map[string]any{
			"event_id": eventID,
			"proposer": proposer,
			"outcome":  outcome,
			"stake":    stake.String(),
		})
	})
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: propose for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "outcome proposed",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", outcome),
		slog.String("stake", stake.String()),
	)
	s.publishCase(ctx, "oracle_proposed", oc)
	return oc, nil
}

// Dispute contests an open proposal. The bond must be exactly double the
// proposer's stake and the proposal window must still be open. Raising the
// dispute starts the voting window.
func (s *OracleService) Dispute(ctx context.Context, eventID int64, outcome bool, disputer domain.Address, stake domain.Amount) (domain.OracleCase, error) {
	disputer, err := domain.NormalizeAddress(disputer)
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: disputer: %w", err)
	}

	now := s.clock.Now()
	var oc domain.OracleCase

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		c, err := tx.Oracle().GetCase(ctx, eventID)
		if err != nil {
			return err
		}
		switch c.Phase {
		case domain.OraclePhaseResolved:
			return domain.ErrAlreadyResolved
		case domain.OraclePhaseDisputed:
			return fmt.Errorf("already disputed: %w", domain.ErrWindowClosed)
		}
		if now.After(c.ProposalDeadline) {
			return domain.ErrWindowClosed
		}
		if stake != 2*c.ProposerStake {
			return fmt.Errorf("got %s, need %s: %w", stake, (2 * c.ProposerStake).String(), domain.ErrStakeTooLow)
		}
		if outcome == c.ProposedOutcome {
			return fmt.Errorf("dispute must assert the opposite outcome: %w", domain.ErrInvalidInput)
		}

		c.Phase = domain.OraclePhaseDisputed
		c.DisputeOutcome = outcome
		c.Disputer = disputer
		c.DisputerStake = stake
		c.VotingDeadline = now.Add(s.params.VotingWindow)
		if outcome {
			c.StakeTrue += stake
		} else {
			c.StakeFalse += stake
		}
		if err := tx.Oracle().UpdateCase(ctx, c); err != nil {
			return err
		}
		if err := s.lockStake(ctx, tx, eventID, disputer, stake, now); err != nil {
			return err
		}
		oc = c
		return tx.Audit().Log(ctx, "oracle.disputed", map[string]any{
			"event_id": eventID,
			"disputer": disputer,
			"outcome":  outcome,
			"stake":    stake.String(),
		})
	})
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: dispute for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "proposal disputed",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", outcome),
		slog.String("stake", stake.String()),
	)
	s.publishCase(ctx, "oracle_disputed", oc)
	return oc, nil
}

// Vote adds a stake-weighted vote to a disputed case. One vote per voter;
// the proposer and disputer already asserted their outcomes through their
// bonds and cannot vote again.
func (s *OracleService) Vote(ctx context.Context, eventID int64, outcome bool, voter domain.Address, stake domain.Amount) (domain.OracleCase, error) {
	if stake < s.params.MinVoteStake {
		return domain.OracleCase{}, fmt.Errorf("oracle: vote with stake %s (minimum %s): %w",
			stake, s.params.MinVoteStake, domain.ErrBelowMinimumStake)
	}
	voter, err := domain.NormalizeAddress(voter)
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: voter: %w", err)
	}

	now := s.clock.Now()
	var oc domain.OracleCase

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		c, err := tx.Oracle().GetCase(ctx, eventID)
		if err != nil {
			return err
		}
		switch c.Phase {
		case domain.OraclePhaseResolved:
			return domain.ErrAlreadyResolved
		case domain.OraclePhaseProposed:
			return domain.ErrNotDisputed
		}
		if now.After(c.VotingDeadline) {
			return domain.ErrVotingClosed
		}
		if domain.SameAddress(voter, c.Proposer) || domain.SameAddress(voter, c.Disputer) {
			return domain.ErrDuplicateVoter
		}
		if err := tx.Oracle().PutVote(ctx, domain.Vote{
			EventID: eventID,
			Voter:   voter,
			Outcome: outcome,
			Stake:   stake,
			CastAt:  now,
		}); err != nil {
			return err
		}
		if outcome {
			c.StakeTrue += stake
		} else {
			c.StakeFalse += stake
		}
		if err := tx.Oracle().UpdateCase(ctx, c); err != nil {
			return err
		}
		if err := s.lockStake(ctx, tx, eventID, voter, stake, now); err != nil {
			return err
		}
		oc = c
		return tx.Audit().Log(ctx, "oracle.voted", map[string]any{
			"event_id": eventID,
			"voter":    voter,
			"outcome":  outcome,
			"stake":    stake.String(),
		})
	})
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: vote for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "vote cast",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", outcome),
		slog.String("stake", stake.String()),
	)
	s.publishCase(ctx, "oracle_voted", oc)
	return oc, nil
}

// Resolve finalizes a case once its governing deadline has passed: an
// undisputed proposal resolves to the proposed outcome, a disputed one to
// the side with strictly greater stake. A tie goes to the disputer, whose
// double bond the electorate failed to overturn. The event
// registry transition happens in the same atomic unit.
func (s *OracleService) Resolve(ctx context.Context, eventID int64) (domain.OracleCase, error) {
	now := s.clock.Now()
	var oc domain.OracleCase

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		c, err := tx.Oracle().GetCase(ctx, eventID)
		if err != nil {
			return err
		}

		var final bool
		switch c.Phase {
		case domain.OraclePhaseResolved:
			return domain.ErrAlreadyResolved
		case domain.OraclePhaseProposed:
			if !now.After(c.ProposalDeadline) {
				return fmt.Errorf("proposal window open until %s: %w", c.ProposalDeadline.Format(time.RFC3339), domain.ErrWindowOpen)
			}
			final = c.ProposedOutcome
		case domain.OraclePhaseDisputed:
			if !now.After(c.VotingDeadline) {
				return fmt.Errorf("voting open until %s: %w", c.VotingDeadline.Format(time.RFC3339), domain.ErrWindowOpen)
			}
			switch {
			case c.StakeTrue > c.StakeFalse:
				final = true
			case c.StakeFalse > c.StakeTrue:
				final = false
			default:
				final = c.DisputeOutcome
			}
		default:
			return fmt.Errorf("case in phase %q: %w", c.Phase, domain.ErrUnresolvable)
		}

		oc, err = s.finalize(ctx, tx, c, final, false, now)
		return err
	})
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: resolve event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "case resolved",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", oc.FinalOutcome),
		slog.Bool("disputed", oc.Disputer != ""),
	)
	s.publishCase(ctx, "oracle_resolved", oc)
	return oc, nil
}

// ResolveExpedited forces an outcome, bypassing all deadlines. Only the
// event's original creator may expedite. A case that was never proposed is
// synthesized in its terminal state so stake claims stay well-defined.
func (s *OracleService) ResolveExpedited(ctx context.Context, eventID int64, forced bool, caller domain.Address) (domain.OracleCase, error) {
	now := s.clock.Now()
	var oc domain.OracleCase

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		event, err := tx.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(caller, event.CreatedBy) {
			return domain.ErrUnauthorized
		}

		c, err := tx.Oracle().GetCase(ctx, eventID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c = domain.OracleCase{
				EventID:   eventID,
				Phase:     domain.OraclePhaseProposed,
				CreatedAt: now,
			}
			if err := s.requireOracleEvent(ctx, tx, eventID); err != nil {
				return err
			}
			if err := tx.Oracle().CreateCase(ctx, c); err != nil {
				return err
			}
		case err != nil:
			return err
		case c.Phase == domain.OraclePhaseResolved:
			return domain.ErrAlreadyResolved
		}

		oc, err = s.finalize(ctx, tx, c, forced, true, now)
		return err
	})
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: expedited resolve event %d: %w", eventID, err)
	}

	s.logger.WarnContext(ctx, "case resolved expedited",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", forced),
		slog.String("caller", caller),
	)
	s.publishCase(ctx, "oracle_resolved", oc)
	return oc, nil
}

// finalize moves the case to Resolved and performs the registry write-back.
// Must run inside an Atomic unit.
func (s *OracleService) finalize(ctx context.Context, tx domain.Store, c domain.OracleCase, final, expedited bool, now time.Time) (domain.OracleCase, error) {
	c.Phase = domain.OraclePhaseResolved
	c.FinalOutcome = final
	c.Expedited = expedited
	c.ResolvedAt = &now
	if err := tx.Oracle().UpdateCase(ctx, c); err != nil {
		return domain.OracleCase{}, err
	}

	event, err := tx.Events().Get(ctx, c.EventID)
	if err != nil {
		return domain.OracleCase{}, err
	}
	if !domain.SameAddress(event.Resolver, s.params.Identity) {
		return domain.OracleCase{}, domain.ErrUnauthorized
	}
	if err := tx.Events().MarkResolved(ctx, c.EventID, final, now); err != nil {
		return domain.OracleCase{}, err
	}
	if err := tx.Audit().Log(ctx, "oracle.resolved", map[string]any{
		"event_id":  c.EventID,
		"outcome":   final,
		"expedited": expedited,
	}); err != nil {
		return domain.OracleCase{}, err
	}
	return c, nil
}

// ClaimRewards pays out a winning participant: their own stake back plus a
// share of the losing stake proportional to their contribution to the
// winning side. The stake record is cleared in the same unit, so a repeat
// claim fails with ErrNothingToClaim.
func (s *OracleService) ClaimRewards(ctx context.Context, eventID int64, caller domain.Address) (domain.Amount, error) {
	caller, err := domain.NormalizeAddress(caller)
	if err != nil {
		return 0, fmt.Errorf("oracle: claimant: %w", err)
	}

	now := s.clock.Now()
	var reward domain.Amount

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		c, err := tx.Oracle().GetCase(ctx, eventID)
		if err != nil {
			return err
		}
		if c.Phase != domain.OraclePhaseResolved {
			return domain.ErrEventNotResolved
		}

		stake, err := tx.Oracle().StakeOf(ctx, eventID, caller)
		if err != nil {
			return err
		}
		if stake <= 0 {
			return domain.ErrNothingToClaim
		}

		onWinningSide := false
		if vote, err := tx.Oracle().GetVote(ctx, eventID, caller); err == nil {
			onWinningSide = vote.Outcome == c.FinalOutcome
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		} else {
			switch {
			case domain.SameAddress(caller, c.Proposer):
				onWinningSide = c.ProposedOutcome == c.FinalOutcome
			case domain.SameAddress(caller, c.Disputer):
				onWinningSide = c.DisputeOutcome == c.FinalOutcome
			}
		}
		if !onWinningSide {
			return fmt.Errorf("stake forfeited, not on the winning side: %w", domain.ErrUnauthorized)
		}

		winning := c.WinningStake()
		losing := c.LosingStake()
		reward = stake
		if winning > 0 {
			// Integer division; remainder dust stays in the vault.
			reward += domain.Amount(int64(stake) * int64(losing) / int64(winning))
		}

		if err := tx.Oracle().ClearStake(ctx, eventID, caller); err != nil {
			return err
		}
		if err := move(ctx, tx, domain.Transfer{
			From:      domain.VaultStake,
			To:        caller,
			Amount:    reward,
			Kind:      domain.TransferKindReward,
			EventID:   &eventID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.Audit().Log(ctx, "oracle.claimed", map[string]any{
			"event_id": eventID,
			"claimant": caller,
			"reward":   reward.String(),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("oracle: claim for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "rewards claimed",
		slog.Int64("event_id", eventID),
		slog.String("claimant", caller),
		slog.String("reward", reward.String()),
	)
	return reward, nil
}

// GetCase returns the resolution case for an event.
func (s *OracleService) GetCase(ctx context.Context, eventID int64) (domain.OracleCase, error) {
	c, err := s.store.Oracle().GetCase(ctx, eventID)
	if err != nil {
		return domain.OracleCase{}, fmt.Errorf("oracle: get case for event %d: %w", eventID, err)
	}
	return c, nil
}

// StakeOf returns a participant's locked stake in a case.
func (s *OracleService) StakeOf(ctx context.Context, eventID int64, addr domain.Address) (domain.Amount, error) {
	addr, err := domain.NormalizeAddress(addr)
	if err != nil {
		return 0, fmt.Errorf("oracle: %w", err)
	}
	return s.store.Oracle().StakeOf(ctx, eventID, addr)
}

// ListDue returns unresolved cases whose deadline has passed, for the
// deadline worker.
func (s *OracleService) ListDue(ctx context.Context, opts domain.ListOpts) ([]domain.OracleCase, error) {
	return s.store.Oracle().ListDue(ctx, s.clock.Now(), opts)
}

// requireOracleEvent checks the event exists, is unresolved, and names this
// engine as its resolver authority.
func (s *OracleService) requireOracleEvent(ctx context.Context, tx domain.Store, eventID int64) error {
	event, err := tx.Events().Get(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Resolved() {
		return domain.ErrAlreadyResolved
	}
	if !domain.SameAddress(event.Resolver, s.params.Identity) {
		return fmt.Errorf("event %d is not routed through the oracle engine: %w", eventID, domain.ErrInvalidInput)
	}
	return nil
}

// lockStake moves stake into VaultStake and records it against the
// participant. Must run inside an Atomic unit.
func (s *OracleService) lockStake(ctx context.Context, tx domain.Store, eventID int64, addr domain.Address, stake domain.Amount, now time.Time) error {
	if err := move(ctx, tx, domain.Transfer{
		From:      addr,
		To:        domain.VaultStake,
		Amount:    stake,
		Kind:      domain.TransferKindStake,
		EventID:   &eventID,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return tx.Oracle().AddStake(ctx, eventID, addr, stake)
}

func (s *OracleService) publishCase(ctx context.Context, typ string, c domain.OracleCase) {
	publish(ctx, s.bus, s.logger, ChannelOracle, map[string]any{
		"type": typ,
		"case": c,
	})
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/causeway-labs/causeway/internal/domain"
)

// oracleStore implements domain.OracleStore across three tables: one case
// row per event, one vote row per (event, voter), and one stake row per
// (event, participant).
type oracleStore struct {
	q querier
}

const caseColumns = `
	event_id, phase, proposed_outcome, proposer, proposer_stake,
	dispute_outcome, disputer, disputer_stake,
	proposal_deadline, voting_deadline,
	stake_true, stake_false,
	final_outcome, expedited, created_at, resolved_at`

func (s oracleStore) CreateCase(ctx context.Context, c domain.OracleCase) error {
	const query = `
		INSERT INTO oracle_cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := s.q.Exec(ctx, query, caseArgs(c)...)
	if err != nil {
		return fmt.Errorf("postgres: create case for event %d: %w", c.EventID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyProposed
	}
	return nil
}

func (s oracleStore) GetCase(ctx context.Context, eventID int64) (domain.OracleCase, error) {
	const query = `SELECT ` + caseColumns + ` FROM oracle_cases WHERE event_id = $1`

	c, err := scanCase(s.q.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OracleCase{}, domain.ErrNotFound
		}
		return domain.OracleCase{}, fmt.Errorf("postgres: get case for event %d: %w", eventID, err)
	}
	return c, nil
}

func (s oracleStore) UpdateCase(ctx context.Context, c domain.OracleCase) error {
	const query = `
		UPDATE oracle_cases SET
			phase             = $2,
			proposed_outcome  = $3,
			proposer          = $4,
			proposer_stake    = $5,
			dispute_outcome   = $6,
			disputer          = $7,
			disputer_stake    = $8,
			proposal_deadline = $9,
			voting_deadline   = $10,
			stake_true        = $11,
			stake_false       = $12,
			final_outcome     = $13,
			expedited         = $14,
			created_at        = $15,
			resolved_at       = $16
		WHERE event_id = $1`

	tag, err := s.q.Exec(ctx, query, caseArgs(c)...)
	if err != nil {
		return fmt.Errorf("postgres: update case for event %d: %w", c.EventID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s oracleStore) ListDue(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.OracleCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM oracle_cases
		WHERE (phase = $1 AND proposal_deadline <= $3)
		   OR (phase = $2 AND voting_deadline <= $3)
		ORDER BY event_id`
	args := []any{string(domain.OraclePhaseProposed), string(domain.OraclePhaseDisputed), now}
	query, args = limitClause(query, args, opts)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due cases: %w", err)
	}
	defer rows.Close()

	var due []domain.OracleCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan case: %w", err)
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func (s oracleStore) PutVote(ctx context.Context, v domain.Vote) error {
	const query = `
		INSERT INTO oracle_votes (event_id, voter, outcome, stake, cast_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, voter) DO NOTHING`

	tag, err := s.q.Exec(ctx, query, v.EventID, v.Voter, v.Outcome, int64(v.Stake), v.CastAt)
	if err != nil {
		return fmt.Errorf("postgres: put vote for event %d: %w", v.EventID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateVoter
	}
	return nil
}

func (s oracleStore) GetVote(ctx context.Context, eventID int64, voter domain.Address) (domain.Vote, error) {
	const query = `
		SELECT event_id, voter, outcome, stake, cast_at
		FROM oracle_votes WHERE event_id = $1 AND voter = $2`

	var v domain.Vote
	var stake int64
	err := s.q.QueryRow(ctx, query, eventID, voter).Scan(
		&v.EventID, &v.Voter, &v.Outcome, &stake, &v.CastAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("postgres: get vote for event %d: %w", eventID, err)
	}
	v.Stake = domain.Amount(stake)
	return v, nil
}

func (s oracleStore) ListVotes(ctx context.Context, eventID int64) ([]domain.Vote, error) {
	const query = `
		SELECT event_id, voter, outcome, stake, cast_at
		FROM oracle_votes WHERE event_id = $1 ORDER BY cast_at`

	rows, err := s.q.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list votes for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		var v domain.Vote
		var stake int64
		if err := rows.Scan(&v.EventID, &v.Voter, &v.Outcome, &stake, &v.CastAt); err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		v.Stake = domain.Amount(stake)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (s oracleStore) AddStake(ctx context.Context, eventID int64, addr domain.Address, amount domain.Amount) error {
	const query = `
		INSERT INTO oracle_stakes (event_id, participant, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, participant)
		DO UPDATE SET amount = oracle_stakes.amount + EXCLUDED.amount`

	if _, err := s.q.Exec(ctx, query, eventID, addr, int64(amount)); err != nil {
		return fmt.Errorf("postgres: add stake for event %d: %w", eventID, err)
	}
	return nil
}

func (s oracleStore) StakeOf(ctx context.Context, eventID int64, addr domain.Address) (domain.Amount, error) {
	const query = `
		SELECT COALESCE(
			(SELECT amount FROM oracle_stakes WHERE event_id = $1 AND participant = $2), 0)`

	var amount int64
	if err := s.q.QueryRow(ctx, query, eventID, addr).Scan(&amount); err != nil {
		return 0, fmt.Errorf("postgres: stake for event %d: %w", eventID, err)
	}
	return domain.Amount(amount), nil
}

func (s oracleStore) ClearStake(ctx context.Context, eventID int64, addr domain.Address) error {
	const query = `DELETE FROM oracle_stakes WHERE event_id = $1 AND participant = $2`

	if _, err := s.q.Exec(ctx, query, eventID, addr); err != nil {
		return fmt.Errorf("postgres: clear stake for event %d: %w", eventID, err)
	}
	return nil
}

func caseArgs(c domain.OracleCase) []any {
	return []any{
		c.EventID, string(c.Phase), c.ProposedOutcome, c.Proposer, int64(c.ProposerStake),
		c.DisputeOutcome, c.Disputer, int64(c.DisputerStake),
		c.ProposalDeadline, c.VotingDeadline,
		int64(c.StakeTrue), int64(c.StakeFalse),
		c.FinalOutcome, c.Expedited, c.CreatedAt, c.ResolvedAt,
	}
}

func scanCase(row pgx.Row) (domain.OracleCase, error) {
	var c domain.OracleCase
	var phase string
	var proposerStake, disputerStake, stakeTrue, stakeFalse int64
	err := row.Scan(
		&c.EventID, &phase, &c.ProposedOutcome, &c.Proposer, &proposerStake,
		&c.DisputeOutcome, &c.Disputer, &disputerStake,
		&c.ProposalDeadline, &c.VotingDeadline,
		&stakeTrue, &stakeFalse,
		&c.FinalOutcome, &c.Expedited, &c.CreatedAt, &c.ResolvedAt,
	)
	if err != nil {
		return domain.OracleCase{}, err
	}
	c.Phase = domain.OraclePhase(phase)
	c.ProposerStake = domain.Amount(proposerStake)
	c.DisputerStake = domain.Amount(disputerStake)
	c.StakeTrue = domain.Amount(stakeTrue)
	c.StakeFalse = domain.Amount(stakeFalse)
	return c, nil
}

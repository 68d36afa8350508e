package domain

import "time"

// OraclePhase is the state of a resolution case. There is no stored
// "no proposal" phase: a case record comes into existence with the first
// proposal and is terminal at Resolved.
type OraclePhase string

const (
	OraclePhaseProposed OraclePhase = "proposed"
	OraclePhaseDisputed OraclePhase = "disputed"
	OraclePhaseResolved OraclePhase = "resolved"
)

// OracleCase tracks the propose / dispute / vote / resolve state machine for
// one event routed through the oracle engine. Stake totals include the
// proposer's and disputer's bonds as well as all votes.
type OracleCase struct {
	EventID          int64
	Phase            OraclePhase
	ProposedOutcome  bool
	Proposer         Address
	ProposerStake    Amount
	DisputeOutcome   bool
	Disputer         Address
	DisputerStake    Amount
	ProposalDeadline time.Time
	VotingDeadline   time.Time
	StakeTrue        Amount
	StakeFalse       Amount
	FinalOutcome     bool
	Expedited        bool
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// Disputed reports whether the proposal was ever contested.
func (c OracleCase) Disputed() bool {
	return c.Phase == OraclePhaseDisputed || (c.Phase == OraclePhaseResolved && c.Disputer != "")
}

// WinningStake returns the total stake on the final outcome's side.
func (c OracleCase) WinningStake() Amount {
	if c.FinalOutcome {
		return c.StakeTrue
	}
	return c.StakeFalse
}

// LosingStake returns the total stake on the side the final outcome rejected.
func (c OracleCase) LosingStake() Amount {
	if c.FinalOutcome {
		return c.StakeFalse
	}
	return c.StakeTrue
}

// Vote is a single stake-weighted vote in a disputed case. A voter appears
// at most once per case; the stake stays locked until claimed after
// resolution.
type Vote struct {
	EventID int64
	Voter   Address
	Outcome bool
	Stake   Amount
	CastAt  time.Time
}

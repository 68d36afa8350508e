package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAlreadyResolved   = errors.New("event already resolved")
	ErrAlreadyExecuted   = errors.New("clause already executed")
	ErrEventNotResolved  = errors.New("event not resolved")
	ErrAlreadyProposed   = errors.New("outcome already proposed")
	ErrBelowMinimumStake = errors.New("stake below minimum")
	ErrStakeTooLow       = errors.New("dispute stake must be exactly double the proposal stake")
	ErrWindowClosed      = errors.New("dispute window closed")
	ErrWindowOpen        = errors.New("resolution window still open")
	ErrVotingClosed      = errors.New("voting period closed")
	ErrNotDisputed       = errors.New("case not disputed")
	ErrDuplicateVoter    = errors.New("voter already voted")
	ErrUnresolvable      = errors.New("vote tally unresolvable")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNothingToClaim    = errors.New("nothing to claim")
	ErrLockHeld          = errors.New("lock already held")
)

package domain

import "time"

// Clause is a donor's escrowed conditional donation. The full PayoutAmount
// was moved into VaultEscrow atomically with clause creation, and leaves
// escrow exactly once: to RecipientIfTrue or RecipientIfFalse on execution,
// or back to the donor on a pre-resolution refund.
type Clause struct {
	ID               int64
	EventID          int64
	Donor            Address
	PayoutAmount     Amount
	RecipientIfTrue  Address
	RecipientIfFalse Address
	Executed         bool
	Refunded         bool // subset of Executed; set by the refund path
	CreatedAt        time.Time
	ExecutedAt       *time.Time
}

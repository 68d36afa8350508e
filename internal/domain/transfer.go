package domain

import "time"

// Transfer is a completed movement of value between two ledger accounts.
// Kept for the audit trail and the query surface; the balances themselves
// live in the account store.
type Transfer struct {
	ID        string // uuid receipt
	From      Address
	To        Address
	Amount    Amount
	Kind      TransferKind
	ClauseID  *int64 // set for escrow-related transfers
	EventID   *int64 // set for escrow- and stake-related transfers
	CreatedAt time.Time
}

// TransferKind labels why a transfer happened.
type TransferKind string

const (
	TransferKindInstant TransferKind = "instant"
	TransferKindDeposit TransferKind = "deposit"
	TransferKindPayout  TransferKind = "payout"
	TransferKindRefund  TransferKind = "refund"
	TransferKindStake   TransferKind = "stake"
	TransferKindReward  TransferKind = "reward"
	TransferKindFunding TransferKind = "funding"
)

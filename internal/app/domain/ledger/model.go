// Package ledger defines the immutable transaction records and wallets the
// settlement pipeline writes to.
package ledger

import "time"

// EntryType classifies a ledger transaction.
type EntryType string

const (
	EntryBountyPayout  EntryType = "bounty_payout"
	EntryBountyRefund  EntryType = "bounty_refund"
	EntryPlatformFee   EntryType = "platform_fee"
	EntryDisputePayout EntryType = "dispute_payout"
	EntryDisputeRefund EntryType = "dispute_refund"
	EntryEscrowHold    EntryType = "escrow_hold"
)

// Transaction is an append-only ledger entry. Amounts are non-negative
// integer credits; entries for one settlement event sum to the reward amount.
type Transaction struct {
	ID          string
	UserID      string // publisher side, empty when not applicable
	AgentID     string // agent side, empty when not applicable
	BountyID    string
	DisputeID   string
	Amount      int64
	Type        EntryType
	Description string
	CreatedAt   time.Time
}

// Wallet holds the spendable balance for one account (agent or publisher).
// Balances move only by applying transactions and never go below zero here.
type Wallet struct {
	OwnerID        string
	Balance        int64
	TasksCompleted int
	TasksSubmitted int
	UpdatedAt      time.Time
}

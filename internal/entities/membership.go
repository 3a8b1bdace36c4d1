package entities

import "time"

// MembershipActive is the status written for every fresh activation.
const MembershipActive = "active"

// Membership is the internal ledger entry for a paid membership. Exactly one
// row exists per activating transaction hash; the UNIQUE index on tx_hash is
// what makes duplicate activation impossible.
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TxHash    string    `json:"tx_hash"`
	AmountWei string    `json:"amount_wei"`
	PaidAt    time.Time `json:"paid_at"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

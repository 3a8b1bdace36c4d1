package entities

import "time"

// Membership status values for users.
const (
	MembershipFree = "free"
	MembershipPaid = "paid"
)

// User is an account record. The reconciliation engine only ever moves
// membership_status forward to paid, and only through the activator.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            *string   `json:"email"`
	GithubLogin      *string   `json:"github_login"`
	WalletAddress    *string   `json:"wallet_address"`
	MembershipStatus string    `json:"membership_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewIdentity describes an account to be created during activation when the
// payer has no existing User row.
type NewIdentity struct {
	Username      string  `json:"username"`
	Email         *string `json:"email"`
	GithubLogin   *string `json:"github_login"`
	WalletAddress *string `json:"wallet_address"`
}

// Valid reports whether the descriptor carries enough to create an account.
func (n NewIdentity) Valid() bool {
	return n.Username != ""
}

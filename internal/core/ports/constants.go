package ports

const (
	// DefaultRecoveryListLimit caps a payment-recoveries listing.
	DefaultRecoveryListLimit = 100

	// UserSearchLimit caps an admin user search.
	UserSearchLimit = 20
)

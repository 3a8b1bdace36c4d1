package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/opendev/membership-app/backend/internal/entities"
)

// LedgerClient reads the external chain ledger. Calls are bounded by a
// timeout and perform no retries; retry policy belongs to the caller.
type LedgerClient interface {
	LatestBlock(ctx context.Context) (uint64, error)
	GetTransaction(ctx context.Context, hash string) (*entities.Transfer, error)
	GetIncomingTransfers(ctx context.Context, toAddress string, fromBlock, toBlock uint64) ([]entities.Transfer, error)
}

// Transactor runs fn inside a database transaction, committing on nil and
// rolling back otherwise. Satisfied by the pgx transactor.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ActivationInput identifies the payer either by an existing user id or by a
// fresh identity descriptor, never both.
type ActivationInput struct {
	UserID      *string
	NewIdentity *entities.NewIdentity
	TxHash      string
	AmountWei   *big.Int
	PaidAt      time.Time
}

// MembershipActivator is the single entry point through which a user ever
// reaches paid status.
type MembershipActivator interface {
	Activate(ctx context.Context, in ActivationInput) (membershipID, userID string, err error)
}

// OrphanScanService finds inbound fee transfers with no internal record and
// persists them as recovery cases.
type OrphanScanService interface {
	FindOrphanedTransfers(ctx context.Context) []entities.Transfer
	ProcessOrphanedPayment(ctx context.Context, transfer entities.Transfer) (bool, error)
	ScanAndRecord(ctx context.Context) (found, recorded int)
}

// CaseNotifier is told about each newly persisted recovery case.
type CaseNotifier interface {
	NotifyNewCase(recoveryCase entities.RecoveryCase)
}

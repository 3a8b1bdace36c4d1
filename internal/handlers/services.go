package handlers

import (
	"context"

	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/internal/usecases"
)

// TransactionValidator is the synchronous validation path.
type TransactionValidator interface {
	ValidateAndActivate(ctx context.Context, req usecases.ValidationRequest) (*usecases.ValidationResult, error)
}

// RecoveryWorkflow is the operator-facing review queue.
type RecoveryWorkflow interface {
	List(ctx context.Context, status string) ([]entities.RecoveryCase, error)
	Dispose(ctx context.Context, in usecases.DisposeInput) (*usecases.DisposeResult, error)
}

// UserSearcher finds accounts for the manual matching flow.
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string) ([]entities.User, error)
}

var (
	_ TransactionValidator = (*usecases.ValidatorService)(nil)
	_ RecoveryWorkflow     = (*usecases.RecoveryService)(nil)
)

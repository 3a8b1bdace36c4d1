package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/internal/usecases/repository"
)

// UserStore is the account persistence the activator depends on.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*entities.User, error)
	FindUserByIdentity(ctx context.Context, email, githubLogin *string) (*entities.User, error)
	InsertUser(ctx context.Context, user entities.User) error
	MarkUserPaid(ctx context.Context, userID string, walletAddress *string) error
}

// MembershipStore is the internal payment ledger the activator writes to.
type MembershipStore interface {
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)
	InsertMembership(ctx context.Context, m entities.Membership) error
}

var (
	_ UserStore       = (*repository.UsersRepository)(nil)
	_ MembershipStore = (*repository.MembershipsRepository)(nil)
)

// ActivationService is the only code path through which a user reaches paid
// status. All three reconciliation paths funnel into Activate so the
// tx_hash uniqueness invariant stays centralized.
type ActivationService struct {
	logger      *slog.Logger
	users       UserStore
	memberships MembershipStore
	transactor  ports.Transactor
}

func NewActivationService(logger *slog.Logger, users UserStore, memberships MembershipStore, transactor ports.Transactor) *ActivationService {
	return &ActivationService{
		logger:      logger,
		users:       users,
		memberships: memberships,
		transactor:  transactor,
	}
}

// Activate marks the payer paid and records the membership, atomically. When
// two callers race on the same hash exactly one insert succeeds; the loser
// gets the same "already processed" conflict a pre-check would have produced.
func (s *ActivationService) Activate(ctx context.Context, in ports.ActivationInput) (string, string, error) {
	if in.TxHash == "" || in.AmountWei == nil {
		return "", "", NewValidationError("activation requires a transaction hash and amount")
	}
	if in.UserID == nil && (in.NewIdentity == nil || !in.NewIdentity.Valid()) {
		return "", "", NewValidationError("activation requires an existing user or a new identity")
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var membershipID, userID string

	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var walletAddress *string

		switch {
		case in.UserID != nil:
			user, err := s.users.FindUserByID(ctx, *in.UserID)
			if err != nil {
				return NewStorageError(err)
			}
			if user == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, *in.UserID)
			}
			userID = user.ID

		default:
			// Reuse an existing account when the identity already matches one,
			// so a repeated submission never forks a duplicate user.
			user, err := s.users.FindUserByIdentity(ctx, in.NewIdentity.Email, in.NewIdentity.GithubLogin)
			if err != nil {
				return NewStorageError(err)
			}
			if user != nil {
				userID = user.ID
			} else {
				userID = uuid.New().String()
				newUser := entities.User{
					ID:               userID,
					Username:         in.NewIdentity.Username,
					Email:            in.NewIdentity.Email,
					GithubLogin:      in.NewIdentity.GithubLogin,
					WalletAddress:    in.NewIdentity.WalletAddress,
					MembershipStatus: entities.MembershipFree,
				}
				if err = s.users.InsertUser(ctx, newUser); err != nil {
					return NewStorageError(err)
				}
			}
			walletAddress = in.NewIdentity.WalletAddress
		}

		if err := s.users.MarkUserPaid(ctx, userID, walletAddress); err != nil {
			return NewStorageError(err)
		}

		membershipID = uuid.New().String()
		membership := entities.Membership{
			ID:        membershipID,
			UserID:    userID,
			TxHash:    in.TxHash,
			AmountWei: in.AmountWei.String(),
			PaidAt:    paidAt,
			Status:    entities.MembershipActive,
		}

		if err := s.memberships.InsertMembership(ctx, membership); err != nil {
			if errors.Is(err, repository.ErrDuplicateTxHash) {
				return NewConflictError("Transaction already processed")
			}
			return NewStorageError(err)
		}

		return nil
	})
	if err != nil {
		return "", "", err
	}

	s.logger.Info("Membership activated", "membership_id", membershipID, "user_id", userID, "tx_hash", in.TxHash)
	return membershipID, userID, nil
}

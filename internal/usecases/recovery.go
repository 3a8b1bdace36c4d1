package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/internal/usecases/repository"
)

// Disposition actions an operator can take on a recovery case.
const (
	ActionIgnore  = "ignore"
	ActionMatch   = "match"
	ActionProcess = "process"
)

// RecoveryCaseRepository is the full review-queue surface the workflow needs.
type RecoveryCaseRepository interface {
	FindCaseByID(ctx context.Context, id string, forUpdate bool) (*entities.RecoveryCase, error)
	ListCases(ctx context.Context, status string) ([]entities.RecoveryCase, error)
	UpdateDisposition(ctx context.Context, id, status string, matchedUserID, adminNotes, processedBy *string, processedAt *time.Time) error
}

var _ RecoveryCaseRepository = (*repository.RecoveryCasesRepository)(nil)

// DisposeInput is an operator's decision about one recovery case.
type DisposeInput struct {
	CaseID        string
	Action        string
	MatchedUserID *string
	AdminNotes    *string
	NewIdentity   *entities.NewIdentity
	ProcessedBy   string
}

// DisposeResult reports the outcome of a disposition.
type DisposeResult struct {
	Message string
	UserID  *string
}

// RecoveryService is the manual path: operators review orphaned payments and
// ignore them, match them to a user, or process them into an activation. The
// entire disposition commits or rolls back as one transaction.
type RecoveryService struct {
	logger     *slog.Logger
	cases      RecoveryCaseRepository
	users      UserStore
	activator  ports.MembershipActivator
	transactor ports.Transactor
}

func NewRecoveryService(
	logger *slog.Logger,
	cases RecoveryCaseRepository,
	users UserStore,
	activator ports.MembershipActivator,
	transactor ports.Transactor,
) *RecoveryService {
	return &RecoveryService{
		logger:     logger,
		cases:      cases,
		users:      users,
		activator:  activator,
		transactor: transactor,
	}
}

// List returns recovery cases filtered by status.
func (s *RecoveryService) List(ctx context.Context, status string) ([]entities.RecoveryCase, error) {
	if status != "" && !entities.ValidCaseStatus(status) {
		return nil, NewValidationError("Unknown status %q", status)
	}

	cases, err := s.cases.ListCases(ctx, status)
	if err != nil {
		return nil, NewStorageError(err)
	}
	return cases, nil
}

// Dispose applies one operator action to one case. Validation failures leave
// the case unmodified; storage failures roll the whole disposition back.
func (s *RecoveryService) Dispose(ctx context.Context, in DisposeInput) (*DisposeResult, error) {
	if in.Action != ActionIgnore && in.Action != ActionMatch && in.Action != ActionProcess {
		return nil, NewValidationError("Unknown action %q", in.Action)
	}

	var result *DisposeResult

	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		recoveryCase, err := s.cases.FindCaseByID(ctx, in.CaseID, true)
		if err != nil {
			return NewStorageError(err)
		}
		if recoveryCase == nil {
			return fmt.Errorf("%w: %s", ErrCaseNotFound, in.CaseID)
		}

		target := targetStatus(in.Action)
		if !recoveryCase.CanTransitionTo(target) {
			return NewConflictError(fmt.Sprintf("Case is already %s", recoveryCase.Status))
		}

		switch in.Action {
		case ActionIgnore:
			result, err = s.disposeIgnore(ctx, in)
		case ActionMatch:
			result, err = s.disposeMatch(ctx, in)
		case ActionProcess:
			result, err = s.disposeProcess(ctx, in, recoveryCase)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recovery case disposed", "case_id", in.CaseID, "action", in.Action, "by", in.ProcessedBy)
	return result, nil
}

func targetStatus(action string) string {
	switch action {
	case ActionIgnore:
		return entities.CaseIgnored
	case ActionMatch:
		return entities.CaseMatched
	default:
		return entities.CaseProcessed
	}
}

func (s *RecoveryService) disposeIgnore(ctx context.Context, in DisposeInput) (*DisposeResult, error) {
	err := s.cases.UpdateDisposition(ctx, in.CaseID, entities.CaseIgnored, nil, in.AdminNotes, nil, nil)
	if err != nil {
		return nil, NewStorageError(err)
	}
	return &DisposeResult{Message: "Recovery case ignored"}, nil
}

func (s *RecoveryService) disposeMatch(ctx context.Context, in DisposeInput) (*DisposeResult, error) {
	if in.MatchedUserID == nil || *in.MatchedUserID == "" {
		return nil, NewValidationError("match requires matched_user_id")
	}

	user, err := s.users.FindUserByID(ctx, *in.MatchedUserID)
	if err != nil {
		return nil, NewStorageError(err)
	}
	if user == nil {
		return nil, NewValidationError("Matched user not found")
	}

	err = s.cases.UpdateDisposition(ctx, in.CaseID, entities.CaseMatched, in.MatchedUserID, in.AdminNotes, nil, nil)
	if err != nil {
		return nil, NewStorageError(err)
	}

	return &DisposeResult{Message: "Recovery case matched to user", UserID: &user.ID}, nil
}

func (s *RecoveryService) disposeProcess(ctx context.Context, in DisposeInput, recoveryCase *entities.RecoveryCase) (*DisposeResult, error) {
	// A previously matched case keeps its user; a direct process call must
	// bring either a user id or a fresh identity.
	userID := in.MatchedUserID
	if userID == nil || *userID == "" {
		userID = recoveryCase.MatchedUserID
	}

	hasIdentity := in.NewIdentity != nil && in.NewIdentity.Valid()
	if (userID == nil || *userID == "") && !hasIdentity {
		return nil, NewValidationError("process requires matched_user_id or new_identity")
	}

	amount, ok := new(big.Int).SetString(recoveryCase.AmountWei, 10)
	if !ok {
		return nil, NewStorageError(fmt.Errorf("invalid amount on case %s: %s", recoveryCase.ID, recoveryCase.AmountWei))
	}

	input := ports.ActivationInput{
		TxHash:    recoveryCase.TxHash,
		AmountWei: amount,
		PaidAt:    recoveryCase.DetectedAt,
	}
	if userID != nil && *userID != "" {
		input.UserID = userID
	} else {
		input.NewIdentity = in.NewIdentity
		if input.NewIdentity.WalletAddress == nil && recoveryCase.FromAddress != "" {
			from := recoveryCase.FromAddress
			input.NewIdentity.WalletAddress = &from
		}
	}

	_, activatedUserID, err := s.activator.Activate(ctx, input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.cases.UpdateDisposition(ctx, in.CaseID, entities.CaseProcessed,
		&activatedUserID, in.AdminNotes, &in.ProcessedBy, &now)
	if err != nil {
		return nil, NewStorageError(err)
	}

	return &DisposeResult{Message: "Payment processed and membership activated", UserID: &activatedUserID}, nil
}

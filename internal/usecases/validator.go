package usecases

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	cfg "github.com/opendev/membership-app/backend/config"
	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Claimant identifies who is claiming the payment: either an existing user
// or a fresh identity for an account to be created on success.
type Claimant struct {
	UserID   *string
	Identity *entities.NewIdentity
}

// ValidationRequest is the synchronous-path input.
type ValidationRequest struct {
	TransactionHash string
	Claimant        Claimant
}

// ValidationResult reports a successful activation.
type ValidationResult struct {
	Message      string
	UserID       string
	MembershipID string
}

// ValidatorService checks a user-submitted transaction hash against the
// chain and the internal ledger, then activates membership. Each gate is
// ordered and hard: the first failing gate decides the outcome.
type ValidatorService struct {
	logger      *slog.Logger
	config      *cfg.Config
	ledger      ports.LedgerClient
	memberships MembershipStore
	users       UserStore
	activator   ports.MembershipActivator
}

func NewValidatorService(
	logger *slog.Logger,
	config *cfg.Config,
	ledger ports.LedgerClient,
	memberships MembershipStore,
	users UserStore,
	activator ports.MembershipActivator,
) *ValidatorService {
	return &ValidatorService{
		logger:      logger,
		config:      config,
		ledger:      ledger,
		memberships: memberships,
		users:       users,
		activator:   activator,
	}
}

func (s *ValidatorService) ValidateAndActivate(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	txHash := strings.TrimSpace(req.TransactionHash)
	if !txHashPattern.MatchString(txHash) {
		return nil, NewValidationError("Invalid transaction hash format")
	}

	exists, err := s.memberships.ExistsByTxHash(ctx, txHash)
	if err != nil {
		return nil, NewStorageError(err)
	}
	if exists {
		return nil, NewConflictError("Transaction already processed")
	}

	claimantUser, err := s.resolveClaimant(ctx, req.Claimant)
	if err != nil {
		return nil, err
	}
	if claimantUser != nil && claimantUser.MembershipStatus == entities.MembershipPaid {
		return nil, NewConflictError("User already has paid membership")
	}

	fee, ok := s.config.FeeWei()
	if s.ledger == nil || !s.config.PaymentsConfigured() || !ok {
		return nil, NewConfigurationError("Payment processing is not configured")
	}

	transfer, err := s.ledger.GetTransaction(ctx, txHash)
	if err != nil {
		s.logger.Error("Chain query failed during validation", "error", err, "tx_hash", txHash)
		return nil, NewChainQueryError(err)
	}

	if !transfer.Confirmed() {
		return nil, NewUnconfirmedError("Transaction not yet confirmed")
	}

	if transfer.ValueWei == nil || transfer.ValueWei.Cmp(fee) != 0 {
		return nil, NewValidationError("Invalid amount. Expected %s ETH", FormatEther(fee))
	}

	if !strings.EqualFold(transfer.To, s.config.Payments.ReceivingAddress) {
		return nil, NewValidationError("Invalid recipient address")
	}

	input := ports.ActivationInput{
		TxHash:    transfer.Hash,
		AmountWei: transfer.ValueWei,
	}
	if claimantUser != nil {
		input.UserID = &claimantUser.ID
	} else {
		input.NewIdentity = req.Claimant.Identity
		if input.NewIdentity != nil && input.NewIdentity.WalletAddress == nil && transfer.From != "" {
			from := transfer.From
			input.NewIdentity.WalletAddress = &from
		}
	}

	membershipID, userID, err := s.activator.Activate(ctx, input)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		Message:      "Membership activated successfully",
		UserID:       userID,
		MembershipID: membershipID,
	}, nil
}

// resolveClaimant finds the existing account a claim refers to, if any.
// Returns a validation error only when an explicit user id points nowhere.
func (s *ValidatorService) resolveClaimant(ctx context.Context, claimant Claimant) (*entities.User, error) {
	if claimant.UserID != nil && *claimant.UserID != "" {
		user, err := s.users.FindUserByID(ctx, *claimant.UserID)
		if err != nil {
			return nil, NewStorageError(err)
		}
		if user == nil {
			return nil, NewValidationError("Claimant user not found")
		}
		return user, nil
	}

	if claimant.Identity == nil || !claimant.Identity.Valid() {
		return nil, NewValidationError("Claimant identity is required")
	}

	user, err := s.users.FindUserByIdentity(ctx, claimant.Identity.Email, claimant.Identity.GithubLogin)
	if err != nil {
		return nil, NewStorageError(err)
	}
	return user, nil
}

package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	cfg "github.com/opendev/membership-app/backend/config"
	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/internal/usecases/repository"
)

// RecoveryCaseStore is the review-queue persistence the scanner writes to.
type RecoveryCaseStore interface {
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)
	InsertCase(ctx context.Context, c entities.RecoveryCase) error
}

var _ RecoveryCaseStore = (*repository.RecoveryCasesRepository)(nil)

// OrphanService detects inbound fee transfers nobody claimed and persists
// them for human review. Every failure path here is fail-soft: a scan
// terminates in an empty or partial result plus a log entry, never an error.
type OrphanService struct {
	logger      *slog.Logger
	config      *cfg.Config
	ledger      ports.LedgerClient
	memberships MembershipStore
	recoveries  RecoveryCaseStore
	notifier    ports.CaseNotifier
}

func NewOrphanService(
	logger *slog.Logger,
	config *cfg.Config,
	ledger ports.LedgerClient,
	memberships MembershipStore,
	recoveries RecoveryCaseStore,
) *OrphanService {
	return &OrphanService{
		logger:      logger,
		config:      config,
		ledger:      ledger,
		memberships: memberships,
		recoveries:  recoveries,
	}
}

// SetNotifier attaches a listener told about each newly persisted case.
func (s *OrphanService) SetNotifier(notifier ports.CaseNotifier) {
	s.notifier = notifier
}

// FindOrphanedTransfers returns recent inbound transfers that match the
// membership fee exactly and have no corresponding Membership row.
func (s *OrphanService) FindOrphanedTransfers(ctx context.Context) []entities.Transfer {
	fee, ok := s.config.FeeWei()
	if s.ledger == nil || !s.config.PaymentsConfigured() || !ok {
		s.logger.Debug("Orphan scan skipped, payment configuration incomplete")
		return nil
	}

	latest, err := s.ledger.LatestBlock(ctx)
	if err != nil {
		s.logger.Error("Orphan scan failed to get latest block", "error", err)
		return nil
	}

	fromBlock := uint64(0)
	if window := s.config.Payments.ScanBlockWindow; latest > window {
		fromBlock = latest - window
	}

	transfers, err := s.ledger.GetIncomingTransfers(ctx, s.config.Payments.ReceivingAddress, fromBlock, latest)
	if err != nil {
		// Partial results are still usable; log and continue with what we got.
		s.logger.Error("Orphan scan transfer query failed", "error", err, "from_block", fromBlock, "to_block", latest)
	}

	byHash := make(map[string]entities.Transfer)
	for _, transfer := range transfers {
		if transfer.Asset != entities.AssetNative {
			continue
		}
		// Exact fee match only. An amount off by any margin is excluded, not
		// flagged as close.
		if transfer.ValueWei == nil || transfer.ValueWei.Cmp(fee) != 0 {
			continue
		}

		recorded, err := s.memberships.ExistsByTxHash(ctx, transfer.Hash)
		if err != nil {
			s.logger.Error("Orphan scan ledger check failed", "error", err, "tx_hash", transfer.Hash)
			continue
		}
		if recorded {
			continue
		}

		byHash[transfer.Hash] = transfer
	}

	return maps.Values(byHash)
}

// ProcessOrphanedPayment persists one orphan as a pending_review case.
// Returns false without touching storage when a case for the hash already
// exists, so repeated scans are no-ops.
func (s *OrphanService) ProcessOrphanedPayment(ctx context.Context, transfer entities.Transfer) (bool, error) {
	exists, err := s.recoveries.ExistsByTxHash(ctx, transfer.Hash)
	if err != nil {
		return false, NewStorageError(err)
	}
	if exists {
		return false, nil
	}

	var blockNumber int64
	if transfer.BlockNumber != nil {
		blockNumber = *transfer.BlockNumber
	}

	recoveryCase := entities.RecoveryCase{
		ID:          uuid.New().String(),
		TxHash:      transfer.Hash,
		FromAddress: transfer.From,
		AmountWei:   transfer.ValueWei.String(),
		BlockNumber: blockNumber,
		DetectedAt:  time.Now().UTC(),
		Status:      entities.CasePendingReview,
	}

	if err = s.recoveries.InsertCase(ctx, recoveryCase); err != nil {
		return false, NewStorageError(err)
	}

	if s.notifier != nil {
		s.notifier.NotifyNewCase(recoveryCase)
	}

	return true, nil
}

// ScanAndRecord runs one full scan. A failure persisting one candidate is
// logged and must not abort the remaining candidates.
func (s *OrphanService) ScanAndRecord(ctx context.Context) (int, int) {
	orphans := s.FindOrphanedTransfers(ctx)

	recorded := 0
	for _, transfer := range orphans {
		created, err := s.ProcessOrphanedPayment(ctx, transfer)
		if err != nil {
			s.logger.Error("Failed to persist orphaned payment", "error", err, "tx_hash", transfer.Hash)
			continue
		}
		if created {
			recorded++
			s.logger.Info("Orphaned payment detected",
				"tx_hash", transfer.Hash,
				"from", transfer.From,
				"amount_wei", transfer.ValueWei.String())
		}
	}

	return len(orphans), recorded
}

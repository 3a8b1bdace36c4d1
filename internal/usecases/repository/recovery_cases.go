package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/pkg/database"
)

const recoveryColumns = "id, tx_hash, from_address, amount_wei, block_number, detected_at, status, matched_user_id, admin_notes, processed_at, processed_by"

// RecoveryCasesRepository persists the human review queue for orphaned
// payments.
type RecoveryCasesRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewRecoveryCasesRepository(logger *slog.Logger, pg *database.Postgres) *RecoveryCasesRepository {
	return &RecoveryCasesRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

// ExistsByTxHash is the idempotency guard for the scanner: one case per
// transfer, ever.
func (r *RecoveryCasesRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool

	err := r.db(ctx).QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM payment_recoveries WHERE LOWER(tx_hash) = LOWER($1))", txHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if recovery case exists: %w", err)
	}

	return exists, nil
}

// InsertCase stores a newly detected orphan in pending_review state.
func (r *RecoveryCasesRepository) InsertCase(ctx context.Context, c entities.RecoveryCase) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_recoveries (id, tx_hash, from_address, amount_wei, block_number, detected_at, status)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TxHash, c.FromAddress, c.AmountWei, c.BlockNumber, c.DetectedAt, c.Status)
	if err != nil {
		return fmt.Errorf("failed to insert recovery case: %w", err)
	}

	r.logger.Info("Recovery case created", "case_id", c.ID, "tx_hash", c.TxHash, "from", c.FromAddress, "amount_wei", c.AmountWei)
	return nil
}

// FindCaseByID retrieves a case, optionally locking the row for the duration
// of the surrounding transaction. Returns nil when no row exists.
func (r *RecoveryCasesRepository) FindCaseByID(ctx context.Context, id string, forUpdate bool) (*entities.RecoveryCase, error) {
	query := `SELECT ` + recoveryColumns + ` FROM payment_recoveries WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := r.db(ctx).Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery case: %w", err)
	}

	recoveryCase, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.RecoveryCase])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect recovery case row: %w", err)
	}

	return &recoveryCase, nil
}

// ListCases returns cases newest first, filtered by status when one is given.
func (r *RecoveryCasesRepository) ListCases(ctx context.Context, status string) ([]entities.RecoveryCase, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "tx_hash", "from_address", "amount_wei", "block_number", "detected_at",
			"status", "matched_user_id", "admin_notes", "processed_at", "processed_by").
		From("payment_recoveries").
		OrderBy("detected_at DESC").
		Limit(ports.DefaultRecoveryListLimit)

	if status != "" {
		builder = builder.Where(sq.Eq{"status": status})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recovery list query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery cases: %w", err)
	}

	cases, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.RecoveryCase])
	if err != nil {
		r.logger.Error("failed to collect recovery case rows", "error", err)
		return nil, err
	}

	return cases, nil
}

// UpdateDisposition closes out a case. Only fields relevant to the chosen
// action are set; absent optionals leave the column untouched.
func (r *RecoveryCasesRepository) UpdateDisposition(
	ctx context.Context,
	id, status string,
	matchedUserID, adminNotes, processedBy *string,
	processedAt *time.Time,
) error {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Update("payment_recoveries").
		Set("status", status).
		Where(sq.Eq{"id": id})

	if matchedUserID != nil {
		builder = builder.Set("matched_user_id", *matchedUserID)
	}
	if adminNotes != nil {
		builder = builder.Set("admin_notes", *adminNotes)
	}
	if processedBy != nil {
		builder = builder.Set("processed_by", *processedBy)
	}
	if processedAt != nil {
		builder = builder.Set("processed_at", *processedAt)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build disposition update: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update recovery case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no recovery case row for id %s", id)
	}

	r.logger.Info("Recovery case updated", "case_id", id, "status", status)
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/pkg/database"
)

// ErrDuplicateTxHash is returned when an insert loses the race on the
// memberships tx_hash unique index. Callers translate it into the same
// "already processed" outcome a pre-check would have produced.
var ErrDuplicateTxHash = errors.New("membership already recorded for transaction hash")

const uniqueViolationCode = "23505"

// MembershipsRepository is the internal payment ledger.
type MembershipsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewMembershipsRepository(logger *slog.Logger, pg *database.Postgres) *MembershipsRepository {
	return &MembershipsRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

// ExistsByTxHash checks whether a membership already references the hash.
// This is an optimization only; the unique index is the safety boundary.
func (r *MembershipsRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool

	err := r.db(ctx).QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM memberships WHERE LOWER(tx_hash) = LOWER($1))", txHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if membership exists: %w", err)
	}

	return exists, nil
}

// InsertMembership records an activation. A unique violation on tx_hash is
// reported as ErrDuplicateTxHash.
func (r *MembershipsRepository) InsertMembership(ctx context.Context, m entities.Membership) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO memberships (id, user_id, tx_hash, amount_wei, paid_at, status)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.TxHash, m.AmountWei, m.PaidAt, m.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateTxHash
		}
		return fmt.Errorf("failed to insert membership: %w", err)
	}

	r.logger.Info("Membership recorded", "membership_id", m.ID, "user_id", m.UserID, "tx_hash", m.TxHash, "amount_wei", m.AmountWei)
	return nil
}

// FindMembershipByTxHash retrieves the ledger entry for a hash, or nil.
func (r *MembershipsRepository) FindMembershipByTxHash(ctx context.Context, txHash string) (*entities.Membership, error) {
	query := `SELECT id, user_id, tx_hash, amount_wei, paid_at, status, created_at
                FROM memberships
               WHERE LOWER(tx_hash) = LOWER($1)`

	rows, err := r.db(ctx).Query(ctx, query, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query membership by tx hash: %w", err)
	}

	membership, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.Membership])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect membership row: %w", err)
	}

	return &membership, nil
}

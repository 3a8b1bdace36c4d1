package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/pkg/database"
)

// UsersRepository reads and mutates account rows.
type UsersRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewUsersRepository(logger *slog.Logger, pg *database.Postgres) *UsersRepository {
	return &UsersRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

const userColumns = "id, username, email, github_login, wallet_address, membership_status, created_at, updated_at"

// FindUserByID retrieves a user by id. Returns nil when no row exists.
func (r *UsersRepository) FindUserByID(ctx context.Context, id string) (*entities.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	rows, err := r.db(ctx).Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect user row: %w", err)
	}

	return &user, nil
}

// FindUserByIdentity looks a user up by email first, then github login.
// Returns nil when neither matches.
func (r *UsersRepository) FindUserByIdentity(ctx context.Context, email, githubLogin *string) (*entities.User, error) {
	if email != nil && *email != "" {
		user, err := r.findUserWhere(ctx, "LOWER(email) = LOWER($1)", *email)
		if err != nil || user != nil {
			return user, err
		}
	}

	if githubLogin != nil && *githubLogin != "" {
		return r.findUserWhere(ctx, "LOWER(github_login) = LOWER($1)", *githubLogin)
	}

	return nil, nil
}

func (r *UsersRepository) findUserWhere(ctx context.Context, condition string, arg any) (*entities.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + condition

	rows, err := r.db(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect user row: %w", err)
	}

	return &user, nil
}

// SearchUsers finds users whose username, email or github login matches the
// query substring, case-insensitively.
func (r *UsersRepository) SearchUsers(ctx context.Context, query string) ([]entities.User, error) {
	pattern := "%" + query + "%"

	sql, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "username", "email", "github_login", "wallet_address", "membership_status", "created_at", "updated_at").
		From("users").
		Where(sq.Or{
			sq.ILike{"username": pattern},
			sq.ILike{"email": pattern},
			sq.ILike{"github_login": pattern},
		}).
		OrderBy("username").
		Limit(ports.UserSearchLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user search query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.User])
	if err != nil {
		r.logger.Error("failed to collect user rows", "error", err)
		return nil, err
	}

	return users, nil
}

// InsertUser stores a freshly created account.
func (r *UsersRepository) InsertUser(ctx context.Context, user entities.User) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO users (id, username, email, github_login, wallet_address, membership_status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		user.ID, user.Username, user.Email, user.GithubLogin, user.WalletAddress, user.MembershipStatus)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	r.logger.Info("User created", "user_id", user.ID, "username", user.Username)
	return nil
}

// MarkUserPaid moves a user to paid status, attaching the paying wallet when
// known. Called only from the membership activator.
func (r *UsersRepository) MarkUserPaid(ctx context.Context, userID string, walletAddress *string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE users
            SET membership_status = $2,
                wallet_address = COALESCE($3, wallet_address),
                updated_at = NOW()
          WHERE id = $1`,
		userID, entities.MembershipPaid, walletAddress)
	if err != nil {
		return fmt.Errorf("failed to mark user paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no user row for id %s", userID)
	}

	r.logger.Info("User marked paid", "user_id", userID)
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

const usernameConstraint = "accounts_username_key"

// AccountRepository implements ports.AccountRepository and
// ports.RoleRepository over PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var a domain.Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash FROM accounts WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.CredentialDigest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) UpdateCredentialDigest(ctx context.Context, accountID int64, digest string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`,
		accountID, digest,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, identityTx{q: tx})
	})
}

func (r *AccountRepository) ListRolesForAccount(ctx context.Context, accountID int64) ([]domain.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.role_name
		   FROM account_roles ar
		   JOIN roles r ON r.id = ar.role_id
		  WHERE ar.account_id = $1
		  ORDER BY r.id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0, 2)
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

type identityTx struct {
	q querier
}

func (t identityTx) InsertAccount(ctx context.Context, a *domain.Account) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ($1, $2) RETURNING id`,
		a.Username, a.CredentialDigest,
	).Scan(&id)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == usernameConstraint {
			return 0, domain.ErrUsernameTaken
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

func (t identityTx) InsertAccountRole(ctx context.Context, accountID, roleID int64) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx,
		`INSERT INTO account_roles (account_id, role_id) VALUES ($1, $2) RETURNING id`,
		accountID, roleID,
	).Scan(&id)
	if err != nil {
		if foreignKeyViolation(err) {
			return 0, fmt.Errorf("insert account role: %w", domain.ErrAccountNotFound)
		}
		return 0, fmt.Errorf("insert account role: %w", err)
	}
	return id, nil
}

var (
	_ ports.AccountRepository = (*AccountRepository)(nil)
	_ ports.RoleRepository    = (*AccountRepository)(nil)
)

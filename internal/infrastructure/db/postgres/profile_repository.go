package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

// ProfileRepository implements ports.ProfileRepository over PostgreSQL.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, p *domain.Profile) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (
		     account_id, first_name, middle_name, last_name, age, email, phone_number, province
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.AccountID, p.FirstName, nullIfEmpty(p.MiddleName), p.LastName, p.Age,
		p.Email, p.Phone, nullIfEmpty(p.Province),
	).Scan(&id)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, domain.ErrProfileExists
		}
		if foreignKeyViolation(err) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, fmt.Errorf("insert profile: %w", err)
	}
	return id, nil
}

func (r *ProfileRepository) ListProfilesExcept(ctx context.Context, accountID int64) ([]domain.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, first_name, COALESCE(middle_name, ''), last_name,
		        age, email, phone_number, COALESCE(province, '')
		   FROM profiles
		  WHERE account_id <> $1
		  ORDER BY id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.AccountID, &p.FirstName, &p.MiddleName, &p.LastName,
			&p.Age, &p.Email, &p.Phone, &p.Province); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

var _ ports.ProfileRepository = (*ProfileRepository)(nil)

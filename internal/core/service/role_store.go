package service

import (
	"context"
	"fmt"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

// RoleStore grants and resolves account roles.
type RoleStore struct {
	repo ports.RoleRepository
}

func NewRoleStore(repo ports.RoleRepository) *RoleStore {
	return &RoleStore{repo: repo}
}

// GrantDefaultRole links accountID to the User role inside tx.
func (s *RoleStore) GrantDefaultRole(ctx context.Context, tx ports.IdentityTx, accountID int64) error {
	if _, err := tx.InsertAccountRole(ctx, accountID, domain.RoleIDUser); err != nil {
		return fmt.Errorf("grant default role: %w", err)
	}
	return nil
}

// RolesOf returns the names of every role accountID holds, ordered by role id.
func (s *RoleStore) RolesOf(ctx context.Context, accountID int64) ([]string, error) {
	roles, err := s.repo.ListRolesForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

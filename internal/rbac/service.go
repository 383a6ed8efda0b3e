package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates that the user does not exist or is inactive.
var ErrNotFound = errors.New("rbac: not found")

// RoleLookup resolves a user's role.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

// Service answers permission questions for users.
type Service struct {
	lookup RoleLookup
}

// NewService constructs a Service.
func NewService(lookup RoleLookup) *Service {
	return &Service{lookup: lookup}
}

// EffectivePermissions returns the permission names granted to the user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	role, err := s.lookup.RoleOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return PermissionsFor(role), nil
}

// Can reports whether the user holds perm.
func (s *Service) Can(ctx context.Context, userID int64, perm string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasAnyPermission(perms, []string{perm}), nil
}

type queryRower interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PGRoleLookup reads users.role from Postgres.
type PGRoleLookup struct {
	db queryRower
}

// NewPGRoleLookup builds a lookup over a pool or transaction.
func NewPGRoleLookup(db queryRower) *PGRoleLookup {
	return &PGRoleLookup{db: db}
}

// RoleOf returns the role of an active user.
func (l *PGRoleLookup) RoleOf(ctx context.Context, userID int64) (string, error) {
	var role string
	err := l.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 AND is_active`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("rbac: role lookup: %w", err)
	}
	return role, nil
}

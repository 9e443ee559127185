package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Authenticate resolves a static access token into the accountability of its
// owner. Unknown or disabled tokens fail with domain.ErrExpired.
func (s *PostgresStore) Authenticate(ctx context.Context, token string) (domain.Accountability, error) {
	var acc domain.Accountability
	err := s.pool.QueryRow(ctx, `
		SELECT id, role, is_admin
		FROM app_users
		WHERE token = $1 AND is_active
	`, token).Scan(&acc.User, &acc.Role, &acc.Admin)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Accountability{}, domain.ErrExpired
		}
		return domain.Accountability{}, fmt.Errorf("querying token: %w", err)
	}
	return acc, nil
}

// Refresh re-resolves an accountability against current user state, so role
// edits and deactivations made after connect time take effect on the next
// dispatch. Anonymous accountability passes through unchanged.
func (s *PostgresStore) Refresh(ctx context.Context, acc domain.Accountability) (domain.Accountability, error) {
	if acc.Anonymous() {
		return acc, nil
	}

	var fresh domain.Accountability
	err := s.pool.QueryRow(ctx, `
		SELECT id, role, is_admin
		FROM app_users
		WHERE id = $1 AND is_active
	`, acc.User).Scan(&fresh.User, &fresh.Role, &fresh.Admin)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Accountability{}, domain.ErrExpired
		}
		return domain.Accountability{}, fmt.Errorf("refreshing user: %w", err)
	}
	return fresh, nil
}

// canRead reports whether the role holds a read grant on the collection.
// Admin accountability never reaches this check.
func (s *PostgresStore) canRead(ctx context.Context, role, collection string) (bool, error) {
	var allowed bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM app_permissions
			WHERE role = $1 AND collection = $2 AND action = 'read'
		)
	`, role, collection).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("querying permissions: %w", err)
	}
	return allowed, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/auth"
)

const (
	adminColumns = `id::text, email, password_hash, created_at`

	// setupLockKey serializes concurrent first-admin setups.
	setupLockKey = 0x61646d696e

	lockAdminSetupSQL = `SELECT pg_advisory_xact_lock($1)`

	createFirstAdminSQL = `INSERT INTO admins (id, email, password_hash, created_at)
		SELECT $1::uuid, $2::text, $3::text, $4::timestamptz WHERE NOT EXISTS (SELECT 1 FROM admins)`

	getAdminByEmailSQL = `SELECT ` + adminColumns + ` FROM admins WHERE email = $1`
	getAdminByIDSQL    = `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`
)

var _ auth.Repository = (*AdminRepository)(nil)

// AdminRepository implements auth.Repository backed by PostgreSQL.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository returns an AdminRepository that uses the given pool.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// CreateFirst inserts a only when the admins table is empty.
func (r *AdminRepository) CreateFirst(ctx context.Context, a *auth.Admin) (rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning admin setup: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, lockAdminSetupSQL, int64(setupLockKey)); err != nil {
		return fmt.Errorf("locking admin setup: %w", err)
	}
	tag, err := tx.Exec(ctx, createFirstAdminSQL, a.ID, a.Email, a.PasswordHash, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrSetupDone
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing admin setup: %w", err)
	}
	return nil
}

// FindByEmail returns the admin with the given normalized email.
func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*auth.Admin, error) {
	return r.getOne(ctx, getAdminByEmailSQL, email)
}

// GetByID returns the admin with the given ID.
func (r *AdminRepository) GetByID(ctx context.Context, id string) (*auth.Admin, error) {
	if !validID(id) {
		return nil, auth.ErrNotFound
	}
	return r.getOne(ctx, getAdminByIDSQL, id)
}

func (r *AdminRepository) getOne(ctx context.Context, sql, arg string) (*auth.Admin, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting admin: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (auth.Admin, error) {
		var a auth.Admin
		err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("getting admin: %w", err)
	}
	return &a, nil
}

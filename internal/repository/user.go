package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angkor-mart/storefront/internal/domain/user"
)

const (
	userColumns = `uid, email, display_name, photo_url, phone, addresses, created_at, updated_at`

	upsertUserSQL = `INSERT INTO users (uid, email, display_name, photo_url, phone, addresses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (uid) DO UPDATE SET
			email = EXCLUDED.email,
			photo_url = EXCLUDED.photo_url,
			display_name = CASE WHEN users.display_name = '' THEN EXCLUDED.display_name ELSE users.display_name END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	getUserSQL = `SELECT ` + userColumns + ` FROM users WHERE uid = $1`

	updateUserProfileSQL = `UPDATE users SET
			display_name = COALESCE($2, display_name),
			phone = COALESCE($3, phone),
			addresses = COALESCE($4::jsonb, addresses),
			updated_at = NOW()
		WHERE uid = $1
		RETURNING ` + userColumns
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert creates or refreshes a user from a verified identity.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) (*user.User, error) {
	addrs, err := json.Marshal(u.Addresses)
	if err != nil {
		return nil, fmt.Errorf("marshaling addresses: %w", err)
	}
	rows, err := r.pool.Query(ctx, upsertUserSQL,
		u.UID, u.Email, u.DisplayName, u.PhotoURL, u.Phone, addrs, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user %q: %w", u.UID, err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("upserting user %q: %w", u.UID, err)
	}
	return &out, nil
}

// Get returns a user by UID.
func (r *UserRepository) Get(ctx context.Context, uid string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, uid)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", uid, err)
	}
	return collectUser(rows, uid)
}

// UpdateProfile applies the non-nil fields of upd.
func (r *UserRepository) UpdateProfile(ctx context.Context, uid string, upd user.ProfileUpdate) (*user.User, error) {
	var addrs []byte
	if upd.Addresses != nil {
		var err error
		if addrs, err = json.Marshal(*upd.Addresses); err != nil {
			return nil, fmt.Errorf("marshaling addresses: %w", err)
		}
	}
	rows, err := r.pool.Query(ctx, updateUserProfileSQL, uid, upd.DisplayName, upd.Phone, addrs)
	if err != nil {
		return nil, fmt.Errorf("updating user %q: %w", uid, err)
	}
	return collectUser(rows, uid)
}

func collectUser(rows pgx.Rows, uid string) (*user.User, error) {
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("reading user %q: %w", uid, err)
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u     user.User
		addrs []byte
	)
	err := row.Scan(&u.UID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Phone, &addrs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(addrs, &u.Addresses); err != nil {
		return u, fmt.Errorf("unmarshaling addresses: %w", err)
	}
	if u.Addresses == nil {
		u.Addresses = []user.Address{}
	}
	return u, nil
}

package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// Address is a saved delivery address.
type Address struct {
	Label     string `json:"label"`
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	IsDefault bool   `json:"isDefault"`
}

// User is a storefront customer identified by the identity provider UID.
type User struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Phone       string
	Addresses   []Address
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileUpdate holds the customer-editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Phone       *string
	Addresses   *[]Address
}

// Repository provides user persistence.
type Repository interface {
	// Upsert creates the user or refreshes email and photo of an existing
	// one. An edited display name, phone and addresses are kept.
	Upsert(ctx context.Context, u *User) (*User, error)
	Get(ctx context.Context, uid string) (*User, error)
	UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) (*User, error)
}

// InvalidFieldError reports a profile field that failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

const maxAddresses = 10

// Check normalizes upd in place and validates it.
func (upd *ProfileUpdate) Check() error {
	if upd.DisplayName != nil {
		v := strings.TrimSpace(*upd.DisplayName)
		if v == "" {
			return &InvalidFieldError{Field: "displayName", Reason: "must not be empty"}
		}
		upd.DisplayName = &v
	}
	if upd.Phone != nil {
		v := strings.TrimSpace(*upd.Phone)
		upd.Phone = &v
	}
	if upd.Addresses != nil {
		addrs := *upd.Addresses
		if len(addrs) > maxAddresses {
			return &InvalidFieldError{Field: "addresses", Reason: "too many addresses"}
		}
		defaults := 0
		for i := range addrs {
			addrs[i].Address = strings.TrimSpace(addrs[i].Address)
			if addrs[i].Address == "" {
				return &InvalidFieldError{Field: "addresses", Reason: "address line required"}
			}
			if addrs[i].IsDefault {
				defaults++
			}
		}
		if defaults > 1 {
			return &InvalidFieldError{Field: "addresses", Reason: "only one default address allowed"}
		}
	}
	return nil
}

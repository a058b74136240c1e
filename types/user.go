package types

import "time"

// User represents an account in the system.
//
// An account starts inactive with a pending activation code. Redeeming the
// code clears it and flips IsActive; login is refused until that happens.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's unique email address, used for login and for
	// activation mail delivery.
	Email string `json:"email" db:"email"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsActive reports whether the account's email has been confirmed.
	IsActive bool `json:"is_active" db:"is_active"`

	// ActivationCode is the one-time code emailed at registration.
	// It is cleared to the empty string on successful activation and is
	// never exposed in API responses.
	ActivationCode string `json:"-" db:"activation_code"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

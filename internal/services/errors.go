package services

import "errors"

var (
	// ErrEmailTaken is returned when registering with an email that
	// already has an account.
	ErrEmailTaken = errors.New("email already taken")

	// ErrCodeNotFound is returned for unknown activation codes. A code
	// that was already redeemed yields the same error; the two cases are
	// deliberately indistinguishable.
	ErrCodeNotFound = errors.New("activation code not found")

	// ErrWrongPassword covers both an unknown email and a bad password.
	ErrWrongPassword = errors.New("wrong email or password")

	// ErrAccountInactive is returned when logging into an account whose
	// email has not been confirmed, even with correct credentials.
	ErrAccountInactive = errors.New("account is not active")

	// ErrNotAuthor is returned when a caller tries to mutate a post
	// they did not create.
	ErrNotAuthor = errors.New("caller is not the post author")

	// ErrDuplicateTitle is returned when a post title already exists.
	ErrDuplicateTitle = errors.New("post title already exists")

	// ErrMediaDisabled is returned for cover operations when no object
	// storage backend is configured.
	ErrMediaDisabled = errors.New("media storage is not configured")
)

package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// ErrBadReference is returned when a write references a missing row,
// e.g. a post pointing at an unknown category or tag.
var ErrBadReference = errors.New("referenced record does not exist")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapPQError translates postgres constraint violations into sentinels.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return ErrDuplicate
		case pqForeignKeyViolation:
			return ErrBadReference
		}
	}
	return err
}

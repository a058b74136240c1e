package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMapPQError(t *testing.T) {
	unique := &pq.Error{Code: pqUniqueViolation}
	assert.ErrorIs(t, mapPQError(unique), ErrDuplicate)

	fk := &pq.Error{Code: pqForeignKeyViolation}
	assert.ErrorIs(t, mapPQError(fk), ErrBadReference)

	// Wrapped constraint violations are still recognized.
	wrapped := fmt.Errorf("insert post: %w", unique)
	assert.ErrorIs(t, mapPQError(wrapped), ErrDuplicate)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapPQError(other))

	assert.Nil(t, mapPQError(nil))
}

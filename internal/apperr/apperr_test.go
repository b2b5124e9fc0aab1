package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestFromStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}, ErrConflict},
		{"numeric out of range", &pgconn.PgError{Code: "22003", Message: "integer out of range"}, ErrValidation},
		{"check violation", &pgconn.PgError{Code: "23514"}, ErrValidation},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrTransientStore},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrTransientStore},
		{"deadline", context.DeadlineExceeded, ErrTransientStore},
		{"already classified", fmt.Errorf("wrapped: %w", ErrConflict), ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, FromStore("menu item", tt.err), tt.kind)
		})
	}
}

func TestFromStore_OutOfRangeNamesResource(t *testing.T) {
	err := FromStore("menu item 42", &pgconn.PgError{Code: "22003"})

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "menu item 42", ve.Field)
}

func TestFromStore_Unclassified(t *testing.T) {
	boom := errors.New("boom")
	err := FromStore("orders", boom)
	assert.Same(t, boom, err)
	assert.False(t, IsKind(err))
	assert.NoError(t, FromStore("orders", nil))
}

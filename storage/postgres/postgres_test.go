package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"presence-backend/models"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: models.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: models.ErrNotFound},
		{name: "serialization failure", err: &pgconn.PgError{Code: codeSerializationFailure}, want: models.ErrUnavailable},
		{name: "deadlock", err: &pgconn.PgError{Code: codeDeadlockDetected}, want: models.ErrUnavailable},
		{name: "too many connections", err: &pgconn.PgError{Code: codeTooManyConnections}, want: models.ErrUnavailable},
		{name: "sentinel passes through", err: models.ErrEventFull, want: models.ErrEventFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(ctx, tt.err), tt.want)
		})
	}
}

func TestClassifyLeavesConstraintErrorsAlone(t *testing.T) {
	err := classify(context.Background(), &pgconn.PgError{Code: codeUniqueViolation})
	assert.False(t, errors.Is(err, models.ErrUnavailable))
	assert.True(t, isUniqueViolation(err))
}

func TestClassifyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classify(ctx, errors.New("conn closed"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrUnavailable)
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify(context.Background(), nil))
}

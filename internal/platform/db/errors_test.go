package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		code string
		kind error
	}{
		{name: "unique", code: CodeUniqueViolation, kind: shared.ErrConflict},
		{name: "serialization", code: CodeSerializationFailure, kind: shared.ErrConflict},
		{name: "deadlock", code: CodeDeadlockDetected, kind: shared.ErrConflict},
		{name: "foreign key", code: CodeForeignKeyViolation, kind: shared.ErrNotFound},
		{name: "not null", code: CodeNotNullViolation, kind: shared.ErrValidation},
		{name: "check", code: CodeCheckViolation, kind: shared.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: tc.code, Message: "boom", ConstraintName: "uq_number"})
			got := Classify(err)
			require.ErrorIs(t, got, tc.kind)
			require.Contains(t, got.Error(), "uq_number")
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	plain := errors.New("network down")
	require.Same(t, plain, Classify(plain))

	kinded := shared.NewKindError(shared.ErrPrecondition, "blocked")
	require.Equal(t, error(kinded), Classify(kinded))

	other := &pgconn.PgError{Code: "22001"}
	require.Equal(t, error(other), Classify(other))
	require.Nil(t, Classify(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("x: %w", &pgconn.PgError{Code: CodeUniqueViolation})))
	require.False(t, IsUniqueViolation(errors.New("x")))
}

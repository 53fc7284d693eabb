package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Postgres SQLSTATE codes the platform reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeNotNullViolation     = "23502"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// Classify tags Postgres failures with a shared error kind. Errors that already
// carry a kind, and errors that are not Postgres errors, are returned untouched.
func Classify(err error) error {
	if err == nil || shared.KindOf(err) != nil {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case CodeUniqueViolation, CodeSerializationFailure, CodeDeadlockDetected:
		return fmt.Errorf("%w: %s", shared.ErrConflict, describe(pgErr))
	case CodeForeignKeyViolation:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, describe(pgErr))
	case CodeNotNullViolation, CodeCheckViolation:
		return fmt.Errorf("%w: %s", shared.ErrValidation, describe(pgErr))
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeUniqueViolation
}

func describe(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return fmt.Sprintf("%s (%s)", pgErr.Message, pgErr.ConstraintName)
	}
	return pgErr.Message
}

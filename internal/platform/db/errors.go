package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the booking engine cares about.
const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
)

// IsNotFound reports whether err means the queried row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgErrCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports whether err is a foreign key violation,
// raised when a row references an entity that does not exist.
func IsForeignKeyViolation(err error) bool {
	return pgErrCode(err) == codeForeignKeyViolation
}

// IsExclusionViolation reports whether err is an exclusion constraint
// violation, raised when two scheduled appointments for the same doctor
// overlap in time.
func IsExclusionViolation(err error) bool {
	return pgErrCode(err) == codeExclusionViolation
}

// IsConflict reports whether err is an integrity violation that should
// surface as a booking conflict: a unique or exclusion constraint hit.
func IsConflict(err error) bool {
	code := pgErrCode(err)
	return code == codeUniqueViolation || code == codeExclusionViolation
}

// IsSerializationFailure reports whether err is a serializable isolation
// failure. Callers may retry the transaction or surface a conflict.
func IsSerializationFailure(err error) bool {
	return pgErrCode(err) == codeSerializationFailure
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique-constraint violation.
func IsUniqueViolation(err error) bool {
	return pgErrCode(err) == codeUniqueViolation
}

// IsNotNullViolation reports whether err is a not-null-constraint violation.
func IsNotNullViolation(err error) bool {
	return pgErrCode(err) == codeNotNullViolation
}

// IsForeignKeyViolation reports whether err is a foreign-key violation.
func IsForeignKeyViolation(err error) bool {
	return pgErrCode(err) == codeForeignKeyViolation
}

// IsTimeout reports whether err was caused by an exceeded deadline, which the
// callers map to a distinct store-timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

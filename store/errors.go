package store

import (
	"context"
	"errors"

	"github.com/it35lab/campusfeed/backend"
	"github.com/jackc/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translateError converts gorm and postgres errors to *backend.Error.
func translateError(err error, message string) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backend.NewError(backend.CodeNoRows, message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.NewError(backend.CodeTimeout, message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return backend.NewError(backend.CodeUniqueViolation, message, err)
		case pgForeignKeyViolation:
			return backend.NewError(backend.CodeInvalidReference, message, err)
		}
	}
	return backend.NewError(backend.CodeUnknown, message, err)
}

package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrMappingExists is returned when a mapping for the same tenant, kind
	// and provider id was inserted first.
	ErrMappingExists = errors.New("mapping already exists")

	// ErrTokenConflict is returned when the refresh token changed between
	// read and write.
	ErrTokenConflict = errors.New("token conflict: refresh token was rotated concurrently")

	// ErrAlreadyFinalized is returned when a history record left pending
	// state before.
	ErrAlreadyFinalized = errors.New("sync history record already finalized")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

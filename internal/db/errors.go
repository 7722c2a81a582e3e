package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"renewal-service/internal/apperr"
)

// notFoundOr maps pgx.ErrNoRows to apperr.ErrNotFound and wraps anything else.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

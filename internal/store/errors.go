package store

import (
	"database/sql"
	"errors"

	"github.com/filigree-dev/keel/internal/types"
)

// wrapSQLErr converts sql.ErrNoRows to the NotFound taxonomy entry and
// anything else to an unknown error.
func wrapSQLErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.NotFound("%s: not found", op)
	}
	return types.Wrap(types.CodeUnknown, err, "%s", op)
}

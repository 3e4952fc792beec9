package main

import (
	"errors"

	"github.com/filigree-dev/keel/internal/types"
)

// toErrPayload renders err as the wire error shape, mapping any
// non-*types.Error (a bug, not a caller mistake) to "unknown" rather
// than leaking its raw text.
func toErrPayload(err error) *errPayload {
	var typed *types.Error
	if !errors.As(err, &typed) {
		return &errPayload{Code: string(types.CodeUnknown), Message: "internal error"}
	}
	return &errPayload{Code: string(typed.Code), Message: err.Error()}
}

package providers

import (
	"errors"

	"github.com/Mathews-Tom/SubLLM/types"
)

// AsTyped coerces any error into the typed taxonomy, wrapping foreign errors
// as internal failures so callers always see a code.
func AsTyped(err error) *types.Error {
	var e *types.Error
	if errors.As(err, &e) {
		return e
	}
	return types.NewError(types.ErrInternalError, "backend failure").WithCause(err)
}

// Snippet truncates a raw output line for inclusion in error messages.
func Snippet(line string) string {
	const max = 160
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}

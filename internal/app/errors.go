package service

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds returned by Service operations. Callers match them with
// errors.Is; the wrapped message is safe to show to clients.
var (
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
)

func validationError(problems []string) error {
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ". "))
}

package cmd

import (
	"errors"
	"os"

	"github.com/pytake/flowbroker/internal/flowerrors"
	"github.com/pytake/flowbroker/internal/session"
)

// Exit codes exactly as spec §6.
const (
	ExitOK               = 0
	ExitNotFound         = 1
	ExitValidationFailed = 2
	ExitPermissionDenied = 3
)

// exitError lets a command's RunE report a specific spec §6 exit code
// without main having to reverse-engineer it from an opaque error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func notFound(err error) error         { return withExitCode(ExitNotFound, err) }
func validationFailed(err error) error { return withExitCode(ExitValidationFailed, err) }
func permissionDenied(err error) error { return withExitCode(ExitPermissionDenied, err) }

// exitCodeFor classifies an error returned from a command's RunE into the
// spec §6 exit code, falling back to generic failure (1) for anything
// that isn't a recognized not-found/validation/permission case.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return ExitNotFound
	case os.IsPermission(err):
		return ExitPermissionDenied
	case flowerrors.IsKind(err, flowerrors.KindInput), flowerrors.IsKind(err, flowerrors.KindConfiguration):
		return ExitValidationFailed
	default:
		return 1
	}
}

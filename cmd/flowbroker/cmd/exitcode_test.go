package cmd

import (
	"errors"
	"os"
	"testing"

	"github.com/pytake/flowbroker/internal/flowerrors"
	"github.com/pytake/flowbroker/internal/session"
)

func TestExitCodeForKnownCases(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"session not found", session.ErrNotFound, ExitNotFound},
		{"file not exist", os.ErrNotExist, ExitNotFound},
		{"wrapped not found", notFound(errors.New("boom")), ExitNotFound},
		{"validation failed", validationFailed(errors.New("boom")), ExitValidationFailed},
		{"permission denied", permissionDenied(errors.New("boom")), ExitPermissionDenied},
		{"flowerrors input", flowerrors.New(flowerrors.KindInput, "bad"), ExitValidationFailed},
		{"flowerrors configuration", flowerrors.New(flowerrors.KindConfiguration, "bad"), ExitValidationFailed},
		{"generic", errors.New("boom"), 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := exitCodeFor(c.err); got != c.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
			}
		})
	}
}

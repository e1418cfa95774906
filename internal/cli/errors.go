// Package cli provides the exit-code mapping and JSON output envelope shared
// by all hone commands. The error kinds themselves live in internal/types so
// core packages can raise them without depending on the command layer.
package cli

import (
	"errors"

	"hone/internal/types"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitUsage   = 2
	ExitFailure = 3
	ExitMissing = 4
	ExitParse   = 7
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, types.ErrUsage):
		return ExitUsage
	case errors.Is(err, types.ErrArtifactMissing):
		return ExitMissing
	case errors.Is(err, types.ErrParse):
		return ExitParse
	default:
		return ExitFailure
	}
}

// ErrorCode returns the machine-readable code string for the JSON envelope.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrUsage):
		return "invalid_argument"
	case errors.Is(err, types.ErrArtifactMissing):
		return "artifact_missing"
	case errors.Is(err, types.ErrParse):
		return "parse_error"
	case errors.Is(err, types.ErrScope):
		return "scope_violation"
	case errors.Is(err, types.ErrTracker):
		return "tracker_failure"
	default:
		return "internal"
	}
}

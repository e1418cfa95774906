package types

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR KINDS
// =============================================================================
// Sentinel errors for the failure taxonomy. Packages wrap these with
// fmt.Errorf("%w: ...") so callers can classify any failure with errors.Is.

var (
	// ErrUsage marks invalid arguments or flags.
	ErrUsage = errors.New("invalid argument")

	// ErrArtifactMissing marks an explicit show/get of a missing artifact.
	// Plain reads of missing artifacts return empty values instead.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrParse marks a whole-file parse failure (config, queue, playbook
	// front-matter). Single malformed lines are skipped with a counter,
	// not raised.
	ErrParse = errors.New("parse error")

	// ErrScope marks a write outside the knowledge root. Always fatal.
	ErrScope = errors.New("write scope violation")

	// ErrTracker marks an external tracker subprocess failure. Aborts the
	// cycle in progress.
	ErrTracker = errors.New("tracker failure")
)

// Usagef wraps ErrUsage with a formatted message.
func Usagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// Missingf wraps ErrArtifactMissing with a formatted message.
func Missingf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrArtifactMissing, fmt.Sprintf(format, args...))
}

// Parsef wraps ErrParse with a formatted message.
func Parsef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// Scopef wraps ErrScope with a formatted message.
func Scopef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrScope, fmt.Sprintf(format, args...))
}

// Trackerf wraps ErrTracker with a formatted message.
func Trackerf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTracker, fmt.Sprintf(format, args...))
}

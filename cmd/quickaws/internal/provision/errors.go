// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import "errors"

// Exit codes reported by the CLI. Each fatal error kind gets a distinct
// code so that bootstrap scripts can branch on the failure mode.
const (
	ExitSuccess             = 0
	ExitFailure             = 1 // any error not listed below
	ExitUnknownProfile      = 2
	ExitMissingProfile      = 3
	ExitManifestInvalid     = 4
	ExitConcurrentRun       = 5
	ExitGenerationExhausted = 6
)

// Sentinel errors for the provisioning pipeline.
var (
	// ErrUnknownProfile is returned when a profile identifier is not part
	// of the closed profile enumeration.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrMissingProfile is returned when non-interactive mode is requested
	// but no profile was supplied via flag or environment.
	ErrMissingProfile = errors.New("no profile selected")

	// ErrManifestInvalid is returned when the fully resolved deployment
	// fails validation. This indicates a bug in the registry or the
	// synthesizer, not an operator mistake; nothing is written to disk.
	ErrManifestInvalid = errors.New("resolved deployment is invalid")

	// ErrConcurrentRun is returned when another invocation holds the
	// state directory lock. The caller must re-run once it completes.
	ErrConcurrentRun = errors.New("another provisioning run is in progress")

	// ErrGenerationExhausted is returned when the secret generator cannot
	// produce a unique value within its retry budget. Unreachable with the
	// default policies, but handled rather than assumed away.
	ErrGenerationExhausted = errors.New("secret generation exhausted")

	// ErrPriorStateUnreadable is returned by LoadPriorState when artifacts
	// from an earlier run exist but cannot be parsed. The engine treats
	// this as a fresh install and supersedes the corrupt artifacts.
	ErrPriorStateUnreadable = errors.New("prior state is unreadable")

	// ErrLockAcquireFailed wraps lock failures other than contention.
	ErrLockAcquireFailed = errors.New("failed to acquire state directory lock")
)

// ExitCodeFor maps an error to the process exit code documented above.
// A nil error maps to ExitSuccess.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUnknownProfile):
		return ExitUnknownProfile
	case errors.Is(err, ErrMissingProfile):
		return ExitMissingProfile
	case errors.Is(err, ErrManifestInvalid):
		return ExitManifestInvalid
	case errors.Is(err, ErrConcurrentRun):
		return ExitConcurrentRun
	case errors.Is(err, ErrGenerationExhausted):
		return ExitGenerationExhausted
	default:
		return ExitFailure
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit codes and user-facing error display for docchat.
//
// Maps workflow sentinel errors to the process exit code and prints the
// final "Erreur :" line.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/docchat/internal/backend"
	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/history"
	"github.com/jeranaias/docchat/internal/timeline"
	"github.com/jeranaias/docchat/internal/upload"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates that no user is signed in
	ExitAuthError = 4
	// ExitNetworkError indicates the chat service could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user interrupted the command
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "chats purge"
	Reason  string // human-readable reason
	Err     error  // underlying error, if any
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError represents invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// errNoUser groups the identity sentinels of the workflow packages.
var errNoUser = errors.New("no signed-in user: set user.id in the config, DOCCHAT_USER_ID or --user")

// GetExitCode determines the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var verrs config.ValidateErrors
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &verrs):
		return ExitConfigError
	case errors.Is(err, errNoUser),
		errors.Is(err, timeline.ErrNoIdentity),
		errors.Is(err, upload.ErrNoIdentity),
		errors.Is(err, history.ErrNoIdentity):
		return ExitAuthError
	case errors.Is(err, backend.ErrTimeout),
		errors.Is(err, upload.ErrTimedOut),
		errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, backend.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, backend.ErrUnavailable):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// DisplayError prints err to w.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, DimStyle.Render("Interrompu."))
		return
	}
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("Erreur :"), err)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Yes/no confirmation before destructive commands.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfirmationOptions controls how a destructive action is confirmed.
type ConfirmationOptions struct {
	// Yes is set by --yes and skips the prompt
	Yes bool

	// Interactive is false when stdin is not a terminal
	Interactive bool
}

// RequireConfirmation asks the user to confirm action on in/out.
// Without a terminal the --yes flag is required.
func RequireConfirmation(in io.Reader, out io.Writer, action string, opts ConfirmationOptions) (bool, error) {
	if opts.Yes {
		return true, nil
	}
	if !opts.Interactive {
		return false, &UsageError{Message: fmt.Sprintf("%s requires --yes when stdin is not a terminal", action)}
	}

	fmt.Fprintf(out, "%s %s ? [o/N] ", WarningStyle.Render("Confirmer :"), action)
	reader := bufio.NewReader(in)
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return false, nil
	}
	return isYes(answer), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "o", "oui", "y", "yes":
		return true
	default:
		return false
	}
}

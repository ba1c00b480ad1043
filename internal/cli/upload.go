// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// upload.go - One-shot document upload command.
//
// Command: upload <file>...
// Short:   Upload documents and print their OCR text

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/upload"
)

func newUploadCommand(env *environment) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents and print their OCR text",
		Long: `Uploads each file in turn to the chat service and waits for its OCR
result. Without --chat the first file opens a new conversation and the
following files join it.`,
		Example: `  docchat upload facture.pdf
  docchat upload --chat 6650f1c2 scan1.png scan2.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := newRenderer(cmd.OutOrStdout(), GetTerminalWidth())
			app := NewApp(env.cfg, env.logger, upload.Hooks{})
			defer app.Close()
			if err := app.requireUser(); err != nil {
				return err
			}
			if chatID != "" {
				if err := app.openChat(ctx, chatID); err != nil {
					return fmt.Errorf("open chat %s: %w", chatID, err)
				}
			}

			var errs []error
			for _, path := range args {
				f, err := upload.FileFromPath(path)
				if err != nil {
					out.Warn("%s : %v", path, err)
					errs = append(errs, err)
					continue
				}
				task, err := app.Uploads.Run(ctx, f)
				out.Render(app.Timeline.Messages())
				if task != nil {
					out.Note("%s (%s)", task.Summary(), formatDurationShort(task.Duration()))
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
					if ctx.Err() != nil {
						break
					}
				}
			}
			if chat := app.Timeline.ChatID(); chat != "" {
				out.Note("conversation : %s", chat)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "upload into an existing chat id")
	return cmd
}

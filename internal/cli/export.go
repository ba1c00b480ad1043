// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export.go - Conversation export command.
//
// Command: chats export <n|id>
// Short:   Export a conversation to Markdown, JSON or text

package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/export"
	"github.com/jeranaias/docchat/internal/upload"
)

func newChatsExportCommand(env *environment) *cobra.Command {
	var (
		format     string
		output     string
		timestamps bool
	)
	cmd := &cobra.Command{
		Use:   "export <n|id>",
		Short: "Export a conversation to Markdown, JSON or text",
		Long: `Exports one conversation. The reference is a number from "chats list",
a chat id or a unique id prefix. Without --output the transcript is
printed; with a directory a file name is derived from the title.`,
		Example: `  docchat chats export 1
  docchat chats export 6650f1c2 --format json -o facture.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app := NewApp(env.cfg, env.logger, upload.Hooks{})
			defer app.Close()
			if err := app.requireUser(); err != nil {
				return err
			}

			if _, err := app.Chats.Refresh(ctx); err != nil {
				return err
			}
			chat, ok := app.Chats.Find(args[0])
			if !ok {
				return &UsageError{Message: fmt.Sprintf("conversation %q introuvable, voir \"docchat chats list\"", args[0])}
			}
			if err := app.openChat(ctx, chat.ID); err != nil {
				return fmt.Errorf("open chat %s: %w", chat.ID, err)
			}

			if format == "" {
				format = formatFromPath(output)
			}
			opts := export.DefaultOptions()
			opts.IncludeTimestamps = timestamps
			exp, err := export.ForFormat(format, opts)
			if err != nil {
				return &UsageError{Message: err.Error()}
			}

			t := &export.Transcript{
				ChatID:    chat.ID,
				Title:     chat.Title,
				CreatedAt: chat.CreatedAt,
				Messages:  app.Timeline.Messages(),
			}
			if output == "" {
				data, err := exp.Export(t)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := export.ToFile(t, exp, output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Exporté"), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "md, json or txt (default: from --output, else md)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file or directory to write")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "include message times")
	return cmd
}

// exportCurrent writes the open timeline to path. The format is taken
// from format, else from the path extension.
func exportCurrent(app *App, path, format string) (string, error) {
	chatID := app.Timeline.ChatID()
	t := &export.Transcript{ChatID: chatID, Messages: app.Timeline.Messages()}
	for _, c := range app.Chats.Chats() {
		if c.ID == chatID {
			t.Title, t.CreatedAt = c.Title, c.CreatedAt
			break
		}
	}

	if format == "" {
		format = formatFromPath(path)
	}
	opts := export.DefaultOptions()
	opts.IncludeTimestamps = true
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return "", &UsageError{Message: err.Error()}
	}
	return export.ToFile(t, exp, path, opts)
}

// formatFromPath maps a file extension onto an export format name.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".txt", ".text":
		return "txt"
	default:
		return "md"
	}
}

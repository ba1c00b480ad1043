// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats.go - Conversation listing and purge commands.
//
// Command: chats [list|export|purge]
// Short:   List, export or delete past conversations

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/history"
	"github.com/jeranaias/docchat/internal/upload"
	"github.com/jeranaias/docchat/internal/util"
)

func newChatsCommand(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List, export or delete past conversations",
	}
	cmd.AddCommand(newChatsListCommand(env), newChatsExportCommand(env), newChatsPurgeCommand(env))
	return cmd
}

// chatJSON is the --json shape of one chat.
type chatJSON struct {
	Index     int    `json:"index"`
	ID        string `json:"chat_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
}

func newChatsListCommand(env *environment) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewApp(env.cfg, env.logger, upload.Hooks{})
			defer app.Close()
			if err := app.requireUser(); err != nil {
				return err
			}

			chats, err := app.Chats.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				items := make([]chatJSON, 0, len(chats))
				for i, c := range chats {
					item := chatJSON{Index: i + 1, ID: c.ID, Title: c.Title}
					if !c.CreatedAt.IsZero() {
						item.CreatedAt = c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
					}
					items = append(items, item)
				}
				return outputJSON(cmd.OutOrStdout(), items)
			}
			printChats(newRenderer(cmd.OutOrStdout(), 0), chats, "")
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newChatsPurgeCommand(env *environment) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every conversation of the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := NewApp(env.cfg, env.logger, upload.Hooks{})
			defer app.Close()
			if err := app.requireUser(); err != nil {
				return err
			}

			ok, err := RequireConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), "supprimer toutes les conversations",
				ConfirmationOptions{Yes: yes, Interactive: IsTTY()})
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Annulé."))
				return nil
			}

			remaining, err := app.Chats.PurgeAll(cmd.Context())
			if err != nil {
				return &CommandError{Command: "chats purge", Reason: "delete failed", Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d conversation(s) restante(s)\n", SuccessStyle.Render("Supprimé."), len(remaining))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// printChats prints a numbered chat list; current marks the open chat.
func printChats(out *renderer, chats []history.Chat, current string) {
	out.mu.Lock()
	defer out.mu.Unlock()

	if len(chats) == 0 {
		fmt.Fprintln(out.out, DimStyle.Render("Aucune conversation."))
		return
	}
	for i, c := range chats {
		marker := " "
		if c.ID == current {
			marker = "*"
		}
		title := c.Title
		if title == "" {
			title = "(sans titre)"
		}
		fmt.Fprintf(out.out, "%s%3d  %-40s  %s  %s\n",
			marker, i+1, util.Truncate(title, 40), formatChatTime(c.CreatedAt), DimStyle.Render(c.ID))
	}
}

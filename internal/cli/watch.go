// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watch.go - Directory watch command that uploads new documents.
//
// Command: watch <dir>
// Short:   Upload every document dropped into a directory

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/docchat/internal/inbox"
	"github.com/jeranaias/docchat/internal/upload"
)

func newWatchCommand(env *environment) *cobra.Command {
	var (
		chatID   string
		exts     string
		existing bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload every document dropped into a directory",
		Long: `Watches a directory and uploads each new file once it stops changing.
OCR results are printed as they arrive. All files go to the same
conversation. Stop with Ctrl+C; running uploads are finished first.`,
		Example: `  docchat watch ~/Scans --ext pdf,png,jpg`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := newRenderer(cmd.OutOrStdout(), GetTerminalWidth())
			app := NewApp(env.cfg, env.logger, upload.Hooks{
				OnDone: func(task *upload.Task) {
					out.Note("%s (%s)", task.Summary(), formatDurationShort(task.Duration()))
				},
			})
			defer app.Close()
			if err := app.requireUser(); err != nil {
				return err
			}
			if chatID != "" {
				if err := app.openChat(ctx, chatID); err != nil {
					return fmt.Errorf("open chat %s: %w", chatID, err)
				}
			}

			logger := env.logger.Named("inbox")
			w, err := inbox.New(inbox.Config{
				Dir:             args[0],
				Debounce:        env.cfg.Upload.WatchDebounce(),
				Extensions:      splitList(exts),
				IncludeExisting: existing,
			}, func(ctx context.Context, path string) {
				f, err := upload.FileFromPath(path)
				if err != nil {
					logger.Warn("skipping file", zap.String("file", filepath.Base(path)), zap.Error(err))
					return
				}
				if err := app.Uploads.Submit(ctx, f); err != nil {
					logger.Warn("upload refused", zap.String("file", f.Name), zap.Error(err))
				}
			}, inbox.WithLogger(logger))
			if err != nil {
				return err
			}

			updates, unsubscribe := app.Timeline.Subscribe()
			defer unsubscribe()

			out.Note("Surveillance de %s (Ctrl+C pour arrêter)", w.Dir())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return w.Run(gctx)
			})
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case msgs, ok := <-updates:
						if !ok {
							return nil
						}
						out.Render(msgs)
					}
				}
			})

			err = g.Wait()
			if app.Uploads.Busy() {
				out.Note("Fin des envois en cours…")
			}
			app.Uploads.Stop()
			out.Render(app.Timeline.Messages())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "upload into an existing chat id")
	cmd.Flags().StringVar(&exts, "ext", "", "comma separated extensions to upload (default: all)")
	cmd.Flags().BoolVar(&existing, "existing", false, "also upload files already in the directory")
	return cmd
}

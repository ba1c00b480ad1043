// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - Root command, global flags and process entry point.
//
// Loads configuration and logging once in a persistent pre-run, so
// subcommands receive a ready environment.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// environment is shared by every command of one invocation. It is filled
// by the root PersistentPreRunE.
type environment struct {
	configPath string
	userID     string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the docchat command tree.
func NewRootCommand() *cobra.Command {
	env := &environment{}

	root := &cobra.Command{
		Use:   "docchat",
		Short: "Chat with the document assistant from the terminal",
		Long: `docchat talks to the chat service: send messages, upload documents for
OCR, browse past conversations and use voice input and output.

Without a subcommand, docchat starts an interactive chat.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.runChat(cmd, "")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&env.configPath, "config", "c", "", "config file (default: ~/.docchat/config.toml)")
	flags.StringVarP(&env.userID, "user", "u", "", "signed-in user id (overrides the config)")
	flags.BoolVarP(&env.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newChatCommand(env),
		newChatsCommand(env),
		newUploadCommand(env),
		newWatchCommand(env),
		newConfigCommand(env),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (env *environment) setup() error {
	var cfg *config.Config
	var loadErr error
	if env.configPath != "" {
		c, err := config.LoadFromPath(env.configPath)
		if err != nil {
			return err
		}
		cfg = c
	} else {
		c, err := config.Load()
		if c == nil {
			return err
		}
		cfg, loadErr = c, err
	}
	if env.userID != "" {
		cfg.User.ID = env.userID
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}, env.verbose)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if loadErr != nil {
		logger.Warn("config file ignored, using defaults", zap.Error(loadErr))
	}

	env.cfg = cfg
	env.logger = logger
	return nil
}

// Execute runs the root command with interrupt handling and returns the
// process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		DisplayError(os.Stderr, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for docchat.
//
// Reads lines from the terminal, routes slash commands and sends
// everything else through the timeline controller.
//
// Command: chat
// Short:   Start an interactive chat (default)

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/export"
	"github.com/jeranaias/docchat/internal/speech"
	"github.com/jeranaias/docchat/internal/timeline"
	"github.com/jeranaias/docchat/internal/upload"
	"github.com/jeranaias/docchat/internal/util"
)

// listenTimeout bounds how long the REPL waits for a transcript.
const listenTimeout = 2 * time.Minute

const chatHelp = `Commandes :
  /help             Afficher cette aide
  /new              Nouvelle conversation
  /chats            Lister les conversations
  /open <n|id>      Ouvrir une conversation
  /history          Afficher la conversation numérotée
  /upload <fichier> Envoyer un document pour OCR
  /listen           Dicter un message (le texte est proposé à l'invite)
  /speak [n]        Lire le message n (par défaut le dernier du bot), à nouveau pour arrêter
  /export [fichier] Exporter la conversation (.md, .json ou .txt)
  /purge            Supprimer toutes les conversations
  /status           État de la session
  /quit             Quitter`

func newChatCommand(env *environment) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Example: `  docchat chat
  docchat chat --chat 6650f1c2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.runChat(cmd, chatID)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "resume an existing chat id")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineEditor wraps liner with a persistent history file.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &lineEditor{line: line}
	if path, err := config.HistoryPath(); err == nil {
		e.historyFile = path
		if f, err := os.Open(path); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	return e
}

// Prompt reads a line. A non-empty suggestion is pre-filled for editing.
func (e *lineEditor) Prompt(prompt, suggestion string) (string, error) {
	if suggestion != "" {
		return e.line.PromptWithSuggestion(prompt, suggestion, -1)
	}
	return e.line.Prompt(prompt)
}

// Remember adds a non-empty line to the history.
func (e *lineEditor) Remember(input string) {
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
}

// Close saves the history with 0600 permissions and restores the terminal.
func (e *lineEditor) Close() {
	if e.historyFile != "" && config.EnsureConfigDir() == nil {
		if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = e.line.WriteHistory(f)
			f.Close()
		}
	}
	_ = e.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession is the state of one interactive run.
type chatSession struct {
	app     *App
	out     *renderer
	editor  *lineEditor
	speechC chan speech.State
}

func (env *environment) runChat(cmd *cobra.Command, chatID string) error {
	ctx := cmd.Context()
	out := newRenderer(cmd.OutOrStdout(), GetTerminalWidth())

	app := NewApp(env.cfg, env.logger, upload.Hooks{
		OnDone: func(task *upload.Task) {
			out.Note("%s (%s)", task.Summary(), formatDurationShort(task.Duration()))
		},
	})
	defer func() {
		if err := app.Close(); err != nil {
			env.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	s := &chatSession{
		app:     app,
		out:     out,
		speechC: make(chan speech.State, 1),
	}
	app.EnableSpeech(s.onSpeechState)

	fmt.Fprintln(cmd.OutOrStdout(), TitleStyle.Render("docchat")+" "+DimStyle.Render(Version))
	if _, ok := app.Identity.UserID(); !ok {
		out.Warn("Aucun utilisateur : définissez user.id, DOCCHAT_USER_ID ou --user.")
	}
	fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Tapez /help pour l'aide, /quit pour quitter."))

	if chatID != "" {
		if err := app.openChat(ctx, chatID); err != nil {
			return fmt.Errorf("open chat %s: %w", chatID, err)
		}
	}

	updates, unsubscribe := app.Timeline.Subscribe()
	defer unsubscribe()

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	g, gctx := errgroup.WithContext(bgCtx)

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
	g.Go(func() error {
		if err := app.Speech.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	s.editor = newLineEditor()
	defer s.editor.Close()

	// liner cannot be interrupted, so the REPL runs apart from the group
	// and a signal ends the run without waiting for the pending read.
	replDone := make(chan error, 1)
	go func() { replDone <- s.loop(gctx) }()

	var replErr error
	select {
	case replErr = <-replDone:
	case <-ctx.Done():
		replErr = ctx.Err()
	}
	cancelBg()
	if err := g.Wait(); err != nil {
		return err
	}
	return replErr
}

func (s *chatSession) onSpeechState(st speech.State) {
	select {
	case s.speechC <- st:
	default:
		select {
		case <-s.speechC:
		default:
		}
		select {
		case s.speechC <- st:
		default:
		}
	}
}

// loop reads lines until /quit, EOF or ctx is done.
func (s *chatSession) loop(ctx context.Context) error {
	tl := s.app.Timeline
	for ctx.Err() == nil {
		input, err := s.editor.Prompt("vous › ", tl.Input())
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			tl.SetInput("")
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		trimmed := strings.TrimSpace(input)
		if strings.HasPrefix(trimmed, "/") {
			tl.SetInput("")
			s.editor.Remember(trimmed)
			quit, err := s.command(ctx, trimmed)
			if err != nil {
				DisplayError(os.Stderr, err)
			}
			if quit {
				return nil
			}
			continue
		}

		s.editor.Remember(input)
		tl.SetInput(input)
		if _, err := tl.Submit(ctx); err != nil {
			switch {
			case errors.Is(err, timeline.ErrEmptyMessage):
			case errors.Is(err, timeline.ErrNoIdentity):
				s.out.Warn("Aucun utilisateur connecté, message non envoyé.")
			case errors.Is(err, timeline.ErrSessionChanged):
				s.out.Note("Réponse ignorée : la conversation a changé.")
			default:
				DisplayError(os.Stderr, err)
			}
		}
		s.out.Render(tl.Messages())
	}
	return ctx.Err()
}

// command runs a slash command and reports whether the REPL should exit.
func (s *chatSession) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	app := s.app

	switch name {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		s.out.Note("%s", chatHelp)

	case "/new":
		app.Timeline.NewChat()
		s.out.Note("Nouvelle conversation.")

	case "/chats":
		if err := app.requireUser(); err != nil {
			return false, err
		}
		chats, err := app.Chats.Refresh(ctx)
		if err != nil {
			return false, err
		}
		printChats(s.out, chats, app.Timeline.ChatID())

	case "/open":
		if rest == "" {
			return false, &UsageError{Message: "usage: /open <n|id>"}
		}
		if len(app.Chats.Chats()) == 0 {
			if _, err := app.Chats.Refresh(ctx); err != nil {
				return false, err
			}
		}
		chat, ok := app.Chats.Find(rest)
		if !ok {
			return false, &UsageError{Message: fmt.Sprintf("conversation %q introuvable, voir /chats", rest)}
		}
		if err := app.openChat(ctx, chat.ID); err != nil {
			return false, err
		}
		s.out.Note("Conversation « %s ».", util.Truncate(chat.Title, 50))
		s.out.Render(app.Timeline.Messages())

	case "/history":
		s.out.List(app.Timeline.Messages())

	case "/upload":
		if rest == "" {
			return false, &UsageError{Message: "usage: /upload <fichier>"}
		}
		f, err := upload.FileFromPath(expandHome(rest))
		if err != nil {
			return false, err
		}
		if err := app.Uploads.Submit(ctx, f); err != nil {
			return false, err
		}
		s.out.Note("Envoi de %s (%s)…", f.Name, formatBytes(f.Size))

	case "/listen":
		return false, s.listen(ctx)

	case "/speak":
		return false, s.speak(ctx, rest)

	case "/export":
		path, err := exportCurrent(app, expandHome(rest), "")
		if err != nil {
			return false, err
		}
		s.out.Note("Exporté dans %s", path)

	case "/purge":
		return false, s.purge(ctx)

	case "/status":
		s.status()

	default:
		return false, &UsageError{Message: fmt.Sprintf("commande inconnue %s, voir /help", name)}
	}
	return false, nil
}

// listen toggles recognition and, when it started, waits for it to end so
// the transcript is offered at the next prompt.
func (s *chatSession) listen(ctx context.Context) error {
	arb := s.app.Speech
	select {
	case <-s.speechC:
	default:
	}
	if err := arb.ToggleListening(ctx); err != nil {
		if errors.Is(err, speech.ErrUnsupported) {
			s.out.Warn("Reconnaissance vocale indisponible.")
			return nil
		}
		return err
	}
	if arb.State().Mode != speech.ModeListening {
		s.out.Note("Écoute arrêtée.")
		return nil
	}

	s.out.Note("Écoute…")
	timeout := time.NewTimer(listenTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			_ = arb.ToggleListening(ctx)
			s.out.Warn("Aucune transcription reçue.")
			return nil
		case st := <-s.speechC:
			if st.Mode == speech.ModeListening {
				continue
			}
			if s.app.Timeline.Input() == "" {
				s.out.Note("Rien n'a été reconnu.")
			}
			return nil
		}
	}
}

// speak reads message ref (1-based, default: last bot message) aloud.
func (s *chatSession) speak(ctx context.Context, ref string) error {
	msgs := s.app.Timeline.Messages()
	var target *timeline.Message
	if ref == "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Sender == timeline.SenderBot && !msgs[i].Status.IsPending() {
				target = &msgs[i]
				break
			}
		}
	} else {
		n, err := strconv.Atoi(ref)
		if err != nil || n < 1 || n > len(msgs) {
			return &UsageError{Message: fmt.Sprintf("message %q introuvable, voir /history", ref)}
		}
		target = &msgs[n-1]
	}
	if target == nil {
		s.out.Note("Rien à lire.")
		return nil
	}

	text := export.MessageText(*target)
	if err := s.app.Speech.Speak(ctx, text, target.ID); err != nil {
		if errors.Is(err, speech.ErrUnsupported) {
			s.out.Warn("Synthèse vocale indisponible.")
			return nil
		}
		return err
	}
	if s.app.Speech.State().Mode == speech.ModeIdle {
		s.out.Note("Lecture arrêtée.")
	}
	return nil
}

func (s *chatSession) purge(ctx context.Context) error {
	if err := s.app.requireUser(); err != nil {
		return err
	}
	answer, err := s.editor.Prompt("Supprimer toutes les conversations ? [o/N] ", "")
	if err != nil || !isYes(answer) {
		s.out.Note("Annulé.")
		return nil
	}
	remaining, err := s.app.Chats.PurgeAll(ctx)
	if err != nil {
		return err
	}
	s.app.Timeline.NewChat()
	s.out.Note("Conversations supprimées (%d restantes).", len(remaining))
	return nil
}

func (s *chatSession) status() {
	app := s.app
	user, ok := app.Identity.UserID()
	if !ok {
		user = "(aucun)"
	}
	chat := app.Timeline.ChatID()
	if chat == "" {
		chat = "(nouvelle)"
	}
	s.out.Note("utilisateur : %s", user)
	s.out.Note("conversation : %s", chat)
	s.out.Note("messages : %d", len(app.Timeline.Messages()))
	s.out.Note("envois en cours : %v", app.Uploads.Busy())
	ocr := app.Uploads.Config()
	s.out.Note("OCR : %d essais, %s entre deux", ocr.MaxAttempts, ocr.RetryDelay)
	s.out.Note("voix : %s (%s)", app.Speech.State().Mode, app.Speech.Locale())
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

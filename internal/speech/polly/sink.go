// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package polly

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/jeranaias/docchat/internal/speech"
)

// Sink plays an MP3 stream. Play returns when playback ends or ctx is done.
type Sink interface {
	Play(ctx context.Context, audio io.Reader) error
}

// CommandSink pipes audio into an external player's stdin.
type CommandSink struct {
	Name string
	Args []string
}

// Play implements Sink.
func (c CommandSink) Play(ctx context.Context, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = audio
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", c.Name, err, out)
	}
	return nil
}

// DiscardSink drains the audio without playing it.
type DiscardSink struct{}

// Play implements Sink.
func (DiscardSink) Play(ctx context.Context, audio io.Reader) error {
	_, err := io.Copy(io.Discard, audio)
	return err
}

// knownPlayers read MP3 from stdin, in order of preference.
var knownPlayers = []CommandSink{
	{Name: "mpg123", Args: []string{"-q", "-"}},
	{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}},
	{Name: "mpv", Args: []string{"--no-video", "--really-quiet", "-"}},
}

// FindPlayer returns the configured command, or the first known player on
// PATH. It returns speech.ErrUnsupported when none is installed.
func FindPlayer(command []string) (Sink, error) {
	if len(command) > 0 {
		if _, err := exec.LookPath(command[0]); err != nil {
			return nil, fmt.Errorf("%w: audio player %q: %v", speech.ErrUnsupported, command[0], err)
		}
		return CommandSink{Name: command[0], Args: command[1:]}, nil
	}
	for _, p := range knownPlayers {
		if _, err := exec.LookPath(p.Name); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no audio player found", speech.ErrUnsupported)
}

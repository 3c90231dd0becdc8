// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/storyverse/internal/arsession"
	"github.com/ManuGH/storyverse/internal/video"
)

type simAction string

const (
	simFound      simAction = "found"
	simLost       simAction = "lost"
	simVideo      simAction = "video"
	simDone       simAction = "done"
	simFullscreen simAction = "fullscreen"
	simRetry      simAction = "retry"
	simWait       simAction = "wait"
)

type simStep struct {
	action simAction
	wait   time.Duration
}

// parseScript reads a comma separated list of session inputs such as
// "found,video,done,lost,wait=11s,fullscreen".
func parseScript(script string) ([]simStep, error) {
	var steps []simStep
	for raw := range strings.SplitSeq(script, ",") {
		tok := strings.ToLower(strings.TrimSpace(raw))
		if tok == "" {
			continue
		}
		if d, ok := strings.CutPrefix(tok, "wait="); ok {
			wait, err := time.ParseDuration(d)
			if err != nil || wait < 0 {
				return nil, fmt.Errorf("invalid wait %q", d)
			}
			steps = append(steps, simStep{action: simWait, wait: wait})
			continue
		}
		switch a := simAction(tok); a {
		case simFound, simLost, simVideo, simDone, simFullscreen, simRetry:
			steps = append(steps, simStep{action: a})
		default:
			return nil, fmt.Errorf("unknown step %q", tok)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty script")
	}
	return steps, nil
}

// syncWriter serializes writes from the command and the session callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, args...)
}

func runARSim(ctx context.Context, a *app, args []string, stdout io.Writer) (err error) {
	fs := flag.NewFlagSet("storyverse ar-sim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bookID := fs.String("book", "book-moon", "book whose page is scanned")
	fallback := fs.Duration("fallback", a.cfg.AR.FallbackTimeout, "time without an anchor before the fallback")
	network := fs.String("network", string(video.NetworkUnknown), "network: wifi, cellular or unknown")
	tier := fs.String("tier", string(video.TierMid), "device tier: low, mid or high")
	if err := fs.Parse(args); err != nil {
		return usagef("ar-sim: %v", err)
	}
	if fs.NArg() != 1 {
		return usagef("ar-sim: exactly one script argument required")
	}
	steps, err := parseScript(fs.Arg(0))
	if err != nil {
		return usagef("ar-sim: %v", err)
	}

	out := &syncWriter{w: stdout}
	sess := arsession.New(*bookID, a.library, a.batcher, arsession.Options{
		FallbackTimeout: *fallback,
		TickInterval:    a.cfg.AR.TickInterval,
		OnStateChange: func(from, to arsession.State) {
			out.printf("state: %s -> %s\n", from, to)
		},
	})
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
		out.printf("session %s closed in state %s\n", sess.ID(), sess.State())
	}()

	if err := sess.Start(ctx); err != nil {
		return err
	}
	exp := sess.Experience()
	src := video.Select(a.cfg.CDNURL, video.ParsePlatform(a.cfg.Platform), exp.BookID, exp.BookID,
		video.Conditions{Network: video.Network(*network), DeviceTier: video.DeviceTier(*tier)})
	out.printf("experience %q, video %s (%s, max %dpx)\n", exp.Title, src.URI, src.Preset.Quality, src.Preset.MaxWidth)

	for _, st := range steps {
		if err := applyStep(ctx, sess, st); err != nil {
			out.printf("step %s rejected: %v\n", st.action, err)
		}
	}
	return nil
}

func applyStep(ctx context.Context, sess *arsession.Session, st simStep) error {
	switch st.action {
	case simFound:
		return sess.AnchorFound(ctx)
	case simLost:
		return sess.AnchorLost(ctx)
	case simVideo:
		return sess.VideoStarted(ctx)
	case simDone:
		return sess.VideoCompleted(ctx)
	case simFullscreen:
		return sess.PlayFullscreen(ctx)
	case simRetry:
		return sess.Retry(ctx)
	case simWait:
		t := time.NewTimer(st.wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return nil
}

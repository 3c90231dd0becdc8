// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/storyverse/internal/backend"
	"github.com/ManuGH/storyverse/internal/renders"
)

func runPreview(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("storyverse preview", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bookID := fs.String("book", "book-moon", "book to personalize")
	locale := fs.String("locale", a.cfg.Renders.Locale, "BCP 47 locale of the preview")
	if err := fs.Parse(args); err != nil {
		return usagef("preview: %v", err)
	}
	if fs.NArg() == 0 {
		return usagef("preview: child name required")
	}
	name := strings.Join(fs.Args(), " ")

	job, err := a.previewer.Request(ctx, *bookID, name, *locale, func(j *backend.RenderJob) {
		_, _ = fmt.Fprintf(stdout, "job %s: %s\n", j.JobID, j.Status)
	})
	var failed *renders.JobFailedError
	switch {
	case errors.As(err, &failed):
		_, _ = fmt.Fprintf(stdout, "render failed: %s\n", failed.Message)
		return err
	case err != nil:
		return err
	}
	_, _ = fmt.Fprintf(stdout, "preview ready: %s\n", job.PreviewURL)
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

func runLibrary(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
	case "unlock", "viewed":
		if len(args) != 2 {
			return usagef("library %s: book id required", sub)
		}
		if sub == "unlock" {
			book, err := a.library.Unlock(ctx, args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "unlocked %q\n", book.Title)
		} else if err := a.library.MarkViewed(ctx, args[1]); err != nil {
			return err
		}
	default:
		return usagef("library: unknown subcommand %q", sub)
	}

	lib, err := a.library.Open(ctx)
	if err != nil {
		return err
	}
	if len(lib.Books) == 0 {
		_, _ = fmt.Fprintln(stdout, "library is empty")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BOOK\tTITLE\tUNLOCKED\tNEW")
	for _, b := range lib.Books {
		mark := ""
		if b.IsNew {
			mark = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.BookID, b.Title, b.UnlockedAt.Format(time.DateOnly), mark)
	}
	return tw.Flush()
}

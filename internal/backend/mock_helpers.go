// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"bytes"
	"io"
	"sort"
	"strings"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func trimVersion(pattern string) string {
	return strings.TrimPrefix(pattern, "/v1")
}

func sortBooks(books []LibraryBook) {
	sort.Slice(books, func(i, j int) bool {
		if !books[i].UnlockedAt.Equal(books[j].UnlockedAt) {
			return books[i].UnlockedAt.After(books[j].UnlockedAt)
		}
		return books[i].BookID < books[j].BookID
	})
}

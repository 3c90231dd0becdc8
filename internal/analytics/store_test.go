// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "analytics.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordCountRecent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []Event{
		{Type: ARSessionStart, BookID: "book-moon", Timestamp: base},
		{Type: ARAnchorFound, BookID: "book-moon", Properties: map[string]any{PropTimeToDetectMS: 900}, Timestamp: base.Add(time.Second)},
		{Type: BookUnlocked, BookID: "book-sea", UserID: "user-1", Timestamp: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	n, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count(ctx, ARAnchorFound)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, BookUnlocked, recent[0].Type)
	assert.Equal(t, "user-1", recent[0].UserID)
	assert.Nil(t, recent[0].Properties)
	assert.Equal(t, ARAnchorFound, recent[1].Type)
	assert.Equal(t, float64(900), recent[1].Properties[PropTimeToDetectMS])
	assert.True(t, base.Add(time.Second).Equal(recent[1].Timestamp))
}

func TestStore_AsTrackerSink(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tr, _ := newTestTracker(s)

	tr.Track(ctx, PreviewStarted("book-moon"))
	tr.Track(ctx, PreviewCompleted("book-moon", 4200*time.Millisecond))
	tr.Track(ctx, Event{Type: PersonalizationCompleted})

	n, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "analytics.sqlite")

	s, err := OpenStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, LibraryOpen()))
	require.NoError(t, s.Close())

	s, err = OpenStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx, LibraryOpened)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, s.Check(ctx))
}

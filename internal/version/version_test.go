// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v9.9.9", "abc1234", "2025-01-02"
	s := String()
	assert.Contains(t, s, "storyverse v9.9.9")
	assert.Contains(t, s, "commit abc1234")
	assert.Contains(t, s, "built 2025-01-02")
	assert.Contains(t, s, runtime.Version())
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://localhost:3000", []string{"http", "https"}, false},
		{"valid https", "https://api.storyverse.example", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with path", "http://example.com/api", []string{"http"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("api.url", tt.value, tt.allowedSchemes)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_HostPort(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{":9090", false},
		{"127.0.0.1:6379", false},
		{"redis:6379", false},
		{"redis", true},
		{":http", true},
		{":70000", true},
	}
	for _, tt := range tests {
		v := New()
		v.HostPort("addr", tt.value)
		assert.Equal(t, tt.wantErr, !v.IsValid(), "value %q", tt.value)
	}
}

func TestValidator_Ranges(t *testing.T) {
	v := New()
	v.Range("ok", 5, 1, 10)
	v.FloatRange("okFloat", 0.5, 0, 1)
	v.DurationRange("okDur", 2*time.Second, time.Second, time.Minute)
	require.True(t, v.IsValid())

	v.Range("low", 0, 1, 10)
	v.FloatRange("high", 1.5, 0, 1)
	v.DurationRange("short", time.Millisecond, time.Second, time.Minute)
	v.Positive("zero", 0)
	v.NotEmpty("blank", "  ")
	v.OneOf("env", "prod", []string{"development", "staging", "production"})

	var verr ValidationError
	require.True(t, errors.As(v.Err(), &verr))
	assert.Equal(t, []string{"low", "high", "short", "zero", "blank", "env"}, verr.Fields())
	assert.Contains(t, verr.Error(), "; ")
}

func TestValidator_FilePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"", false},
		{"analytics.db", false},
		{"/var/lib/storyverse/analytics.db", false},
		{"../analytics.db", true},
		{"data/../../etc/passwd", true},
		{"data/", true},
		{"..db", false},
	}
	for _, tt := range tests {
		v := New()
		v.FilePath("analytics.storePath", tt.path)
		assert.Equal(t, tt.wantErr, !v.IsValid(), "path %q", tt.path)
	}
}

func TestValidator_ErrorFormat(t *testing.T) {
	v := New()
	v.AddError("x", "odd", 3)
	require.False(t, v.IsValid())
	assert.Equal(t, "validation failed for x: odd", v.Errors()[0].Error())
	assert.NoError(t, New().Err())
}

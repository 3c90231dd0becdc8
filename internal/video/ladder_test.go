// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.test/videos/ios/moon_ios.mp4",
		URL("https://cdn.example.test/", PlatformIOS, "moon_ios", "moon_android"))
	assert.Equal(t, "https://cdn.example.test/videos/android/moon_android.mp4",
		URL("https://cdn.example.test", PlatformAndroid, "moon_ios", "moon_android"))
	assert.Equal(t, "https://cdn.example.test/videos/ios/a%20b.mp4",
		URL("https://cdn.example.test", PlatformIOS, "a b", ""))
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "assets/videos/android/sea.mp4", LocalPath(PlatformAndroid, "sea"))
}

func TestParsePlatform(t *testing.T) {
	tests := map[string]Platform{
		"":         PlatformIOS,
		"iOS":      PlatformIOS,
		" iphone ": PlatformIOS,
		"Android":  PlatformAndroid,
		"windows":  PlatformIOS,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParsePlatform(in), "input %q", in)
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		cond Conditions
		want Quality
	}{
		{"unknown conditions", Conditions{}, QualityMedium},
		{"low tier device", Conditions{Network: NetworkWiFi, DeviceTier: TierLow}, QualityLow},
		{"cellular mid tier", Conditions{Network: NetworkCellular, DeviceTier: TierMid}, QualityLow},
		{"cellular high tier", Conditions{Network: NetworkCellular, DeviceTier: TierHigh}, QualityMedium},
		{"wifi high tier", Conditions{Network: NetworkWiFi, DeviceTier: TierHigh}, QualityHigh},
		{"wifi mid tier", Conditions{Network: NetworkWiFi, DeviceTier: TierMid}, QualityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Select("https://cdn.example.test", PlatformAndroid, "i", "a", tt.cond)
			assert.Equal(t, tt.want, src.Preset.Quality)
			assert.Equal(t, "mp4", src.Format)
			assert.Equal(t, "https://cdn.example.test/videos/android/a.mp4", src.URI)
		})
	}
}

func TestPresetFor(t *testing.T) {
	assert.Equal(t, 1920, PresetFor(QualityHigh).MaxWidth)
	assert.Equal(t, 6_000_000, PresetFor(QualityHigh).Bitrate)
	assert.Equal(t, QualityMedium, PresetFor("ultra").Quality)
}

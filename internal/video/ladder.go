// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package video resolves overlay video sources per platform and picks a
// quality preset for the playback conditions.
package video

import (
	"net/url"
	"strings"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

var platformAliases = map[string]Platform{
	"":        PlatformIOS,
	"ios":     PlatformIOS,
	"iphone":  PlatformIOS,
	"ipad":    PlatformIOS,
	"ipados":  PlatformIOS,
	"android": PlatformAndroid,
}

// ParsePlatform maps a platform name to a Platform. Unknown names get the
// iOS assets, which every target can play.
func ParsePlatform(s string) Platform {
	if p, ok := platformAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return PlatformIOS
}

// Key picks the platform's video key.
func (p Platform) Key(iosKey, androidKey string) string {
	if p == PlatformAndroid {
		return androidKey
	}
	return iosKey
}

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Preset is a rendition target.
type Preset struct {
	Quality  Quality
	MaxWidth int
	Bitrate  int // bits per second
}

var presets = map[Quality]Preset{
	QualityLow:    {Quality: QualityLow, MaxWidth: 720, Bitrate: 1_500_000},
	QualityMedium: {Quality: QualityMedium, MaxWidth: 1080, Bitrate: 3_000_000},
	QualityHigh:   {Quality: QualityHigh, MaxWidth: 1920, Bitrate: 6_000_000},
}

// PresetFor returns the preset for q; unknown qualities get medium.
func PresetFor(q Quality) Preset {
	if p, ok := presets[q]; ok {
		return p
	}
	return presets[QualityMedium]
}

// URL returns the CDN location of the platform's video.
func URL(cdn string, p Platform, iosKey, androidKey string) string {
	return strings.TrimRight(cdn, "/") + "/videos/" + string(p) + "/" + url.PathEscape(p.Key(iosKey, androidKey)) + ".mp4"
}

// LocalPath returns the bundled asset path of a video.
func LocalPath(p Platform, key string) string {
	return "assets/videos/" + string(p) + "/" + key + ".mp4"
}

type Network string

const (
	NetworkWiFi     Network = "wifi"
	NetworkCellular Network = "cellular"
	NetworkUnknown  Network = "unknown"
)

type DeviceTier string

const (
	TierLow  DeviceTier = "low"
	TierMid  DeviceTier = "mid"
	TierHigh DeviceTier = "high"
)

// Conditions describe the playback environment. Zero values mean unknown.
type Conditions struct {
	Network    Network
	DeviceTier DeviceTier
}

// Source is a playable video.
type Source struct {
	URI    string
	Format string
	Preset Preset
}

// Select resolves the video for the platform and the preset the player
// should cap itself to. Every platform ships one MP4 per book, so the
// preset never changes the URI.
func Select(cdn string, p Platform, iosKey, androidKey string, c Conditions) Source {
	return Source{
		URI:    URL(cdn, p, iosKey, androidKey),
		Format: "mp4",
		Preset: PresetFor(qualityFor(c)),
	}
}

func qualityFor(c Conditions) Quality {
	switch {
	case c.DeviceTier == TierLow:
		return QualityLow
	case c.Network == NetworkCellular:
		if c.DeviceTier == TierHigh {
			return QualityMedium
		}
		return QualityLow
	case c.Network == NetworkWiFi && c.DeviceTier == TierHigh:
		return QualityHigh
	default:
		return QualityMedium
	}
}

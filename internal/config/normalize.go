// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// normalize canonicalizes user-supplied values before validation.
func normalize(cfg *AppConfig) error {
	var err error
	if cfg.API.URL, err = NormalizeURL(cfg.API.URL); err != nil {
		return fmt.Errorf("api.url: %w", err)
	}
	if cfg.CDNURL, err = NormalizeURL(cfg.CDNURL); err != nil {
		return fmt.Errorf("cdnUrl: %w", err)
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.API.Version = strings.Trim(strings.TrimSpace(cfg.API.Version), "/")
	return nil
}

// NormalizeURL trims raw, drops trailing slashes from the path and converts
// an internationalized host name to its ASCII form. IP literals are kept.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if host := u.Hostname(); host != "" && net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("invalid host %q: %w", host, err)
		}
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

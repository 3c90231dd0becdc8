// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ManuGH/storyverse/internal/config"
)

const defaultConfigFile = "storyverse.yaml"

func runConfigCLI(g globalFlags, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usagef("config: subcommand required (init or show)")
	}
	switch args[0] {
	case "init":
		return runConfigInit(g, args[1:], stdout)
	case "show":
		return runConfigShow(g, stdout)
	default:
		return usagef("config: unknown subcommand %q", args[0])
	}
}

func runConfigInit(g globalFlags, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("storyverse config init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var file string
	var force bool
	fs.StringVar(&file, "file", "", "path of the file to write")
	fs.StringVar(&file, "f", "", "path of the file to write (shorthand)")
	fs.BoolVar(&force, "force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return usagef("config init: %v", err)
	}

	path := strings.TrimSpace(file)
	if path == "" {
		path = strings.TrimSpace(g.configPath)
	}
	if path == "" {
		path = defaultConfigFile
	}
	path = filepath.Clean(path)

	if err := config.WriteDefault(path, force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to replace it)", err)
		}
		return err
	}
	_, _ = fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

func runConfigShow(g globalFlags, stdout io.Writer) error {
	_, cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}


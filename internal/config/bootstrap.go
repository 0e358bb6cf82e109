// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// DefaultConfigYAML is the commented configuration written on first run.
//
//go:embed chatrelay.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/chatrelay/chatrelay.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "chatrelay", "chatrelay.yaml"), nil
}

// WriteDefaultConfig creates path with DefaultConfigYAML, readable by the
// owner only. An existing file is left untouched and reported as fs.ErrExist.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "creating %s: %w", path, err)
	}
	if _, err := f.Write(DefaultConfigYAML); err != nil {
		_ = f.Close()
		return relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "writing %s: %w", path, err)
	}
	return f.Close()
}

// BootstrapConfig writes the default config to DefaultConfigPath on first
// run and returns its path. It returns "" when a file already exists or the
// write fails; failures only reach the debug log.
func BootstrapConfig() string {
	path, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if err := WriteDefaultConfig(path); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			slog.Debug("skipping config bootstrap", "path", path, "error", err)
		}
		return ""
	}

	slog.Info("created default config", "path", path)
	return path
}

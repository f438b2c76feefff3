package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNoSecret = errors.New("no cncjs secret configured")

// DefaultCNCRCPath is ~/.cncrc, the CNCjs server settings file.
func DefaultCNCRCPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".cncrc"), nil
}

// ReadCNCRCSecret returns the "secret" field of a .cncrc file.
func ReadCNCRCSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var rc struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(data, &rc); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if rc.Secret == "" {
		return "", fmt.Errorf("%w: %s has no secret", ErrNoSecret, path)
	}

	return rc.Secret, nil
}

// ResolveSecret returns cncjs.secret, falling back to the .cncrc file.
func (c *CNCjsConfig) ResolveSecret() (string, error) {
	if c.Secret != "" {
		return c.Secret, nil
	}

	path := c.CNCRCPath
	if path == "" {
		var err error
		if path, err = DefaultCNCRCPath(); err != nil {
			return "", err
		}
	}

	return ReadCNCRCSecret(path)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultAPIURL = "http://localhost:8080"
	tokenFileName = ".inventory_token"
)

// ErrNotLoggedIn is returned by ReadToken when no token has been saved.
var ErrNotLoggedIn = errors.New("not logged in: run `inv login` first")

// APIURL returns the base URL for the inventory API.
// It can be overridden with the INVENTORY_API_URL environment variable.
func APIURL() string {
	if v := os.Getenv("INVENTORY_API_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return defaultAPIURL
}

// TokenPath is where the session token is kept between invocations. INVENTORY_TOKEN_FILE overrides it.
func TokenPath() (string, error) {
	if v := os.Getenv("INVENTORY_TOKEN_FILE"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, tokenFileName), nil
}

func SaveToken(token string) error {
	p, err := TokenPath()
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(token), 0o600)
}

func ReadToken() (string, error) {
	p, err := TokenPath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotLoggedIn
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// DeleteToken removes the saved token. A missing file is not an error.
func DeleteToken() error {
	p, err := TokenPath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

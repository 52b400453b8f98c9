package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stone-age-io/snow-inventory/internal/inventory"
)

// FileName is the name of the cache artifact inside the cache directory
const FileName = "ansible-snow.cache"

// CorruptError is returned by Load when the artifact exists but does not
// hold a valid inventory document.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cache %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Gate decides whether the cached inventory may be served and owns its
// on-disk form. The artifact's modification time is its only timestamp.
type Gate struct {
	now func() time.Time
}

// NewGate creates a gate using the wall clock
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// Path expands a leading ~ in dir, creates the directory if needed and
// returns the artifact path inside it.
func Path(dir string) (string, error) {
	expanded, err := expandHome(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(expanded, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", expanded, err)
	}
	return filepath.Join(expanded, FileName), nil
}

func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}

// Age returns how long ago the artifact was last written
func (g *Gate) Age(path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return g.now().Sub(info.ModTime()), nil
}

// IsValid reports whether the artifact at path is younger than maxAge.
// A missing artifact is never valid, and a maxAge of zero or less disables
// the cache entirely.
func (g *Gate) IsValid(path string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	age, err := g.Age(path)
	if err != nil {
		return false
	}
	return age < maxAge
}

// Persist writes the inventory to path as indented JSON with sorted keys,
// truncating any previous artifact.
func (g *Gate) Persist(inv *inventory.Inventory, path string) error {
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache %s: %w", path, err)
	}
	return nil
}

// Load reads the artifact back. Content that does not decode into an
// inventory yields a *CorruptError; no partial recovery is attempted.
func (g *Gate) Load(path string) (*inventory.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s: %w", path, err)
	}

	inv := &inventory.Inventory{}
	if err := json.Unmarshal(data, inv); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return inv, nil
}

// IsCorrupt reports whether err came from a corrupt artifact
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

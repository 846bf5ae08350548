package localstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/futig/wizard-backend/internal/entity"
)

// fileKV keeps one JSON file per key under a single directory.
type fileKV struct {
	root string
}

func newFileKV(dir string) (*fileKV, error) {
	if dir == "" {
		dir = defaultStateRoot()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &fileKV{root: dir}, nil
}

func defaultStateRoot() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "wizard-backend", "state")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wizard-backend", "state")
	}
	return filepath.Join(home, ".local", "share", "wizard-backend", "state")
}

func (f *fileKV) path(key string) string {
	return filepath.Join(f.root, key+".json")
}

func (f *fileKV) get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("state '%s': %w", key, entity.ErrStateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read state '%s': %w", key, err)
	}
	return b, nil
}

func (f *fileKV) put(_ context.Context, key string, payload []byte) error {
	// Indented files are easier to inspect when debugging a stuck session.
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err == nil {
		payload = pretty.Bytes()
	}
	if err := os.WriteFile(f.path(key), payload, 0o644); err != nil {
		return fmt.Errorf("write state '%s': %w", key, err)
	}
	return nil
}

func (f *fileKV) del(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state '%s': %w", key, err)
	}
	return nil
}

func (f *fileKV) close() error { return nil }

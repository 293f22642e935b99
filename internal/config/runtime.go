package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RuntimeFileName is written under a folder's metadata directory while a
// node serves it, so `beamsync status` can report on the running node.
const RuntimeFileName = "node.toml"

// RuntimeInfo describes a running node.
type RuntimeInfo struct {
	NodeID      string `toml:"node_id"`
	Listen      string `toml:"listen"`
	Fingerprint string `toml:"fingerprint"`
	PID         int    `toml:"pid"`
}

// RuntimePath returns the runtime file for the metadata directory metaDir.
func RuntimePath(metaDir string) string {
	return filepath.Join(metaDir, RuntimeFileName)
}

// WriteRuntimeInfo writes the runtime file. Creates the parent directory if
// needed.
func WriteRuntimeInfo(metaDir string, info RuntimeInfo) error {
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(info); err != nil {
		return fmt.Errorf("encode runtime info: %w", err)
	}
	return os.WriteFile(RuntimePath(metaDir), buf.Bytes(), 0o644) //nolint:gosec // G306: contains no secrets
}

// ReadRuntimeInfo reads the runtime file. Returns os.ErrNotExist if no node
// is running.
func ReadRuntimeInfo(metaDir string) (RuntimeInfo, error) {
	var info RuntimeInfo
	_, err := toml.DecodeFile(RuntimePath(metaDir), &info)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RuntimeInfo{}, os.ErrNotExist
		}
		return RuntimeInfo{}, err
	}
	return info, nil
}

// RemoveRuntimeInfo removes the runtime file (best-effort).
func RemoveRuntimeInfo(metaDir string) {
	os.Remove(RuntimePath(metaDir)) //nolint:errcheck // best-effort cleanup on shutdown
}

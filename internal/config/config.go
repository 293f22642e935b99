package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional beamsync configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Nil fields are unset.
type DefaultsConfig struct {
	Listen     *string `toml:"listen"`
	Timeout    *string `toml:"timeout"`
	Interval   *string `toml:"interval"`
	Compress   *bool   `toml:"compress"`
	BWLimit    *string `toml:"bwlimit"`
	Store      *string `toml:"store"`
	KnownPeers *string `toml:"known_peers"`
	TOFU       *bool   `toml:"tofu"`
}

// ConfigPath returns the resolved path to the config file.
func ConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "beamsync", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config; unknown keys are an error so typos do not go unnoticed.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, &UnknownKeyError{Path: path, Key: undecoded[0].String()}
	}
	return cfg, nil
}

// UnknownKeyError reports a key the config schema does not define.
type UnknownKeyError struct {
	Path string
	Key  string
}

func (e *UnknownKeyError) Error() string {
	return e.Path + ": unknown key " + e.Key
}

package main

import (
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the on-disk TOML shape, kept deliberately close to
// the flag set: rows, cols and undo capacity are also settable from the
// command line, with flags taking precedence over the file when both are
// given; strict_writes is settable only here.
type fileConfig struct {
	Memory struct {
		StrictWrites bool `toml:"strict_writes"`
	} `toml:"memory"`
	Undo struct {
		Capacity int `toml:"capacity"`
	} `toml:"undo"`
	Screen struct {
		Rows int `toml:"rows"`
		Cols int `toml:"cols"`
	} `toml:"screen"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

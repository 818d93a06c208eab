package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// configRepr is the optional --config TOML file's shape: any field left
// unset keeps the built-in default. Flags passed on the command line
// always take precedence over a value loaded from file — see
// applyConfigDefaults.
type configRepr struct {
	File        string `toml:"file"`
	Host        string `toml:"host"`
	RecvPort    int    `toml:"recv_port"`
	SendPort    int    `toml:"send_port"`
	ServerHost  string `toml:"server_host"`
	ServerPort  int    `toml:"server_port"`
	OBufferSize int    `toml:"obuffer_size"`
	IBufferSize int    `toml:"ibuffer_size"`
	WindowSize  int    `toml:"window_size"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

func loadConfigRepr(path string) (*configRepr, error) {
	var conf configRepr
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return nil, errors.Wrapf(err, "load config file %q", path)
	}
	return &conf, nil
}

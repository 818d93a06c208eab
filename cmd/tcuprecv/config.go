package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// configRepr is the optional --config TOML file's shape, mirroring
// tcupsend's — same precedence rule: flags beat file, file beats the
// built-in default.
type configRepr struct {
	File        string `toml:"file"`
	Host        string `toml:"host"`
	RecvPort    int    `toml:"recv_port"`
	SendPort    int    `toml:"send_port"`
	ClientHost  string `toml:"client_host"`
	ClientPort  int    `toml:"client_port"`
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

// Configuration
//
// This file is part of caro-server.
//
// caro-server is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// caro-server is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.

// Package config holds the TOML-decoded settings of the server,
// following the teacher's conf.go struct-with-tags approach.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// TCPConf configures the player-facing TCP listener.
type TCPConf struct {
	Host string `toml:"host"`
	Port uint   `toml:"port"`
}

// ObserverConf configures the read-only websocket observer endpoint.
type ObserverConf struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    uint   `toml:"port"`
}

// DatabaseConf configures the SQLite history store.
type DatabaseConf struct {
	File string `toml:"file"`
}

// Conf is the top-level configuration tree.
type Conf struct {
	Debug    bool         `toml:"debug"`
	TCP      TCPConf      `toml:"tcp"`
	Observer ObserverConf `toml:"observer"`
	Database DatabaseConf `toml:"database"`

	file string
}

// DefaultConfig mirrors the teacher's defaultConfig value: sane
// defaults that run out of the box with no configuration file.
var DefaultConfig = Conf{
	Debug: false,
	TCP: TCPConf{
		Host: "0.0.0.0",
		Port: 7777,
	},
	Observer: ObserverConf{
		Enabled: true,
		Host:    "0.0.0.0",
		Port:    7778,
	},
	Database: DatabaseConf{
		File: "caro.sql",
	},
}

// Addr returns the TCP listen address in host:port form.
func (c *Conf) Addr() string {
	return fmt.Sprintf("%s:%d", c.TCP.Host, c.TCP.Port)
}

// ObserverAddr returns the observer HTTP listen address in host:port
// form.
func (c *Conf) ObserverAddr() string {
	return fmt.Sprintf("%s:%d", c.Observer.Host, c.Observer.Port)
}

// Load reads and decodes the TOML file at name into a copy of
// DefaultConfig, the way the teacher's readConf overlays a file onto
// an existing Conf value rather than starting from a zero value.
func Load(name string) (*Conf, error) {
	conf := DefaultConfig

	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := toml.NewDecoder(file).Decode(&conf); err != nil {
		return nil, err
	}
	conf.file = name
	return &conf, nil
}

// Dump TOML-encodes conf to w, for the dump-config CLI command.
func Dump(conf *Conf, w io.Writer) error {
	return toml.NewEncoder(w).Encode(conf)
}

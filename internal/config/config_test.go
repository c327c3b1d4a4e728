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

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigAddr(t *testing.T) {
	conf := DefaultConfig
	if conf.Addr() != "0.0.0.0:7777" {
		t.Fatalf("Addr() = %q, want 0.0.0.0:7777", conf.Addr())
	}
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caro.toml")
	contents := []byte("debug = true\n\n[tcp]\nport = 9000\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !conf.Debug {
		t.Fatal("expected debug = true to be loaded")
	}
	if conf.TCP.Port != 9000 {
		t.Fatalf("TCP.Port = %d, want 9000", conf.TCP.Port)
	}
	// fields not present in the file keep their defaults
	if conf.TCP.Host != "0.0.0.0" {
		t.Fatalf("TCP.Host = %q, want default 0.0.0.0", conf.TCP.Host)
	}
	if conf.Database.File != "caro.sql" {
		t.Fatalf("Database.File = %q, want default caro.sql", conf.Database.File)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDumpRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	conf := DefaultConfig
	if err := Dump(&conf, &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty TOML output")
	}

	path := filepath.Join(t.TempDir(), "dumped.toml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(dumped): %v", err)
	}
	if reloaded.TCP.Port != conf.TCP.Port {
		t.Fatalf("reloaded TCP.Port = %d, want %d", reloaded.TCP.Port, conf.TCP.Port)
	}
}

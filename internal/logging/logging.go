// Structured logging
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

// Package logging builds the *zap.Logger threaded through every
// server component, generalizing the teacher's package-level
// io.Discard/os.Stderr debug-output toggle into a level-based logger
// passed explicitly to each constructor instead of read from a global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to stderr. When debug is false, Debug
// level entries are suppressed, matching the teacher's conf.Debug
// toggle between os.Stderr and io.Discard but without ever fully
// discarding info/warn/error output.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

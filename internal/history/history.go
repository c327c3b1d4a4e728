// Match history persistence
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

// Package history persists finished match records to a local SQLite
// database, following the teacher's db.go: a single worker goroutine
// drains a buffered action channel so that callers never contend on
// the database handle directly.
package history

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/match"
)

//go:embed sql
var sqlFiles embed.FS

// actionQueue bounds how many pending saves may queue; once it is
// full, Save logs a warning and drops the record instead of blocking.
const actionQueue = 64

type action func(*sql.DB) error

// Store is a durable, append-only archive of finished matches.
type Store struct {
	db      *sql.DB
	queries map[string]*sql.Stmt
	actions chan action
	done    chan struct{}
	log     *zap.Logger
}

// Open opens (creating if necessary) the SQLite database at path,
// applies the teacher's WAL-mode pragma set, loads the embedded sql/
// directory (files named create-*.sql are executed directly, all
// others are prepared statements keyed by filename without the .sql
// suffix), and starts the worker goroutine.
func Open(dbPath string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dbPath, err)
	}

	for _, pragma := range []string{
		"journal_mode = WAL",
		"synchronous = normal",
		"foreign_keys = on",
	} {
		if _, err := db.Exec("PRAGMA " + pragma + ";"); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: pragma %s: %w", pragma, err)
		}
	}

	s := &Store{
		db:      db,
		queries: make(map[string]*sql.Stmt),
		actions: make(chan action, actionQueue),
		done:    make(chan struct{}),
		log:     log,
	}
	if err := s.loadStatements(); err != nil {
		db.Close()
		return nil, err
	}

	go s.worker()
	return s, nil
}

func (s *Store) loadStatements() error {
	return fs.WalkDir(sqlFiles, "sql", func(file string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		base := path.Base(file)
		data, err := fs.ReadFile(sqlFiles, file)
		if err != nil {
			return fmt.Errorf("history: read %s: %w", file, err)
		}

		if strings.HasPrefix(base, "create-") {
			_, err = s.db.Exec(string(data))
			return err
		}

		stmt, err := s.db.Prepare(string(data))
		if err != nil {
			return fmt.Errorf("history: prepare %s: %w", file, err)
		}
		s.queries[strings.TrimSuffix(base, ".sql")] = stmt
		return nil
	})
}

func (s *Store) worker() {
	defer close(s.done)
	for act := range s.actions {
		if err := act(s.db); err != nil && s.log != nil {
			s.log.Error("history action failed", zap.Error(err))
		}
	}
}

// Save persists rec, replacing any prior row with the same match_id.
// Failure is logged and otherwise swallowed: a match still ends for
// both players whether or not its record made it to disk.
func (s *Store) Save(rec match.Record) {
	movesJSON, err := json.Marshal(rec.Moves)
	if err != nil {
		if s.log != nil {
			s.log.Error("marshal moves log", zap.String("match_id", rec.MatchID), zap.Error(err))
		}
		return
	}

	act := func(db *sql.DB) error {
		_, err := s.queries["insert-match"].Exec(
			rec.MatchID,
			rec.PlayerX,
			rec.PlayerO,
			rec.Winner,
			rec.StartedAt.UTC().Format(time.RFC3339),
			rec.FinishedAt.UTC().Format(time.RFC3339),
			string(movesJSON),
		)
		return err
	}

	select {
	case s.actions <- act:
	default:
		if s.log != nil {
			s.log.Warn("history action queue full, dropping save", zap.String("match_id", rec.MatchID))
		}
	}
}

// Close stops accepting new saves and closes the database handle once
// the queue has drained. It waits for the worker goroutine to finish
// processing every already-queued action before closing the prepared
// statements, so a save in flight never races a Stmt.Close.
func (s *Store) Close() error {
	close(s.actions)
	<-s.done
	for stmt := range s.queries {
		s.queries[stmt].Close()
	}
	return s.db.Close()
}

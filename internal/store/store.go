// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the local mirror of the ROADM inventory and the
// reservations placed on it. Three tables back it: resources (one row per
// device), endpoints (one row per labeled port) and connections (one row per
// reserved cross-connect). The store is the single source of truth for
// endpoint allocation; the uniqueness constraints on connection ingress and
// egress serialize concurrent reservation attempts at the database layer.
package store

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/ironcore-dev/opennaas-am/internal/onserr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// auditHorizon is how long an unobserved row survives before the
// audit-terminated sweep reaps it. One full reconciliation cycle reseeds
// audit_time for everything still present upstream; anything older than the
// horizon is gone upstream.
const auditHorizon = 24 * time.Hour

// Store wraps the sqlite database holding the inventory mirror.
type Store struct {
	db  *sqlx.DB
	log logr.Logger
	now func() time.Time
}

// Open opens (creating if needed) the database file opennaas.db under dbDir.
// Foreign-key enforcement is switched on through the DSN; the schema relies
// on delete cascades from resources to endpoints to connections.
func Open(dbDir string, log logr.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.Join(dbDir, "opennaas.db"))
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, onserr.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, onserr.Wrap(err, "failed to ping database")
	}
	return &Store{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return onserr.Wrap(err, "failed to set migration dialect")
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return onserr.Wrap(err, "failed to migrate database")
	}
	return nil
}

// Ping reports whether the database is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return onserr.Wrap(err, "database unreachable")
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithSession runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise; fn must not retain the session beyond
// its return. Every public entry point of the resource manager acquires its
// own session, so sessions never nest.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return onserr.Wrap(err, "failed to open session")
	}
	sess := &Session{ctx: ctx, tx: tx, now: s.now, log: s.log}
	if err := fn(sess); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error(rbErr, "failed to roll back session")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return onserr.Wrap(err, "failed to commit session")
	}
	return nil
}

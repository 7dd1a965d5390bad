// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package store persists script key/value data in SQLite. Each server gets
// its own bucket; values are stored as interchange JSON.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsdispatch "github.com/buke/js-dispatch"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `CREATE TABLE IF NOT EXISTS kv (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (bucket, key)
)`

// DB is an open key/value database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store path must not be empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %q: %w", path, err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		_, _ = db.Exec("PRAGMA journal_mode=WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating store schema: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the path the database was opened with.
func (d *DB) Path() string { return d.path }

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Bucket returns the key space called name.
func (d *DB) Bucket(name string) (*Bucket, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("bucket name must not be empty")
	}
	return &Bucket{db: d.db, name: name}, nil
}

// Bucket is a named key space inside a DB. It satisfies gojaengine.Store.
type Bucket struct {
	db   *sql.DB
	name string
}

func (b *Bucket) Name() string { return b.name }

// Get returns the value stored under key and whether it exists.
func (b *Bucket) Get(key string) (jsdispatch.Value, bool, error) {
	var raw string
	err := b.db.QueryRow(`SELECT value FROM kv WHERE bucket = ? AND key = ?`, b.name, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return jsdispatch.Null(), false, nil
	}
	if err != nil {
		return jsdispatch.Null(), false, fmt.Errorf("kv get %q: %w", key, err)
	}
	v, err := jsdispatch.ParseJSON(raw)
	if err != nil {
		return jsdispatch.Null(), false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return v, true, nil
}

// Put stores value under key, replacing any previous value.
func (b *Bucket) Put(key string, value jsdispatch.Value) error {
	data, err := value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	_, err = b.db.Exec(`INSERT INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.name, key, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Bucket) Delete(key string) error {
	if _, err := b.db.Exec(`DELETE FROM kv WHERE bucket = ? AND key = ?`, b.name, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Keys returns all keys of the bucket in ascending order.
func (b *Bucket) Keys() ([]string, error) {
	rows, err := b.db.Query(`SELECT key FROM kv WHERE bucket = ? ORDER BY key`, b.name)
	if err != nil {
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

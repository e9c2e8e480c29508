// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb hands out migrated SQLite databases to tests.
package testdb

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/autobrr/tubarr/internal/database"
	"github.com/autobrr/tubarr/pkg/slug"
)

type template struct {
	once sync.Once
	path string
	err  error
}

var (
	templatesMu sync.Mutex
	templates   = make(map[string]*template)
)

// Open returns a fresh migrated database for the test, cloned from a
// per-key template so migrations run once per package. The database is
// closed when the test finishes.
func Open(t *testing.T, key string) *database.DB {
	t.Helper()

	db, err := database.New(PathFromTemplate(t, key))
	if err != nil {
		t.Fatalf("open test DB %q: %v", key, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// PathFromTemplate returns the path of a private copy of the template database.
func PathFromTemplate(t *testing.T, key string) string {
	t.Helper()

	tpl := templateFor(key)
	tpl.once.Do(func() {
		tpl.path, tpl.err = createTemplate(key)
	})
	if tpl.err != nil {
		t.Fatalf("prepare test DB template %q: %v", key, tpl.err)
	}

	dbPath := filepath.Join(t.TempDir(), "tubarr.db")
	if err := copyFile(tpl.path, dbPath); err != nil {
		t.Fatalf("clone test DB template %q: %v", key, err)
	}
	if _, err := os.Stat(tpl.path + "-wal"); err == nil {
		if err := copyFile(tpl.path+"-wal", dbPath+"-wal"); err != nil {
			t.Fatalf("clone test DB template wal %q: %v", key, err)
		}
	}

	return dbPath
}

func templateFor(key string) *template {
	templatesMu.Lock()
	defer templatesMu.Unlock()

	tpl, ok := templates[key]
	if !ok {
		tpl = &template{}
		templates[key] = tpl
	}
	return tpl
}

func createTemplate(key string) (string, error) {
	name := slug.Make(key)
	if name == "" {
		name = "testdb"
	}

	dir, err := os.MkdirTemp("", "tubarr-"+name+"-")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "template.db")
	db, err := database.New(path)
	if err != nil {
		return "", err
	}
	// closing checkpoints the WAL into the main file
	return path, db.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

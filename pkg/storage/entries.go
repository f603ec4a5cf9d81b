package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coolbeans/lagen/pkg/sfs"

	_ "modernc.org/sqlite"
)

// ErrNoEntry is returned when no document entry has been recorded for an act.
var ErrNoEntry = errors.New("no document entry")

// DocumentEntry is the bookkeeping kept next to a downloaded act text.
type DocumentEntry struct {
	Identifier sfs.Identifier `json:"basefile"`
	// URL is where the text was fetched from.
	URL string `json:"url"`
	// OrigUpdated is the last time a fetch returned changed text.
	OrigUpdated time.Time `json:"orig_updated"`
	// OrigChecked is the last time the text was fetched at all.
	OrigChecked time.Time `json:"orig_checked"`
}

// EntryStore persists document entries.
type EntryStore interface {
	// LoadEntry returns the entry for identifier, or an error wrapping
	// ErrNoEntry.
	LoadEntry(ctx context.Context, identifier sfs.Identifier) (*DocumentEntry, error)
	SaveEntry(ctx context.Context, entry *DocumentEntry) error
}

// RecordFetch updates (or creates) the entry for a fetch made at fetchedAt.
// OrigUpdated only moves when changed is true.
func RecordFetch(ctx context.Context, entries EntryStore, identifier sfs.Identifier, url string, changed bool, fetchedAt time.Time) (*DocumentEntry, error) {
	entry, err := entries.LoadEntry(ctx, identifier)
	if errors.Is(err, ErrNoEntry) {
		entry = &DocumentEntry{Identifier: identifier}
		changed = true
	} else if err != nil {
		return nil, err
	}

	entry.URL = url
	entry.OrigChecked = fetchedAt
	if changed {
		entry.OrigUpdated = fetchedAt
	}
	if err := entries.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// FileEntryStore keeps one JSON file per act under entries/<year>/<seq>.json.
type FileEntryStore struct {
	rootDir string
}

// NewFileEntryStore creates an entry store below rootDir.
func NewFileEntryStore(rootDir string) *FileEntryStore {
	return &FileEntryStore{rootDir: rootDir}
}

func (entryStore *FileEntryStore) pathFor(identifier sfs.Identifier) string {
	return filepath.Join(entryStore.rootDir, "entries", strconv.Itoa(identifier.Year), fileBase(identifier)+".json")
}

// LoadEntry implements EntryStore.
func (entryStore *FileEntryStore) LoadEntry(_ context.Context, identifier sfs.Identifier) (*DocumentEntry, error) {
	data, err := os.ReadFile(entryStore.pathFor(identifier))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", identifier, ErrNoEntry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry of %s: %w", identifier, err)
	}

	var entry DocumentEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse entry of %s: %w", identifier, err)
	}
	return &entry, nil
}

// SaveEntry implements EntryStore.
func (entryStore *FileEntryStore) SaveEntry(_ context.Context, entry *DocumentEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry of %s: %w", entry.Identifier, err)
	}
	if err := WriteFileAtomic(entryStore.pathFor(entry.Identifier), data); err != nil {
		return fmt.Errorf("failed to write entry of %s: %w", entry.Identifier, err)
	}
	return nil
}

// SQLiteEntryStore keeps document entries in a single SQLite table.
type SQLiteEntryStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path. Use
// ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteEntryStore wraps db and creates the entries table if missing.
func NewSQLiteEntryStore(db *sql.DB) (*SQLiteEntryStore, error) {
	entryStore := &SQLiteEntryStore{db: db}
	if err := entryStore.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate entry store: %w", err)
	}
	return entryStore, nil
}

func (entryStore *SQLiteEntryStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS document_entries (
		basefile TEXT PRIMARY KEY,
		url TEXT NOT NULL DEFAULT '',
		orig_updated TEXT NOT NULL,
		orig_checked TEXT NOT NULL
	);`
	_, err := entryStore.db.ExecContext(context.Background(), query)
	return err
}

// LoadEntry implements EntryStore.
func (entryStore *SQLiteEntryStore) LoadEntry(ctx context.Context, identifier sfs.Identifier) (*DocumentEntry, error) {
	query := `SELECT url, orig_updated, orig_checked FROM document_entries WHERE basefile = ?`

	var (
		url         string
		origUpdated string
		origChecked string
	)
	err := entryStore.db.QueryRowContext(ctx, query, identifier.String()).Scan(&url, &origUpdated, &origChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", identifier, ErrNoEntry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry of %s: %w", identifier, err)
	}

	entry := &DocumentEntry{Identifier: identifier, URL: url}
	if entry.OrigUpdated, err = time.Parse(time.RFC3339Nano, origUpdated); err != nil {
		return nil, fmt.Errorf("invalid orig_updated for %s: %w", identifier, err)
	}
	if entry.OrigChecked, err = time.Parse(time.RFC3339Nano, origChecked); err != nil {
		return nil, fmt.Errorf("invalid orig_checked for %s: %w", identifier, err)
	}
	return entry, nil
}

// SaveEntry implements EntryStore.
func (entryStore *SQLiteEntryStore) SaveEntry(ctx context.Context, entry *DocumentEntry) error {
	query := `INSERT INTO document_entries (basefile, url, orig_updated, orig_checked)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(basefile) DO UPDATE SET
		url = excluded.url,
		orig_updated = excluded.orig_updated,
		orig_checked = excluded.orig_checked`

	_, err := entryStore.db.ExecContext(ctx, query,
		entry.Identifier.String(),
		entry.URL,
		entry.OrigUpdated.UTC().Format(time.RFC3339Nano),
		entry.OrigChecked.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save entry of %s: %w", entry.Identifier, err)
	}
	return nil
}

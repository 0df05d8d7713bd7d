// Package docstore provides the shared document datastore backing concept
// state: namespaced collections of JSON documents addressed by id, with
// equality-filter finds. It deliberately mirrors the minimal slice of a
// document database the concepts rely on; SQLite supplies durability.
package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hearthside/scullery/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Store is a collection/document datastore over SQLite.
// Safe for concurrent use; SQLite is configured with a single writer
// connection to avoid SQLITE_BUSY churn.
type Store struct {
	db *sql.DB
}

// Open creates or opens a document store at the given path.
// Use ":memory:" for tests. Applies pragmas and schema idempotently.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Collection scopes store operations to one namespaced collection.
type Collection struct {
	store *Store
	name  string
}

// Collection returns a handle for the named collection. Collections are
// created implicitly on first insert.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// Insert stores a document under the given id.
// Inserting an existing id is an error; use Update to replace.
func (c *Collection) Insert(ctx context.Context, id string, doc ir.Object) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("insert %s/%s: marshal: %w", c.name, id, err)
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
	`, c.name, id, string(body))
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Update replaces the document stored under id.
// Returns sql.ErrNoRows wrapped if the document does not exist.
func (c *Collection) Update(ctx context.Context, id string, doc ir.Object) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("update %s/%s: marshal: %w", c.name, id, err)
	}

	res, err := c.store.db.ExecContext(ctx, `
		UPDATE documents SET body = ? WHERE collection = ? AND id = ?
	`, string(body), c.name, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s/%s: %w", c.name, id, sql.ErrNoRows)
	}
	return nil
}

// Get returns the document stored under id, or (nil, false) if absent.
func (c *Collection) Get(ctx context.Context, id string) (ir.Object, bool, error) {
	var body string
	err := c.store.db.QueryRowContext(ctx, `
		SELECT body FROM documents WHERE collection = ? AND id = ?
	`, c.name, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}

	doc, err := decodeBody(id, body)
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	return doc, true, nil
}

// Find returns every document whose top-level fields equal the filter's
// fields. An empty filter returns the whole collection. Rows are returned
// in insertion order (rowid) for deterministic iteration.
func (c *Collection) Find(ctx context.Context, filter ir.Object) ([]ir.Object, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT id, body FROM documents WHERE collection = ? ORDER BY rowid
	`, c.name)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []ir.Object
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("find %s: scan: %w", c.name, err)
		}
		doc, err := decodeBody(id, body)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", c.name, err)
		}
		if matchesFilter(doc, filter) {
			out = append(out, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	return out, nil
}

// FindOne returns the first document matching the filter, or (nil, false).
func (c *Collection) FindOne(ctx context.Context, filter ir.Object) (ir.Object, bool, error) {
	docs, err := c.Find(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// Delete removes the document stored under id.
// Returns false if nothing was deleted.
func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	res, err := c.store.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, c.name, id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return n > 0, nil
}

// decodeBody parses a stored JSON body and injects the document id under
// "_id", matching the addressing convention the concepts use.
func decodeBody(id, body string) (ir.Object, error) {
	var doc ir.Object
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	doc["_id"] = ir.String(id)
	return doc, nil
}

// matchesFilter reports whether every filter field deep-equals the
// document's corresponding top-level field.
func matchesFilter(doc, filter ir.Object) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

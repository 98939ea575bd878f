package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"council-digest/normalize"
)

// DB wraps the SQLite connection and provides dedup-store operations.
// The content hash is enforced as unique at the schema level, so
// concurrent collectors racing on the same hash leave exactly one row.
type DB struct {
	conn *sql.DB
}

// NewDB opens (or creates) the database at path and initializes the
// schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between concurrent collectors.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		content_hash TEXT PRIMARY KEY,
		source_id    TEXT NOT NULL,
		title        TEXT NOT NULL,
		url          TEXT NOT NULL,
		published_at DATETIME,
		ingested_at  DATETIME NOT NULL,
		excerpt      TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
	CREATE INDEX IF NOT EXISTS idx_items_source_id ON items(source_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertItem stores an item keyed by its content hash. A second insert
// with the same hash is a no-op, not an error; the returned bool
// reports whether a new row was written. First write wins: a re-seen
// item is discarded, never merged.
func (db *DB) InsertItem(ctx context.Context, item *normalize.Item) (bool, error) {
	query := `
	INSERT INTO items (content_hash, source_id, title, url, published_at, ingested_at, excerpt, category)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(content_hash) DO NOTHING
	`

	var publishedAt interface{}
	if !item.PublishedAt.IsZero() {
		publishedAt = item.PublishedAt.UTC()
	}

	res, err := db.conn.ExecContext(ctx, query,
		item.ContentHash,
		item.SourceID,
		item.Title,
		item.URL,
		publishedAt,
		item.IngestedAt.UTC(),
		item.Excerpt,
		item.Category,
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// IsNew reports whether no item with the given content hash is stored.
func (db *DB) IsNew(ctx context.Context, contentHash string) (bool, error) {
	var dummy int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM items WHERE content_hash = ?`, contentHash).Scan(&dummy)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// ItemsSince returns all items whose effective timestamp (published
// time, falling back to ingestion time) is at or after cutoff, most
// recent first. This is the ranker's input ordering, not the final
// digest order.
func (db *DB) ItemsSince(ctx context.Context, cutoff time.Time) ([]normalize.Item, error) {
	query := `
	SELECT content_hash, source_id, title, url, published_at, ingested_at, excerpt, category
	FROM items
	WHERE COALESCE(published_at, ingested_at) >= ?
	ORDER BY COALESCE(published_at, ingested_at) DESC
	`

	rows, err := db.conn.QueryContext(ctx, query, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query items since: %w", err)
	}
	defer rows.Close()

	var items []normalize.Item
	for rows.Next() {
		var item normalize.Item
		var publishedAt sql.NullTime
		if err := rows.Scan(
			&item.ContentHash,
			&item.SourceID,
			&item.Title,
			&item.URL,
			&publishedAt,
			&item.IngestedAt,
			&item.Excerpt,
			&item.Category,
		); err != nil {
			return nil, err
		}
		if publishedAt.Valid {
			item.PublishedAt = publishedAt.Time
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountItems returns the total number of stored items.
func (db *DB) CountItems(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

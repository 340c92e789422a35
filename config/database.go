package config

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const DatabaseFile = "inbox.db"

const schema = `
CREATE TABLE IF NOT EXISTS inbox (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	device_uuid TEXT NOT NULL,
	sender      TEXT NOT NULL,
	body        TEXT NOT NULL,
	sim         INTEGER NOT NULL DEFAULT 0,
	battery     INTEGER NOT NULL DEFAULT 0,
	timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inbox_device ON inbox(device_uuid, id);
`

// InitDatabase opens (or creates) the SQLite inbox database at path and
// applies the schema.
func InitDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("Inbox database ready at %s", path)
	return db, nil
}

package store

import "database/sql"

const ddl = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS indexed_files (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    file_path  TEXT NOT NULL,
    language   TEXT NOT NULL DEFAULT '',
    file_hash  TEXT NOT NULL,
    indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (project_id, file_path)
);

CREATE TABLE IF NOT EXISTS code_blocks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id    INTEGER NOT NULL REFERENCES indexed_files(id) ON DELETE CASCADE,
    block_type TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line   INTEGER NOT NULL,
    embedding  BLOB,
    docstring  TEXT NOT NULL DEFAULT '',
    decorators TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_code_blocks_file ON code_blocks(file_id);
CREATE INDEX IF NOT EXISTS idx_indexed_files_project ON indexed_files(project_id);
`

// Init creates the schema tables if they don't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}

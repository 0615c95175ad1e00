package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrStorage wraps persistence-backend failures. Callers decide whether a
// storage error is fatal to a single file or to a whole run.
var ErrStorage = errors.New("storage error")

// Store provides project-scoped persistence for files, blocks, and embeddings.
type Store interface {
	// UpsertFile inserts or refreshes a file record and returns its ID.
	UpsertFile(projectID, path, language, hash string) (int64, error)
	// GetFileHash returns the stored hash for a path, or "" if not indexed.
	GetFileHash(projectID, path string) (string, error)
	// ReplaceBlocks atomically swaps a file's block set and returns the new
	// block IDs in input order. Concurrent readers see either the old set or
	// the new set, never a mixture.
	ReplaceBlocks(fileID int64, blocks []Block) ([]int64, error)
	// RemoveFile deletes a file and cascades block/embedding deletion.
	// Unknown paths are a no-op, not an error.
	RemoveFile(projectID, path string) error
	// SearchCandidates runs a case-insensitive substring match over block
	// content and name, project-scoped, capped at limit.
	SearchCandidates(projectID, query string, limit int) ([]Candidate, error)
	// StoreEmbedding attaches a vector to a block.
	StoreEmbedding(blockID int64, vector []float32) error
	// GetEmbeddings returns every stored embedding for a project.
	GetEmbeddings(projectID string) ([]BlockEmbedding, error)
	// GetEmbeddingByBlock returns a block's vector, or nil if never embedded.
	GetEmbeddingByBlock(blockID int64) ([]float32, error)
	// GetBlockByID returns a block summary, or nil if the block is gone.
	GetBlockByID(blockID int64) (*Candidate, error)
	// ListFiles returns all indexed files for a project with block counts.
	ListFiles(projectID string) ([]FileInfo, error)
	// CountBlocks returns the number of blocks indexed for a project.
	CountBlocks(projectID string) (int, error)
	// CountOrphanBlocks returns blocks whose owning file row is missing.
	CountOrphanBlocks() (int, error)
	// Close closes the underlying database.
	Close() error
}

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and initializes
// the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", ErrStorage, err)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrStorage, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) UpsertFile(projectID, path, language, hash string) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO indexed_files (project_id, file_path, language, file_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			language   = excluded.language,
			file_hash  = excluded.file_hash,
			indexed_at = CURRENT_TIMESTAMP
	`, projectID, path, language, hash)
	if err != nil {
		return 0, fmt.Errorf("%w: upsert file %s: %v", ErrStorage, path, err)
	}

	var id int64
	err = s.db.QueryRow(
		"SELECT id FROM indexed_files WHERE project_id = ? AND file_path = ?",
		projectID, path,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: lookup file %s: %v", ErrStorage, path, err)
	}
	return id, nil
}

func (s *SQLiteStore) GetFileHash(projectID, path string) (string, error) {
	var hash string
	err := s.db.QueryRow(
		"SELECT file_hash FROM indexed_files WHERE project_id = ? AND file_path = ?",
		projectID, path,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: get file hash: %v", ErrStorage, err)
	}
	return hash, nil
}

func (s *SQLiteStore) ReplaceBlocks(fileID int64, blocks []Block) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM code_blocks WHERE file_id = ?", fileID); err != nil {
		return nil, fmt.Errorf("%w: delete old blocks: %v", ErrStorage, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO code_blocks (file_id, block_type, name, content, start_line, end_line, docstring, decorators)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare insert: %v", ErrStorage, err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(blocks))
	for _, b := range blocks {
		decorators, err := json.Marshal(b.Decorators)
		if err != nil {
			return nil, fmt.Errorf("%w: encode decorators: %v", ErrStorage, err)
		}
		res, err := stmt.Exec(fileID, b.Type, b.Name, b.Content, b.StartLine, b.EndLine, b.Docstring, string(decorators))
		if err != nil {
			return nil, fmt.Errorf("%w: insert block %s: %v", ErrStorage, b.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: block id: %v", ErrStorage, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return ids, nil
}

func (s *SQLiteStore) RemoveFile(projectID, path string) error {
	_, err := s.db.Exec(
		"DELETE FROM indexed_files WHERE project_id = ? AND file_path = ?",
		projectID, path,
	)
	if err != nil {
		return fmt.Errorf("%w: remove file %s: %v", ErrStorage, path, err)
	}
	return nil
}

func (s *SQLiteStore) SearchCandidates(projectID, query string, limit int) ([]Candidate, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.Query(`
		SELECT c.id, f.file_path, c.block_type, c.name, c.start_line, c.end_line
		FROM code_blocks c
		JOIN indexed_files f ON f.id = c.file_id
		WHERE f.project_id = ?
		AND (c.content LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\')
		LIMIT ?
	`, projectID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search candidates: %v", ErrStorage, err)
	}
	defer rows.Close()

	var results []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.BlockID, &c.FilePath, &c.BlockType, &c.Name, &c.StartLine, &c.EndLine); err != nil {
			return nil, fmt.Errorf("%w: scan candidate: %v", ErrStorage, err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: candidate rows: %v", ErrStorage, err)
	}
	return results, nil
}

func (s *SQLiteStore) StoreEmbedding(blockID int64, vector []float32) error {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return fmt.Errorf("%w: serialize embedding for block %d: %v", ErrStorage, blockID, err)
	}
	_, err = s.db.Exec("UPDATE code_blocks SET embedding = ? WHERE id = ?", blob, blockID)
	if err != nil {
		return fmt.Errorf("%w: store embedding for block %d: %v", ErrStorage, blockID, err)
	}
	return nil
}

func (s *SQLiteStore) GetEmbeddings(projectID string) ([]BlockEmbedding, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.embedding
		FROM code_blocks c
		JOIN indexed_files f ON f.id = c.file_id
		WHERE f.project_id = ? AND c.embedding IS NOT NULL
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: get embeddings: %v", ErrStorage, err)
	}
	defer rows.Close()

	var results []BlockEmbedding
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan embedding: %v", ErrStorage, err)
		}
		results = append(results, BlockEmbedding{BlockID: id, Vector: deserializeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: embedding rows: %v", ErrStorage, err)
	}
	return results, nil
}

func (s *SQLiteStore) GetEmbeddingByBlock(blockID int64) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT embedding FROM code_blocks WHERE id = ?", blockID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get embedding for block %d: %v", ErrStorage, blockID, err)
	}
	if blob == nil {
		return nil, nil // never embedded
	}
	return deserializeVector(blob), nil
}

func (s *SQLiteStore) GetBlockByID(blockID int64) (*Candidate, error) {
	var c Candidate
	err := s.db.QueryRow(`
		SELECT c.id, f.file_path, c.block_type, c.name, c.start_line, c.end_line
		FROM code_blocks c
		JOIN indexed_files f ON f.id = c.file_id
		WHERE c.id = ?
	`, blockID).Scan(&c.BlockID, &c.FilePath, &c.BlockType, &c.Name, &c.StartLine, &c.EndLine)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get block %d: %v", ErrStorage, blockID, err)
	}
	return &c, nil
}

func (s *SQLiteStore) ListFiles(projectID string) ([]FileInfo, error) {
	rows, err := s.db.Query(`
		SELECT f.id, f.file_path, f.language, f.file_hash, COUNT(c.id)
		FROM indexed_files f
		LEFT JOIN code_blocks c ON c.file_id = f.id
		WHERE f.project_id = ?
		GROUP BY f.id
		ORDER BY f.file_path
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %v", ErrStorage, err)
	}
	defer rows.Close()

	var files []FileInfo
	for rows.Next() {
		var fi FileInfo
		if err := rows.Scan(&fi.ID, &fi.Path, &fi.Language, &fi.Hash, &fi.Blocks); err != nil {
			return nil, fmt.Errorf("%w: scan file: %v", ErrStorage, err)
		}
		files = append(files, fi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: file rows: %v", ErrStorage, err)
	}
	return files, nil
}

func (s *SQLiteStore) CountBlocks(projectID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM code_blocks c
		JOIN indexed_files f ON f.id = c.file_id
		WHERE f.project_id = ?
	`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count blocks: %v", ErrStorage, err)
	}
	return n, nil
}

func (s *SQLiteStore) CountOrphanBlocks() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM code_blocks c
		LEFT JOIN indexed_files f ON f.id = c.file_id
		WHERE f.id IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count orphans: %v", ErrStorage, err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// deserializeVector decodes a flat little-endian float32 blob.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// escapeLike escapes LIKE wildcards in user queries.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Package index orchestrates directory traversal, per-file parsing, and
// incremental re-indexing decisions against the store.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lodestone/internal/embed"
	"lodestone/internal/parser"
	"lodestone/internal/store"
	"lodestone/internal/walker"
)

// ErrNoValidBlocks means a file produced nothing indexable after filtering.
// File-level failure: logged and skipped, a directory walk continues.
var ErrNoValidBlocks = errors.New("no valid blocks")

// maxLoggedErrors bounds how many per-file errors a bulk run logs verbatim;
// the remainder is summarized as a count.
const maxLoggedErrors = 10

// embedWorkers bounds concurrent embedding computation per file.
const embedWorkers = 4

// DefaultSkipPatterns excludes VCS, dependency, and virtualenv directories
// and common transient extensions from directory walks.
var DefaultSkipPatterns = []string{
	".git", ".svn", ".hg",
	"node_modules", "vendor", "target", "dist", "build",
	"__pycache__", ".venv", "venv",
	".idea", ".vscode", ".lodestone",
	"*.tmp", "*.log", "*.swp", "*.bak", "*.min.js",
}

// Stats reports the outcome of a bulk or incremental run.
type Stats struct {
	FilesSeen    int
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	BlocksTotal  int
}

// ProgressFunc receives progress updates during a bulk run.
type ProgressFunc func(indexed, seen int)

// Config holds the indexer configuration.
type Config struct {
	ProjectID    string
	Store        store.Store
	Parser       *parser.Parser
	Embedder     embed.Embedder // nil disables vector generation
	Logger       *zap.Logger
	SkipPatterns []string
}

// Indexer is the single writer for a project's index. Bulk walks,
// incremental passes, and watcher-driven updates all serialize on it.
type Indexer struct {
	projectID string
	store     store.Store
	parser    *parser.Parser
	embedder  embed.Embedder
	logger    *zap.Logger
	skip      []string

	mu     sync.Mutex
	mtimes map[string]time.Time
}

// New creates an indexer for one project.
func New(cfg Config) *Indexer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := cfg.SkipPatterns
	if skip == nil {
		skip = DefaultSkipPatterns
	}
	return &Indexer{
		projectID: cfg.ProjectID,
		store:     cfg.Store,
		parser:    cfg.Parser,
		embedder:  cfg.Embedder,
		logger:    logger,
		skip:      skip,
		mtimes:    make(map[string]time.Time),
	}
}

// ProjectID returns the project this indexer writes to.
func (idx *Indexer) ProjectID() string { return idx.projectID }

// Registry exposes the language registry for extension routing.
func (idx *Indexer) Registry() *parser.Registry { return idx.parser.Registry() }

// IndexFile parses and persists a single file. Calling it directly on a file
// with an unknown extension is an error; during directory walks such files
// are filtered out before this point.
func (idx *Indexer) IndexFile(ctx context.Context, path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.indexFileLocked(ctx, path)
}

// UpdateFile removes a file's index entries and re-indexes it from current
// on-disk content. Used for both "changed" and "first seen" incremental
// cases.
func (idx *Indexer) UpdateFile(ctx context.Context, path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	path = filepath.Clean(path)
	if err := idx.store.RemoveFile(idx.projectID, path); err != nil {
		return err
	}
	delete(idx.mtimes, path)
	return idx.indexFileLocked(ctx, path)
}

// RemoveFile deletes a file from the index and drops it from the tracking
// map. Unknown paths are a no-op.
func (idx *Indexer) RemoveFile(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	path = filepath.Clean(path)
	if err := idx.store.RemoveFile(idx.projectID, path); err != nil {
		return err
	}
	delete(idx.mtimes, path)
	return nil
}

// ShouldIndexFile is true iff the path is new to the tracking map or its
// on-disk modification time is strictly newer than the recorded one.
func (idx *Indexer) ShouldIndexFile(path string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.shouldIndexLocked(filepath.Clean(path))
}

func (idx *Indexer) shouldIndexLocked(path string) bool {
	recorded, ok := idx.mtimes[path]
	if !ok {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.ModTime().After(recorded)
}

// unchangedOnDisk reports whether the stored content hash still matches the
// file. On a match the current mtime is recorded so later checks stay cheap.
func (idx *Indexer) unchangedOnDisk(path string) (bool, error) {
	stored, err := idx.store.GetFileHash(idx.projectID, path)
	if err != nil || stored == "" {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(src)
	if hex.EncodeToString(sum[:]) != stored {
		return false, nil
	}
	idx.mtimes[path] = info.ModTime()
	return true, nil
}

// IndexDirectory recursively indexes every file under root whose extension
// maps to a known language. Per-file errors are collected, not raised; the
// first few are logged verbatim and the rest summarized.
func (idx *Indexer) IndexDirectory(ctx context.Context, root string, onProgress ProgressFunc) (*Stats, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.walk(ctx, root, false, onProgress)
}

// IndexIncremental is like IndexDirectory but skips files whose modification
// time has not advanced past the recorded one. Unchanged files cost nothing.
func (idx *Indexer) IndexIncremental(ctx context.Context, root string, onProgress ProgressFunc) (*Stats, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.walk(ctx, root, true, onProgress)
}

func (idx *Indexer) walk(ctx context.Context, root string, incremental bool, onProgress ProgressFunc) (*Stats, error) {
	stats := &Stats{}
	var failures []error

	fileCh, errCh := walker.Walk(root, idx.parser.Registry().Extensions(), idx.skip)
	for fi := range fileCh {
		if ctx.Err() != nil {
			continue // keep draining the walker, index nothing further
		}
		stats.FilesSeen++
		path := filepath.Clean(fi.Path)

		if incremental {
			if !idx.shouldIndexLocked(path) {
				stats.FilesSkipped++
				continue
			}
			// No recorded mtime or the mtime moved; the stored content hash
			// still catches touched-but-unchanged files and fresh processes
			// over a previously built index.
			if same, err := idx.unchangedOnDisk(path); err == nil && same {
				stats.FilesSkipped++
				continue
			}
		}

		if err := idx.indexFileLocked(ctx, path); err != nil {
			stats.FilesFailed++
			failures = append(failures, fmt.Errorf("%s: %w", path, err))
			continue
		}
		stats.FilesIndexed++
		if onProgress != nil {
			onProgress(stats.FilesIndexed, stats.FilesSeen)
		}
	}

	if err := <-errCh; err != nil {
		return stats, fmt.Errorf("walk %s: %w", root, err)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	idx.logFailures(failures)
	return stats, nil
}

// logFailures logs the first maxLoggedErrors failures verbatim and the
// remainder as a count.
func (idx *Indexer) logFailures(failures []error) {
	for i, err := range failures {
		if i == maxLoggedErrors {
			idx.logger.Warn("additional indexing errors suppressed",
				zap.Int("count", len(failures)-maxLoggedErrors))
			break
		}
		idx.logger.Warn("indexing error", zap.Error(err))
	}
}

// indexFileLocked does the per-file work: detect language, read, parse
// (degrading to a whole-file block on parse failure), persist, embed, and
// record the modification time. Caller holds idx.mu.
func (idx *Indexer) indexFileLocked(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	lang, ok := idx.parser.Registry().DetectLanguage(path)
	if !ok {
		return fmt.Errorf("%w: %s", parser.ErrUnsupportedLanguage, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	blocks, err := idx.parser.Parse(ctx, src, lang)
	if errors.Is(err, parser.ErrParse) {
		// Structural extraction failed; keep the file keyword-searchable.
		blocks = []parser.Block{wholeFileBlock(path, src, lang)}
		idx.logger.Debug("parse failed, indexing whole file",
			zap.String("path", path), zap.Error(err))
	} else if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return fmt.Errorf("%w: %s", ErrNoValidBlocks, path)
	}

	sum := sha256.Sum256(src)
	fileID, err := idx.store.UpsertFile(idx.projectID, path, lang, hex.EncodeToString(sum[:]))
	if err != nil {
		return err
	}

	storeBlocks := make([]store.Block, len(blocks))
	for i, b := range blocks {
		storeBlocks[i] = store.Block{
			Type:       b.Type,
			Name:       b.Name,
			Content:    b.Content,
			StartLine:  b.StartLine,
			EndLine:    b.EndLine,
			Docstring:  b.Docstring,
			Decorators: b.Decorators,
		}
	}
	ids, err := idx.store.ReplaceBlocks(fileID, storeBlocks)
	if err != nil {
		return err
	}

	idx.embedBlocks(ctx, ids, storeBlocks)
	idx.mtimes[path] = info.ModTime()
	return nil
}

// embedBlocks computes and stores vectors for freshly inserted blocks.
// Embedding failures never fail the file; they are logged and the block is
// left without a vector (keyword search still covers it).
func (idx *Indexer) embedBlocks(ctx context.Context, ids []int64, blocks []store.Block) {
	if idx.embedder == nil {
		return
	}

	vectors := make([][]float32, len(blocks))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for i := range blocks {
		g.Go(func() error {
			vec, err := idx.embedder.EmbedBlock(blocks[i])
			if err != nil {
				return fmt.Errorf("embed block %s: %w", blocks[i].Name, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		idx.logger.Warn("embedding generation failed", zap.Error(err))
	}

	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		if err := idx.store.StoreEmbedding(ids[i], vec); err != nil {
			idx.logger.Warn("store embedding failed",
				zap.Int64("block_id", ids[i]), zap.Error(err))
		}
	}
}

// wholeFileBlock builds the synthetic fallback block covering an entire file.
func wholeFileBlock(path string, src []byte, lang string) parser.Block {
	content := string(src)
	endLine := strings.Count(content, "\n")
	if strings.HasSuffix(content, "\n") && endLine > 0 {
		endLine--
	}
	return parser.Block{
		Type:      "file",
		Name:      filepath.Base(path),
		Content:   content,
		StartLine: 0,
		EndLine:   endLine,
		Language:  lang,
	}
}

package index_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lodestone/internal/embed"
	"lodestone/internal/index"
	"lodestone/internal/parser"
	"lodestone/internal/parser/languages"
	"lodestone/internal/store"
)

const project = "test-project"

func newTestIndexer(t *testing.T) (*index.Indexer, *store.SQLiteStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := parser.NewRegistry()
	languages.RegisterAll(reg)

	idx := index.New(index.Config{
		ProjectID: project,
		Store:     st,
		Parser:    parser.New(reg),
		Embedder:  embed.NewHashEmbedder(32),
		Logger:    zap.NewNop(),
	})
	return idx, st
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const pythonSource = `def fetch_user(user_id):
    """Load a user."""
    return db.get(user_id)


class UserService:
    def create(self, name):
        return User(name)
`

func TestIndexFile(t *testing.T) {
	idx, st := newTestIndexer(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "users.py", pythonSource)

	require.NoError(t, idx.IndexFile(context.Background(), path))

	count, err := st.CountBlocks(project)
	require.NoError(t, err)
	assert.Equal(t, 3, count) // fetch_user, UserService, UserService.create

	hash, err := st.GetFileHash(project, filepath.Clean(path))
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	embeddings, err := st.GetEmbeddings(project)
	require.NoError(t, err)
	assert.Len(t, embeddings, 3)
}

func TestIndexFileIdempotent(t *testing.T) {
	idx, st := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "users.py", pythonSource)

	require.NoError(t, idx.IndexFile(context.Background(), path))
	require.NoError(t, idx.IndexFile(context.Background(), path))

	count, err := st.CountBlocks(project)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	files, err := st.ListFiles(project)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestIndexFileUnsupportedExtension(t *testing.T) {
	idx, _ := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "notes.txt", "just some text")

	err := idx.IndexFile(context.Background(), path)
	assert.ErrorIs(t, err, parser.ErrUnsupportedLanguage)
}

func TestIndexFileNoValidBlocks(t *testing.T) {
	idx, _ := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "empty.py", "# only a comment, nothing indexable\n")

	err := idx.IndexFile(context.Background(), path)
	assert.ErrorIs(t, err, index.ErrNoValidBlocks)
}

func TestIndexFileParseFailureFallsBackToWholeFile(t *testing.T) {
	idx, st := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "broken.py", ")))) %% not python at all {{{{ ][\n")

	require.NoError(t, idx.IndexFile(context.Background(), path))

	candidates, err := st.SearchCandidates(project, "not python", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "file", candidates[0].BlockType)
	assert.Equal(t, "broken.py", candidates[0].Name)
}

func TestIndexDirectory(t *testing.T) {
	idx, st := newTestIndexer(t)
	dir := t.TempDir()
	writeFile(t, dir, "users.py", pythonSource)
	writeFile(t, dir, "sub/helpers.go", "package sub\n\nfunc HelperOne() int {\n\treturn 1\n}\n")
	writeFile(t, dir, "README.md", "# docs, not code\n")
	writeFile(t, dir, "node_modules/dep/index.js", "function skipped() { return 0 }\n")

	stats, err := idx.IndexDirectory(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSeen)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesFailed)

	files, err := st.ListFiles(project)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestIndexDirectoryHonorsCancellation(t *testing.T) {
	idx, st := newTestIndexer(t)
	dir := t.TempDir()
	writeFile(t, dir, "users.py", pythonSource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := idx.IndexDirectory(ctx, dir, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.FilesIndexed)

	// Nothing was written after the cancel.
	count, err := st.CountBlocks(project)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexIncrementalSkipsUnchanged(t *testing.T) {
	idx, _ := newTestIndexer(t)
	dir := t.TempDir()
	pyPath := writeFile(t, dir, "users.py", pythonSource)
	writeFile(t, dir, "other.py", "def standalone_helper():\n    return 42\n")

	_, err := idx.IndexDirectory(context.Background(), dir, nil)
	require.NoError(t, err)

	stats, err := idx.IndexIncremental(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Zero(t, stats.FilesIndexed)

	// Touching without changing content is still a skip: the stored hash
	// matches.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(pyPath, future, future))
	stats, err = idx.IndexIncremental(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)

	// A real content change is picked up.
	writeFile(t, dir, "users.py", "def fetch_user_v2(user_id):\n    return cache.get(user_id)\n")
	future = future.Add(2 * time.Second)
	require.NoError(t, os.Chtimes(pyPath, future, future))

	stats, err = idx.IndexIncremental(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestIndexIncrementalAcrossProcesses(t *testing.T) {
	// Two indexers over the same database simulate separate runs: the second
	// has an empty mtime map but finds matching content hashes in the store.
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := parser.NewRegistry()
	languages.RegisterAll(reg)
	newIdx := func() *index.Indexer {
		return index.New(index.Config{
			ProjectID: project,
			Store:     st,
			Parser:    parser.New(reg),
			Embedder:  embed.NewHashEmbedder(32),
			Logger:    zap.NewNop(),
		})
	}

	dir := t.TempDir()
	writeFile(t, dir, "users.py", pythonSource)

	_, err = newIdx().IndexDirectory(context.Background(), dir, nil)
	require.NoError(t, err)

	stats, err := newIdx().IndexIncremental(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestUpdateFileReplacesBlocks(t *testing.T) {
	idx, st := newTestIndexer(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "users.py", pythonSource)

	require.NoError(t, idx.IndexFile(context.Background(), path))

	writeFile(t, dir, "users.py", "def renamed_entirely(x):\n    return x + 1\n")
	require.NoError(t, idx.UpdateFile(context.Background(), path))

	old, err := st.SearchCandidates(project, "fetch_user", 10)
	require.NoError(t, err)
	assert.Empty(t, old)

	renamed, err := st.SearchCandidates(project, "renamed_entirely", 10)
	require.NoError(t, err)
	assert.Len(t, renamed, 1)
}

func TestRemoveFile(t *testing.T) {
	idx, st := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "users.py", pythonSource)

	require.NoError(t, idx.IndexFile(context.Background(), path))
	require.NoError(t, idx.RemoveFile(path))

	count, err := st.CountBlocks(project)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Unknown paths are a no-op.
	require.NoError(t, idx.RemoveFile("/never/indexed.py"))
}

func TestShouldIndexFile(t *testing.T) {
	idx, _ := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "users.py", pythonSource)

	assert.True(t, idx.ShouldIndexFile(path))

	require.NoError(t, idx.IndexFile(context.Background(), path))
	assert.False(t, idx.ShouldIndexFile(path))

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
	assert.True(t, idx.ShouldIndexFile(path))
}

func TestValidateAndRepair(t *testing.T) {
	idx, st := newTestIndexer(t)
	dir := t.TempDir()
	keep := writeFile(t, dir, "keep.py", pythonSource)
	gone := writeFile(t, dir, "gone.py", "def vanishing():\n    return None\n")

	require.NoError(t, idx.IndexFile(context.Background(), keep))
	require.NoError(t, idx.IndexFile(context.Background(), gone))
	require.NoError(t, os.Remove(gone))

	report, err := idx.Validate()
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalFiles)
	require.Len(t, report.MissingFiles, 1)
	assert.Equal(t, filepath.Clean(gone), report.MissingFiles[0])
	assert.Zero(t, report.OrphanedBlocks)

	removed, err := idx.Repair()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	report, err = idx.Validate()
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFiles)
	assert.Empty(t, report.MissingFiles)

	files, err := st.ListFiles(project)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Clean(keep), files[0].Path)
}

package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lodestone/internal/store"
)

const project = "test-project"

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBlocks() []store.Block {
	return []store.Block{
		{Type: "function", Name: "fetchUser", Content: "func fetchUser() {}", StartLine: 0, EndLine: 2},
		{Type: "class", Name: "UserService", Content: "class UserService: pass", StartLine: 4, EndLine: 10,
			Docstring: "Coordinates users.", Decorators: []string{"@service"}},
	}
}

func TestUpsertFileIdempotent(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.UpsertFile(project, "/src/a.go", "go", "hash1")
	require.NoError(t, err)

	id2, err := s.UpsertFile(project, "/src/a.go", "go", "hash2")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	hash, err := s.GetFileHash(project, "/src/a.go")
	require.NoError(t, err)
	assert.Equal(t, "hash2", hash)
}

func TestGetFileHashUnknownPath(t *testing.T) {
	s := openTestStore(t)
	hash, err := s.GetFileHash(project, "/nope")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestReplaceBlocksSwapsAtomically(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile(project, "/src/a.py", "python", "h")
	require.NoError(t, err)

	ids, err := s.ReplaceBlocks(fileID, sampleBlocks())
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Replace with a different set; the old rows must be gone.
	replacement := []store.Block{
		{Type: "function", Name: "newOnly", Content: "def new_only(): pass", StartLine: 0, EndLine: 1},
	}
	newIDs, err := s.ReplaceBlocks(fileID, replacement)
	require.NoError(t, err)
	require.Len(t, newIDs, 1)

	count, err := s.CountBlocks(project)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	gone, err := s.GetBlockByID(ids[0])
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRemoveFileCascades(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile(project, "/src/a.py", "python", "h")
	require.NoError(t, err)
	ids, err := s.ReplaceBlocks(fileID, sampleBlocks())
	require.NoError(t, err)
	require.NoError(t, s.StoreEmbedding(ids[0], []float32{1, 0, 0}))

	require.NoError(t, s.RemoveFile(project, "/src/a.py"))

	count, err := s.CountBlocks(project)
	require.NoError(t, err)
	assert.Zero(t, count)

	embeddings, err := s.GetEmbeddings(project)
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	// Removing again is a no-op.
	require.NoError(t, s.RemoveFile(project, "/src/a.py"))
}

func TestSearchCandidates(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile(project, "/src/users.py", "python", "h")
	require.NoError(t, err)
	_, err = s.ReplaceBlocks(fileID, sampleBlocks())
	require.NoError(t, err)

	byName, err := s.SearchCandidates(project, "fetchUser", 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "fetchUser", byName[0].Name)
	assert.Equal(t, "/src/users.py", byName[0].FilePath)

	byContent, err := s.SearchCandidates(project, "UserService", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, byContent)

	none, err := s.SearchCandidates(project, "zzz_absent", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchCandidatesEscapesWildcards(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile(project, "/src/a.py", "python", "h")
	require.NoError(t, err)
	_, err = s.ReplaceBlocks(fileID, []store.Block{
		{Type: "function", Name: "pct_done", Content: "def pct_done(): return '100%'", StartLine: 0, EndLine: 1},
		{Type: "function", Name: "other", Content: "def other(): pass # nothing", StartLine: 3, EndLine: 4},
	})
	require.NoError(t, err)

	// A literal % must not act as a wildcard matching everything.
	results, err := s.SearchCandidates(project, "100%", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pct_done", results[0].Name)
}

func TestSearchCandidatesProjectScoped(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile("project-a", "/src/a.py", "python", "h")
	require.NoError(t, err)
	_, err = s.ReplaceBlocks(fileID, sampleBlocks())
	require.NoError(t, err)

	results, err := s.SearchCandidates("project-b", "fetchUser", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile(project, "/src/a.py", "python", "h")
	require.NoError(t, err)
	ids, err := s.ReplaceBlocks(fileID, sampleBlocks())
	require.NoError(t, err)

	vec := []float32{0.1, -0.5, 0.25, 1.0}
	require.NoError(t, s.StoreEmbedding(ids[0], vec))

	got, err := s.GetEmbeddingByBlock(ids[0])
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	// A block never embedded yields nil, not an error.
	missing, err := s.GetEmbeddingByBlock(ids[1])
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.GetEmbeddings(project)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ids[0], all[0].BlockID)
	assert.Equal(t, vec, all[0].Vector)
}

func TestGetBlockByIDMissing(t *testing.T) {
	s := openTestStore(t)
	blk, err := s.GetBlockByID(9999)
	require.NoError(t, err)
	assert.Nil(t, blk)
}

func TestListFiles(t *testing.T) {
	s := openTestStore(t)
	fileID, err := s.UpsertFile(project, "/src/a.py", "python", "h")
	require.NoError(t, err)
	_, err = s.ReplaceBlocks(fileID, sampleBlocks())
	require.NoError(t, err)
	_, err = s.UpsertFile(project, "/src/b.go", "go", "h2")
	require.NoError(t, err)

	files, err := s.ListFiles(project)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/src/a.py", files[0].Path)
	assert.Equal(t, 2, files[0].Blocks)
	assert.Equal(t, "/src/b.go", files[1].Path)
	assert.Equal(t, 0, files[1].Blocks)
}

package walker_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lodestone/internal/walker"
)

var exts = map[string]bool{"py": true, "go": true}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, root string, skip []string) []string {
	t.Helper()
	files, errs := walker.Walk(root, exts, skip)
	var paths []string
	for fi := range files {
		paths = append(paths, fi.Path)
	}
	require.NoError(t, <-errs)
	return paths
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWalkFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "main.py", "print('hello world')")
	write(t, dir, "main.go", "package main\nfunc main() {}")
	write(t, dir, "README.md", "# not source")

	paths := collect(t, dir, nil)
	assert.Len(t, paths, 2)
	assert.True(t, contains(paths, "main.py"))
	assert.True(t, contains(paths, "main.go"))
}

func TestWalkSkipsHiddenAndPatterns(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "src/app.py", "print('visible source')")
	write(t, dir, ".git/hook.py", "print('hidden dir')")
	write(t, dir, ".secret.py", "print('hidden file')")
	write(t, dir, "node_modules/lib/x.py", "print('vendored')")
	write(t, dir, "trace.min.js", "var x=1;")

	paths := collect(t, dir, []string{"node_modules", "*.min.js"})
	assert.Len(t, paths, 1)
	assert.True(t, contains(paths, filepath.Join("src", "app.py")))
}

func TestWalkSkipsEmptyAndOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "empty.py", "")
	write(t, dir, "huge.py", strings.Repeat("# padding line\n", 1<<17)) // ~2 MB
	write(t, dir, "normal.py", "print('just right')")

	paths := collect(t, dir, nil)
	assert.Len(t, paths, 1)
	assert.True(t, contains(paths, "normal.py"))
}

func TestWalkSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "real.py", "print('real file')")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "link.py")))

	paths := collect(t, dir, nil)
	assert.Len(t, paths, 1)
	assert.True(t, contains(paths, "real.py"))
}

func TestMatches(t *testing.T) {
	patterns := []string{"node_modules", "build", "*.tmp"}

	assert.True(t, walker.Matches("node_modules", "node_modules", patterns))
	assert.True(t, walker.Matches("x.tmp", "src/x.tmp", patterns))
	assert.True(t, walker.Matches("deep", "build/deep", patterns))
	assert.False(t, walker.Matches("app.py", "src/app.py", patterns))
}

// Package walker discovers indexable source files under a directory tree.
package walker

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path string
	Size int64
}

// maxFileSize is the largest file we'll consider (1 MB).
const maxFileSize = 1 << 20

// Walk traverses the directory tree rooted at root and sends discovered
// source files on the returned channel. It only emits files whose extension
// is in allowedExts, and skips hidden entries and skip-pattern matches.
// Patterns match exact names, relative-path prefixes, or globs.
func Walk(root string, allowedExts map[string]bool, skip []string) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries, keep walking
			}

			name := d.Name()
			rel, _ := filepath.Rel(absRoot, path)
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path == absRoot {
					return nil
				}
				if strings.HasPrefix(name, ".") || Matches(name, rel, skip) {
					return filepath.SkipDir
				}
				return nil
			}

			// Skip symlinks, hidden files, and skip-pattern matches.
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if strings.HasPrefix(name, ".") || Matches(name, rel, skip) {
				return nil
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if !allowedExts[ext] {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() > maxFileSize || info.Size() == 0 {
				return nil
			}

			files <- FileInfo{Path: path, Size: info.Size()}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Matches checks a name and relative path against skip patterns: exact name,
// path prefix, or glob.
func Matches(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if strings.HasPrefix(relPath, p) {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}

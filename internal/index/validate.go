package index

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Report summarizes index-versus-disk consistency.
type Report struct {
	TotalFiles     int
	TotalBlocks    int
	OrphanedBlocks int
	MissingFiles   []string
	Errors         []string
}

// Validate checks the index against the filesystem: files that disappeared
// from disk are reported, as are blocks whose owning file row is gone
// (impossible under foreign-key cascade, checked anyway).
func (idx *Indexer) Validate() (*Report, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	report := &Report{}

	files, err := idx.store.ListFiles(idx.projectID)
	if err != nil {
		return nil, err
	}
	report.TotalFiles = len(files)

	for _, f := range files {
		if _, err := os.Stat(f.Path); os.IsNotExist(err) {
			report.MissingFiles = append(report.MissingFiles, f.Path)
		} else if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("stat %s: %v", f.Path, err))
		}
	}

	if report.TotalBlocks, err = idx.store.CountBlocks(idx.projectID); err != nil {
		return nil, err
	}
	if report.OrphanedBlocks, err = idx.store.CountOrphanBlocks(); err != nil {
		return nil, err
	}
	return report, nil
}

// Repair removes index entries for files that no longer exist on disk and
// returns how many were dropped.
func (idx *Indexer) Repair() (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	files, err := idx.store.ListFiles(idx.projectID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
			continue
		}
		if err := idx.store.RemoveFile(idx.projectID, f.Path); err != nil {
			idx.logger.Warn("repair: remove failed",
				zap.String("path", f.Path), zap.Error(err))
			continue
		}
		delete(idx.mtimes, f.Path)
		removed++
	}
	return removed, nil
}

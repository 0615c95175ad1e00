// Package tui renders interactive progress for long-running indexing runs.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"lodestone/internal/index"
)

// IndexFunc performs the actual indexing run. It must honor ctx cancellation;
// the progress callback is safe to call from the indexing goroutine.
type IndexFunc func(ctx context.Context, onProgress index.ProgressFunc) (*index.Stats, error)

type progressMsg struct {
	indexed int
	seen    int
}

type doneMsg struct {
	stats *index.Stats
	err   error
}

type indexingModel struct {
	spinner spinner.Model
	root    string
	indexed int
	seen    int
	done    bool
	stats   *index.Stats
	err     error
}

func newIndexingModel(root string) indexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return indexingModel{spinner: sp, root: root}
}

func (m indexingModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case progressMsg:
		m.indexed = msg.indexed
		m.seen = msg.seen
		return m, nil
	case doneMsg:
		m.done = true
		m.stats = msg.stats
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m indexingModel) View() string {
	s := "\n" + titleStyle.Render("  Indexing "+m.root) + "\n\n"

	if m.done {
		if m.err != nil {
			return s + errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n"
		}
		s += successStyle.Render("  ✓ Indexing complete") + "\n\n"
		if m.stats != nil {
			s += fmt.Sprintf("  Files: %d seen, %d indexed, %d skipped, %d failed\n",
				m.stats.FilesSeen, m.stats.FilesIndexed, m.stats.FilesSkipped, m.stats.FilesFailed)
		}
		return s
	}

	s += fmt.Sprintf("  %s %d / %d files indexed\n", m.spinner.View(), m.indexed, m.seen)
	s += "\n" + dimStyle.Render("  This may take a while for large codebases...") + "\n"
	return s
}

// RunIndexing runs fn under a spinner display and returns its result. The
// indexing work happens on a separate goroutine; progress updates are pushed
// into the event loop.
func RunIndexing(ctx context.Context, root string, fn IndexFunc) (*index.Stats, error) {
	model := newIndexingModel(root)
	p := tea.NewProgram(model)

	// Canceled when the program exits, so quitting early stops the indexing
	// goroutine instead of leaving it writing to a store the caller is about
	// to close.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stats, err := fn(runCtx, func(indexed, seen int) {
			p.Send(progressMsg{indexed: indexed, seen: seen})
		})
		p.Send(doneMsg{stats: stats, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(indexingModel)
	if !m.done {
		return nil, errors.New("indexing interrupted")
	}
	return m.stats, m.err
}

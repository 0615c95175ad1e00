package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lodestone/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Index a codebase and keep the index synchronized with file changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		idx := newIndexer(cfg, st, logger)
		ctx := cmd.Context()

		// Full pass first so the watcher only has deltas to handle.
		fmt.Printf("Indexing %s...\n", root)
		stats, err := idx.IndexDirectory(ctx, root, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d files, watching for changes (Ctrl-C to stop)\n", stats.FilesIndexed)

		w, err := watch.New(watch.Config{
			Indexer:      idx,
			Logger:       logger,
			Debounce:     time.Duration(cfg.Watcher.DebounceMS) * time.Millisecond,
			PollInterval: time.Duration(cfg.Watcher.PollMS) * time.Millisecond,
			SkipPatterns: skipPatterns(cfg),
		})
		if err != nil {
			return err
		}
		if err := w.Watch(root); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nStopping watcher")
			w.Stop()
			<-w.Done()
			return nil
		case <-w.Done():
			return w.Err()
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"lodestone/internal/index"
	"lodestone/internal/tui"
)

var (
	flagIncremental bool
	flagPlain       bool
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a codebase for search",
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

		run := func(ctx context.Context, onProgress index.ProgressFunc) (*index.Stats, error) {
			if flagIncremental {
				return idx.IndexIncremental(ctx, root, onProgress)
			}
			return idx.IndexDirectory(ctx, root, onProgress)
		}

		start := time.Now()
		var stats *index.Stats
		if flagPlain {
			stats, err = run(cmd.Context(), nil)
		} else {
			stats, err = tui.RunIndexing(cmd.Context(), root, run)
		}
		if err != nil {
			return err
		}
		if stats == nil {
			return nil
		}

		fmt.Printf("Done in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Files:  %d seen, %d indexed, %d skipped, %d failed\n",
			stats.FilesSeen, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)
		blocks, countErr := st.CountBlocks(cfg.ProjectID)
		if countErr == nil {
			fmt.Printf("  Blocks: %d\n", blocks)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagIncremental, "incremental", false, "skip files whose modification time has not changed")
	indexCmd.Flags().BoolVar(&flagPlain, "plain", false, "plain output without the progress display")
	rootCmd.AddCommand(indexCmd)
}

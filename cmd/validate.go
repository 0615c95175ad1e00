package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagRepair bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the index against the filesystem",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := openStoreReadOnly(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		idx := newIndexer(cfg, st, logger)

		report, err := idx.Validate()
		if err != nil {
			return err
		}

		fmt.Printf("Files:           %d\n", report.TotalFiles)
		fmt.Printf("Blocks:          %d\n", report.TotalBlocks)
		fmt.Printf("Orphaned blocks: %d\n", report.OrphanedBlocks)
		fmt.Printf("Missing files:   %d\n", len(report.MissingFiles))
		for _, path := range report.MissingFiles {
			fmt.Printf("  %s\n", path)
		}
		for _, msg := range report.Errors {
			fmt.Printf("  error: %s\n", msg)
		}

		if len(report.MissingFiles) == 0 {
			fmt.Println("Index is consistent with the filesystem.")
			return nil
		}

		if !flagRepair {
			fmt.Println("Run with --repair to remove stale entries.")
			return nil
		}

		removed, err := idx.Repair()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d stale file entries.\n", removed)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&flagRepair, "repair", false, "remove index entries for files missing on disk")
	rootCmd.AddCommand(validateCmd)
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lodestone/internal/search"
)

var (
	flagLimit     int
	flagSemantic  bool
	flagThreshold float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed codebase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStoreReadOnly(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := search.New(st, newEmbedder(cfg))

		limit := flagLimit
		if limit <= 0 {
			limit = cfg.Search.Limit
		}

		var results []search.Result
		if flagSemantic {
			threshold := flagThreshold
			if threshold <= 0 {
				threshold = cfg.Search.Threshold
			}
			results, err = engine.SearchSemanticOnly(cfg.ProjectID, query, threshold, limit)
		} else {
			results, err = engine.Search(cfg.ProjectID, query, limit)
		}
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Printf("No results for %q\n", query)
			return nil
		}

		for i, r := range results {
			name := r.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%2d. %s  %s %s\n", i+1, scoreBar(r.Score), r.BlockType, name)
			fmt.Printf("    %s:%d-%d  score=%.3f\n", r.FilePath, r.StartLine+1, r.EndLine+1, r.Score)
		}
		return nil
	},
}

// scoreBar renders a small relevance gauge for terminal output.
func scoreBar(score float64) string {
	const width = 5
	filled := int(score * width)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func init() {
	searchCmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum results (default from config)")
	searchCmd.Flags().BoolVar(&flagSemantic, "semantic", false, "pure embedding similarity, no keyword matching")
	searchCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "minimum similarity for --semantic (default from config)")
	rootCmd.AddCommand(searchCmd)
}

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"lodestone/internal/index"
	"lodestone/internal/search"
	"lodestone/internal/store"
)

// mcpCacheTTL keeps repeated agent queries cheap without serving stale
// results for long.
const mcpCacheTTL = 30 * time.Second

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing code search and indexing tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
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
	engine := search.New(st, newEmbedder(cfg), search.WithCacheTTL(mcpCacheTTL))

	s := mcpserver.NewMCPServer("lodestone", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodeTool(), makeSearchHandler(cfg.ProjectID, engine))
	s.AddTool(semanticSearchTool(), makeSemanticHandler(cfg.ProjectID, cfg.Search.Threshold, engine))
	s.AddTool(indexDirectoryTool(), makeIndexHandler(idx, engine))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(cfg.ProjectID, st))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool("search_code",
		mcp.WithDescription("Search the indexed codebase using hybrid keyword + embedding similarity. Returns functions, classes, and methods with file paths and line numbers."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 10)"),
		),
	)
}

func semanticSearchTool() mcp.Tool {
	return mcp.NewTool("semantic_search",
		mcp.WithDescription("Search by embedding similarity only, ignoring keyword matches. Finds conceptually related code that shares no words with the query."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language description of the code to find"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 10)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum cosine similarity, 0 to 1 (default 0.5)"),
		),
	)
}

func indexDirectoryTool() mcp.Tool {
	return mcp.NewTool("index_directory",
		mcp.WithDescription("Index or re-index a directory tree. Incremental by default: unchanged files are skipped."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path of the directory to index"),
		),
		mcp.WithBoolean("full",
			mcp.Description("Re-index every file even if unchanged (default false)"),
		),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List all indexed files with their language and block count."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("language",
			mcp.Description("Optional language filter (e.g. 'go', 'python'). Case-insensitive."),
		),
	)
}

// --- Handler factories ---

func makeSearchHandler(projectID string, engine *search.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		limit := req.GetInt("limit", 10)

		results, err := engine.Search(projectID, query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResults(query, results)), nil
	}
}

func makeSemanticHandler(projectID string, defaultThreshold float64, engine *search.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		limit := req.GetInt("limit", 10)
		threshold := req.GetFloat("threshold", defaultThreshold)

		results, err := engine.SearchSemanticOnly(projectID, query, threshold, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("semantic search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResults(query, results)), nil
	}
}

func makeIndexHandler(idx *index.Indexer, engine *search.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		root, err := filepath.Abs(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bad path: %v", err)), nil
		}

		var stats *index.Stats
		if req.GetBool("full", false) {
			stats, err = idx.IndexDirectory(ctx, root, nil)
		} else {
			stats, err = idx.IndexIncremental(ctx, root, nil)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("indexing failed: %v", err)), nil
		}
		engine.InvalidateCache()

		return mcp.NewToolResultText(fmt.Sprintf(
			"Indexed %s: %d files seen, %d indexed, %d skipped, %d failed",
			root, stats.FilesSeen, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)), nil
	}
}

func makeListFilesHandler(projectID string, st store.Store) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		langFilter := strings.ToLower(req.GetString("language", ""))

		files, err := st.ListFiles(projectID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}

		var filtered []store.FileInfo
		for _, f := range files {
			if langFilter == "" || strings.ToLower(f.Language) == langFilter {
				filtered = append(filtered, f)
			}
		}

		var sb strings.Builder
		if langFilter != "" {
			fmt.Fprintf(&sb, "## Indexed files (%d, language: %s)\n\n", len(filtered), langFilter)
		} else {
			fmt.Fprintf(&sb, "## Indexed files (%d)\n\n", len(filtered))
		}
		for _, f := range filtered {
			fmt.Fprintf(&sb, "- **%s** (%s, %d blocks)\n", f.Path, f.Language, f.Blocks)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- Formatting helpers ---

func formatResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d)\n\n", query, len(results))
	for i, r := range results {
		name := r.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, r.FilePath)
		fmt.Fprintf(&sb, "**Kind:** %s  \n**Name:** %s  \n**Lines:** %d to %d (1-based)  \n**Score:** %.3f\n\n",
			r.BlockType, name, r.StartLine+1, r.EndLine+1, r.Score)
	}
	return sb.String()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-fetch/internal/fetch"
	"github.com/pdiddy/paper-fetch/internal/history"
	"github.com/pdiddy/paper-fetch/internal/pipeline"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download <source>",
	Short: "Download PDFs for search results",
	Long: `Download fetches PDFs either for a fresh query (--query) or for a saved
result list (--results). Files land in a per-query directory under the
output dir, named {Year}_{Month}_{Source}_{Author}_{Title}.pdf. Papers
recorded in the download history are skipped.

Downloads are deliberately slow: each one waits a random cooldown drawn
from the configured range before touching the server.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().String("query", "", "search query to download results for")
	downloadCmd.Flags().String("results", "", "JSON results file written by search --output")
	downloadCmd.Flags().String("output-dir", "", "base output directory (default from config)")
	downloadCmd.Flags().String("method", "", "download method for sources with more than one (see 'search')")
	downloadCmd.Flags().Int("max-results", 0, "maximum number of papers when using --query")
	downloadCmd.Flags().Bool("markdown", false, "also convert downloads to Markdown")
	downloadCmd.Flags().Bool("no-history", false, "disable the download-history skip check")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	source := args[0]
	cfg := buildConfig()
	logger := newLogger(cmd)

	fetcher, err := fetch.New(source, cfg, logger)
	if err != nil {
		return err
	}

	query, _ := cmd.Flags().GetString("query")
	resultsPath, _ := cmd.Flags().GetString("results")

	var papers []types.Paper
	var queryDir string
	switch {
	case query != "" && resultsPath != "":
		return fmt.Errorf("--query and --results are mutually exclusive")
	case query != "":
		maxResults, _ := cmd.Flags().GetInt("max-results")
		if maxResults <= 0 {
			maxResults = cfg.SearchLimit
		}
		papers = fetcher.Search(cmd.Context(), query, fetch.SearchOptions{MaxResults: maxResults})
		queryDir = fetcher.QueryDirname(query)
	case resultsPath != "":
		papers, err = fetch.LoadResults(resultsPath)
		if err != nil {
			return err
		}
		queryDir = fetcher.QueryDirname(filepath.Base(resultsPath))
	default:
		return fmt.Errorf("provide --query or --results")
	}

	if len(papers) == 0 {
		fmt.Println("Nothing to download.")
		return nil
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	saveDir := filepath.Join(outputDir, queryDir)

	var hist *history.Store
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory && cfg.HistoryPath != "" {
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	method, _ := cmd.Flags().GetString("method")
	markdown, _ := cmd.Flags().GetBool("markdown")
	opts := fetch.DownloadOptions{
		Method:            method,
		ConvertToMarkdown: markdown || cfg.ConvertToMarkdown,
		ConvertToPDF:      cfg.ThreeGPP.ConvertToPDF,
	}

	p := pipeline.New(fetcher, hist, logger)

	shortest, longest := p.EstimateWait(len(papers))
	fmt.Printf("Downloading %d paper(s) to %s (estimated wait %s to %s)\n",
		len(papers), saveDir, shortest, longest)

	// Long cooldowns get a countdown on stderr.
	fetcher.Limiter().SetProgressObserver(func(msg string) {
		if msg == "" {
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		}
		fmt.Fprintf(os.Stderr, "\r%s", msg)
	})

	result := p.DownloadBatch(cmd.Context(), papers, saveDir, opts, os.Stdout)

	fmt.Printf("Done: %d downloaded, %d skipped, %d failed\n",
		result.Downloaded, result.Skipped, result.Failed)
	if result.HasFailures() {
		return fmt.Errorf("%d download(s) failed", result.Failed)
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-fetch/internal/fetch"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <source> <query>",
	Short: "Search a source for papers",
	Long: `Search queries one source and prints the results. For arXiv, IEEE, and
USPTO the query is free text; for 3GPP it is a directory-listing URL on an
FTP mirror. Results can be saved as JSON with --output and fed into the
download command.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("max-results", 0, "maximum number of results (default from config)")
	searchCmd.Flags().String("sort-by", "relevance", "sort order: relevance or date")
	searchCmd.Flags().String("sort-order", "desc", "sort direction: asc or desc")
	searchCmd.Flags().Int("start-year", 0, "earliest publication year")
	searchCmd.Flags().Int("end-year", 0, "latest publication year")
	searchCmd.Flags().Bool("open-access", false, "restrict IEEE results to open-access documents")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
	searchCmd.Flags().String("output", "", "save results to a JSON file")

	rootCmd.AddCommand(searchCmd)
}

func searchOptions(cmd *cobra.Command, cfg types.Config) fetch.SearchOptions {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	if maxResults <= 0 {
		maxResults = cfg.SearchLimit
	}
	sortBy, _ := cmd.Flags().GetString("sort-by")
	sortOrder, _ := cmd.Flags().GetString("sort-order")
	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")
	openAccess, _ := cmd.Flags().GetBool("open-access")

	return fetch.SearchOptions{
		MaxResults:     maxResults,
		SortBy:         sortBy,
		SortOrder:      sortOrder,
		StartYear:      startYear,
		EndYear:        endYear,
		OpenAccessOnly: openAccess,
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	source, query := args[0], args[1]
	cfg := buildConfig()
	logger := newLogger(cmd)

	fetcher, err := fetch.New(source, cfg, logger)
	if err != nil {
		return err
	}

	papers := fetcher.Search(cmd.Context(), query, searchOptions(cmd, cfg))

	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		if err := fetch.SaveResults(papers, outPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d result(s) to %s\n", len(papers), outPath)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(papers, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(papers) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, p := range papers {
		printPaper(i+1, p)
	}
	return nil
}

func printPaper(n int, p types.Paper) {
	status := "restricted"
	if p.IsDownloadable {
		status = "downloadable"
	}
	fmt.Printf("%d. [%s] %s\n", n, p.Source, p.Title)
	if len(p.Authors) > 0 {
		fmt.Printf("   %s\n", strings.Join(p.Authors, ", "))
	}
	if !p.PublishedDate.IsZero() {
		fmt.Printf("   published %s\n", p.PublishedDate)
	}
	fmt.Printf("   id=%s %s\n", p.ID, status)
	if p.URL != "" {
		fmt.Printf("   %s\n", p.URL)
	}
}

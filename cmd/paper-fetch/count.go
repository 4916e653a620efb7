// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-fetch/internal/fetch"
)

var countCmd = &cobra.Command{
	Use:   "count <source> <query>",
	Short: "Report the total number of results for a query",
	Long: `Count asks a source for its total hit count without fetching the result
pages. Sources that cannot report a count print "unknown".`,
	Args: cobra.ExactArgs(2),
	RunE: runCount,
}

func init() {
	countCmd.Flags().Int("start-year", 0, "earliest publication year")
	countCmd.Flags().Int("end-year", 0, "latest publication year")

	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	source, query := args[0], args[1]
	cfg := buildConfig()
	logger := newLogger(cmd)

	fetcher, err := fetch.New(source, cfg, logger)
	if err != nil {
		return err
	}

	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")
	total := fetcher.TotalResults(cmd.Context(), query, fetch.SearchOptions{
		StartYear: startYear,
		EndYear:   endYear,
	})

	if total < 0 {
		fmt.Println("unknown")
		return nil
	}
	fmt.Println(total)
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pdiddy/paper-fetch/pkg/types"
)

// SaveResults writes papers to path as an indented JSON array. The layout
// mirrors the Paper serialization contract, so a saved list round-trips
// through LoadResults with day-precision dates.
func SaveResults(papers []types.Paper, path string) error {
	data, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results to %s: %w", path, err)
	}
	return nil
}

// LoadResults reads a persisted result list written by SaveResults.
func LoadResults(path string) ([]types.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results from %s: %w", path, err)
	}
	var papers []types.Paper
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("parsing results from %s: %w", path, err)
	}
	return papers, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-fetch/pkg/types"
)

func TestSaveAndLoadResults(t *testing.T) {
	papers := []types.Paper{
		{
			Source:         types.SourceArxiv,
			ID:             "2301.00001v2",
			Title:          "Sample Paper",
			Authors:        []string{"Alice Smith", "Bob Jones"},
			Abstract:       "An abstract.",
			URL:            "http://arxiv.org/abs/2301.00001v2",
			PDFURL:         "http://arxiv.org/pdf/2301.00001v2",
			PublishedDate:  types.NewDate(2023, time.January, 5),
			IsDownloadable: true,
		},
		{
			// Dateless paper round-trips with a null date.
			Source: types.SourceThreeGPP,
			ID:     "R1-2500001.zip",
			Title:  "R1-2500001.zip",
		},
	}

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, SaveResults(papers, path))

	loaded, err := LoadResults(path)
	require.NoError(t, err)
	assert.Equal(t, papers, loaded)
}

func TestSaveResultsUsesStableKeys(t *testing.T) {
	papers := []types.Paper{{
		Source:         types.SourceIEEE,
		ID:             "1000001",
		Title:          "T",
		PublishedDate:  types.NewDate(2021, time.March, 2),
		IsDownloadable: true,
	}}

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, SaveResults(papers, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"source"`, `"id"`, `"title"`, `"authors"`, `"abstract"`, `"url"`, `"pdf_url"`, `"published_date"`, `"is_downloadable"`} {
		assert.Contains(t, string(data), key)
	}
	assert.Contains(t, string(data), `"2021-03-02"`)
}

func TestLoadResultsMissingFile(t *testing.T) {
	_, err := LoadResults(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-fetch/pkg/types"
)

const usptoTestResponse = `{
  "patents": [
    {
      "patent_number": "11234567",
      "patent_title": "Adaptive Beam Management",
      "patent_abstract": "A method for beam management.",
      "patent_date": "2022-06-14",
      "patent_kind": "B2",
      "inventors": [
        {"inventor_name_first": "Maria", "inventor_name_last": "Garcia"},
        {"inventor_name_first": "", "inventor_name_last": "Chen"}
      ]
    },
    {
      "patent_number": "10999999",
      "patent_title": "",
      "patent_date": "not-a-date",
      "inventors": []
    }
  ]
}`

func newTestUSPTO(t *testing.T, handler http.Handler, apiKey string) *usptoFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	original := usptoAPIBase
	usptoAPIBase = server.URL
	t.Cleanup(func() { usptoAPIBase = original })

	cfg := testConfig()
	cfg.Keys.USPTO = apiKey
	return newUSPTO(cfg, zerolog.Nop())
}

func TestUSPTOSearch(t *testing.T) {
	var gotKey string
	var body map[string]json.RawMessage
	f := newTestUSPTO(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(usptoTestResponse))
	}), "secret-key")

	papers := f.Search(context.Background(), "beam management", SearchOptions{MaxResults: 5})
	require.Len(t, papers, 2)
	assert.Equal(t, "secret-key", gotKey)

	// Title-or-abstract phrase query.
	assert.Contains(t, string(body["q"]), "_or")
	assert.Contains(t, string(body["q"]), "_text_phrase")
	assert.Contains(t, string(body["q"]), "beam management")
	assert.Contains(t, string(body["o"]), `"per_page":5`)
	_, hasSort := body["s"]
	assert.False(t, hasSort)

	first := papers[0]
	assert.Equal(t, types.SourceUSPTO, first.Source)
	assert.Equal(t, "11234567", first.ID)
	assert.Equal(t, "Adaptive Beam Management", first.Title)
	assert.Equal(t, []string{"Maria Garcia", "Chen"}, first.Authors)
	assert.Equal(t, googlePatentsURL+"/patent/US11234567B2/en", first.URL)
	assert.Equal(t, types.NewDate(2022, time.June, 14), first.PublishedDate)
	assert.True(t, first.IsDownloadable)

	second := papers[1]
	assert.Equal(t, "No Title", second.Title)
	assert.True(t, second.PublishedDate.IsZero())
	assert.Equal(t, googlePatentsURL+"/patent/US10999999/en", second.URL)
}

func TestUSPTOSearchDateSortAndYearBounds(t *testing.T) {
	var body map[string]json.RawMessage
	f := newTestUSPTO(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"patents": []}`))
	}), "")

	f.Search(context.Background(), "q", SearchOptions{SortBy: "date", SortOrder: "asc", StartYear: 2015, EndYear: 2020})

	assert.Contains(t, string(body["s"]), `"patent_date":"asc"`)
	assert.Contains(t, string(body["q"]), "_and")
	assert.Contains(t, string(body["q"]), "2015-01-01")
	assert.Contains(t, string(body["q"]), "2020-12-31")
}

func TestUSPTOSearchAuthFailure(t *testing.T) {
	f := newTestUSPTO(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}), "")

	assert.Empty(t, f.Search(context.Background(), "q", SearchOptions{}))
}

func TestUSPTOTotalResults(t *testing.T) {
	f := newUSPTO(testConfig(), zerolog.Nop())
	assert.Equal(t, -1, f.TotalResults(context.Background(), "q", SearchOptions{}))
}

func TestUSPTOCheckDownloadable(t *testing.T) {
	f := newUSPTO(testConfig(), zerolog.Nop())
	assert.True(t, f.CheckDownloadable(types.Paper{ID: "11234567"}, DefaultMethod))
	assert.False(t, f.CheckDownloadable(types.Paper{}, DefaultMethod))
}

func TestUSPTODownloadDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/11234567", r.URL.Path)
		w.Write([]byte("%PDF-1.4 uspto"))
	}))
	defer server.Close()

	original := usptoDirectBase
	usptoDirectBase = server.URL
	defer func() { usptoDirectBase = original }()

	f := newUSPTO(testConfig(), zerolog.Nop())
	paper := types.Paper{
		Source:        types.SourceUSPTO,
		ID:            "11234567",
		Title:         "Adaptive Beam Management",
		Authors:       []string{"Maria Garcia"},
		PublishedDate: types.NewDate(2022, time.June, 14),
	}

	saveDir := t.TempDir()
	path, err := f.DownloadPDF(context.Background(), paper, saveDir, DownloadOptions{Method: usptoMethodDirect})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "2022_06_uspto_Garcia_Adaptive_Beam_Management.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 uspto", string(data))
}

func TestUSPTODownloadGooglePatents(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patent/US11234567B2/en":
			page := fmt.Sprintf(`<html><body>
				<a href="/other">elsewhere</a>
				<a href="%s/patentimages.storage.googleapis.com/US11234567.pdf">Download PDF</a>
			</body></html>`, server.URL)
			w.Write([]byte(page))
		default:
			w.Write([]byte("%PDF-1.4 google"))
		}
	}))
	defer server.Close()

	f := newUSPTO(testConfig(), zerolog.Nop())
	paper := types.Paper{
		Source:        types.SourceUSPTO,
		ID:            "11234567",
		Title:         "Adaptive Beam Management",
		Authors:       []string{"Maria Garcia"},
		URL:           server.URL + "/patent/US11234567B2/en",
		PublishedDate: types.NewDate(2022, time.June, 14),
	}

	saveDir := t.TempDir()
	path, err := f.DownloadPDF(context.Background(), paper, saveDir, DownloadOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 google", string(data))
}

func TestUSPTODownloadGooglePatentsNoLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/no-pdf-here">nothing</a></body></html>`))
	}))
	defer server.Close()

	f := newUSPTO(testConfig(), zerolog.Nop())
	paper := types.Paper{ID: "11234567", Title: "X", URL: server.URL + "/patent/US11234567/en"}

	_, err := f.DownloadPDF(context.Background(), paper, t.TempDir(), DownloadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PDF link")
}

func TestUSPTODownloadMissingID(t *testing.T) {
	f := newUSPTO(testConfig(), zerolog.Nop())
	_, err := f.DownloadPDF(context.Background(), types.Paper{Source: types.SourceUSPTO}, t.TempDir(), DownloadOptions{})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestUSPTOQuery(t *testing.T) {
	plain, err := json.Marshal(usptoQuery("solar cell", 0, 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"_or": [
		{"_text_phrase": {"patent_title": "solar cell"}},
		{"_text_phrase": {"patent_abstract": "solar cell"}}
	]}`, string(plain))

	bounded, err := json.Marshal(usptoQuery("solar cell", 2010, 0))
	require.NoError(t, err)
	assert.Contains(t, string(bounded), "_and")
	assert.Contains(t, string(bounded), `"_gte":{"patent_date":"2010-01-01"}`)
	assert.NotContains(t, string(bounded), "_lte")
}

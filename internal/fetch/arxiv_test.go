// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
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

const arxivTestFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>1234</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.00001v2</id>
    <title> Sample Paper One </title>
    <summary> An abstract. </summary>
    <published>2023-01-05T12:00:00Z</published>
    <author><name>Alice Smith</name></author>
    <author><name>Bob Jones</name></author>
    <link href="http://arxiv.org/pdf/2301.00001v2" title="pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2301.00002v1</id>
    <title>Sample Paper Two</title>
    <summary>Another abstract.</summary>
    <published>2023-02-10T08:30:00Z</published>
    <author><name>Carol White</name></author>
  </entry>
</feed>`

func newTestArxiv(t *testing.T, handler http.Handler) *arxivFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	original := arxivAPIBase
	arxivAPIBase = server.URL
	t.Cleanup(func() { arxivAPIBase = original })

	return newArxiv(testConfig(), &stubConverter{}, zerolog.Nop())
}

func TestArxivSearch(t *testing.T) {
	var gotQuery string
	f := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Write([]byte(arxivTestFeed))
	}))

	papers := f.Search(context.Background(), "quantum error correction", SearchOptions{MaxResults: 5})
	require.Len(t, papers, 2)
	assert.Equal(t, "quantum error correction", gotQuery)

	first := papers[0]
	assert.Equal(t, types.SourceArxiv, first.Source)
	assert.Equal(t, "2301.00001v2", first.ID)
	assert.Equal(t, "Sample Paper One", first.Title)
	assert.Equal(t, "An abstract.", first.Abstract)
	assert.Equal(t, []string{"Alice Smith", "Bob Jones"}, first.Authors)
	assert.Equal(t, "http://arxiv.org/pdf/2301.00001v2", first.PDFURL)
	assert.Equal(t, types.NewDate(2023, time.January, 5), first.PublishedDate)
	assert.True(t, first.IsDownloadable)

	// No advertised PDF link falls back to the canonical endpoint.
	assert.Equal(t, arxivPDFBase+"2301.00002v1", papers[1].PDFURL)
}

func TestArxivSearchYearBounds(t *testing.T) {
	var gotQuery string
	f := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Write([]byte(arxivTestFeed))
	}))

	f.Search(context.Background(), "ldpc", SearchOptions{StartYear: 2020, EndYear: 2022})
	assert.Equal(t, "ldpc AND submittedDate:[202001010000 TO 202212312359]", gotQuery)
}

func TestArxivSearchAbsorbsServerError(t *testing.T) {
	f := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	papers := f.Search(context.Background(), "anything", SearchOptions{})
	assert.Empty(t, papers)
}

func TestArxivTotalResults(t *testing.T) {
	var gotMax string
	f := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("max_results")
		w.Write([]byte(arxivTestFeed))
	}))

	total := f.TotalResults(context.Background(), "quantum", SearchOptions{})
	assert.Equal(t, 1234, total)
	assert.Equal(t, "1", gotMax)
}

func TestArxivTotalResultsFailure(t *testing.T) {
	f := newTestArxiv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	assert.Equal(t, -1, f.TotalResults(context.Background(), "quantum", SearchOptions{}))
}

func TestArxivDownloadPDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer server.Close()

	f := newArxiv(testConfig(), &stubConverter{}, zerolog.Nop())
	paper := types.Paper{
		Source:        types.SourceArxiv,
		ID:            "2301.00001v2",
		Title:         "Sample Paper One",
		Authors:       []string{"Alice Smith"},
		PDFURL:        server.URL + "/pdf/2301.00001v2",
		PublishedDate: types.NewDate(2023, time.January, 5),
	}

	saveDir := t.TempDir()
	path, err := f.DownloadPDF(context.Background(), paper, saveDir, DownloadOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "2023_01_arxiv_Smith_Sample_Paper_One.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
}

func TestArxivDownloadPDFMissingID(t *testing.T) {
	f := newArxiv(testConfig(), &stubConverter{}, zerolog.Nop())
	_, err := f.DownloadPDF(context.Background(), types.Paper{Source: types.SourceArxiv}, t.TempDir(), DownloadOptions{})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestArxivQueryHelpers(t *testing.T) {
	assert.Equal(t, "q", arxivQueryWithYears("q", 0, 0))
	assert.Equal(t, "q AND submittedDate:[201501010000 TO 209912312359]", arxivQueryWithYears("q", 2015, 0))
	assert.Equal(t, "q AND submittedDate:[190001010000 TO 201812312359]", arxivQueryWithYears("q", 0, 2018))

	assert.Equal(t, "submittedDate", arxivSortBy("date"))
	assert.Equal(t, "relevance", arxivSortBy("relevance"))
	assert.Equal(t, "relevance", arxivSortBy(""))

	assert.Equal(t, "ascending", arxivSortOrder("asc"))
	assert.Equal(t, "descending", arxivSortOrder("desc"))
}

func TestArxivEntryID(t *testing.T) {
	assert.Equal(t, "2301.00001v2", arxivEntryID("http://arxiv.org/abs/2301.00001v2"))
	assert.Equal(t, "", arxivEntryID("http://arxiv.org/abs/"))
	assert.Equal(t, "", arxivEntryID("no-slash"))
}

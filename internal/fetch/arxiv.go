// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-fetch/internal/convert"
	"github.com/pdiddy/paper-fetch/internal/httputil"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// arxivAPIBase is the arXiv Atom search endpoint. Declared as a var so
// tests can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// arxivPDFBase serves paper PDFs directly.
var arxivPDFBase = "https://arxiv.org/pdf/"

// arxivFetcher queries the public arXiv Atom API. Every arXiv paper is
// open by construction, so results always classify as downloadable.
type arxivFetcher struct {
	base
	conv convert.Converter
}

func newArxiv(cfg types.Config, conv convert.Converter, log zerolog.Logger) *arxivFetcher {
	return &arxivFetcher{
		base: newBase(cfg, cfg.Rate, log),
		conv: conv,
	}
}

func (f *arxivFetcher) Source() string { return types.SourceArxiv }

func (f *arxivFetcher) CheckDownloadable(paper types.Paper, method string) bool {
	return paper.IsDownloadable
}

// Search queries the Atom API, rate-limited, and returns results in API
// order. Request-level failures are logged and yield an empty slice.
func (f *arxivFetcher) Search(ctx context.Context, query string, opts SearchOptions) []types.Paper {
	f.limiter.WaitBeforeSearch()

	feed, err := f.queryFeed(ctx, query, opts, maxOrDefault(opts.MaxResults, 10))
	if err != nil {
		f.logger.Error().Err(err).Str("query", query).Msg("arXiv search failed")
		return nil
	}

	papers := make([]types.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		id := arxivEntryID(entry.ID)
		if id == "" {
			f.logger.Warn().Str("entry", entry.ID).Msg("skipping arXiv entry without an ID")
			continue
		}

		paper := types.Paper{
			Source:         types.SourceArxiv,
			ID:             id,
			Title:          strings.TrimSpace(entry.Title),
			Abstract:       strings.TrimSpace(entry.Summary),
			URL:            entry.ID,
			PDFURL:         entry.pdfLink(id),
			IsDownloadable: true,
		}
		for _, a := range entry.Authors {
			paper.Authors = append(paper.Authors, strings.TrimSpace(a.Name))
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			paper.PublishedDate = types.DateOf(t)
		}

		papers = append(papers, paper)
	}
	return papers
}

// TotalResults issues a max_results=1 query and reads the opensearch
// total, returning -1 on any network or parse failure.
func (f *arxivFetcher) TotalResults(ctx context.Context, query string, opts SearchOptions) int {
	f.limiter.WaitBeforeSearch()

	feed, err := f.queryFeed(ctx, query, opts, 1)
	if err != nil {
		f.logger.Error().Err(err).Str("query", query).Msg("arXiv total-results query failed")
		return -1
	}
	if feed.TotalResults == nil {
		return -1
	}
	return *feed.TotalResults
}

// DownloadPDF streams the paper's PDF into saveDir under the shared
// filename convention.
func (f *arxivFetcher) DownloadPDF(ctx context.Context, paper types.Paper, saveDir string, opts DownloadOptions) (string, error) {
	pdfURL := paper.PDFURL
	if pdfURL == "" {
		if paper.ID == "" {
			return "", ErrMissingID
		}
		pdfURL = arxivPDFBase + paper.ID
	}

	f.limiter.WaitBeforeDownload()

	if err := ensureDir(saveDir); err != nil {
		return "", err
	}

	destPath := filepath.Join(saveDir, GenerateFilename(paper.Title, paper.Authors, paper.PublishedDate, types.SourceArxiv))
	if err := f.client.fetchToFile(ctx, pdfURL, destPath, f.userAgent, nil); err != nil {
		return "", fmt.Errorf("downloading %s: %w", paper.ID, err)
	}

	if opts.ConvertToMarkdown {
		f.conv.ToMarkdown(destPath, saveDir)
	}
	return destPath, nil
}

// queryFeed performs one Atom API request and decodes the feed.
func (f *arxivFetcher) queryFeed(ctx context.Context, query string, opts SearchOptions, maxResults int) (*arxivFeed, error) {
	params := url.Values{
		"search_query": {arxivQueryWithYears(query, opts.StartYear, opts.EndYear)},
		"start":        {"0"},
		"max_results":  {fmt.Sprintf("%d", maxResults)},
		"sortBy":       {arxivSortBy(opts.SortBy)},
		"sortOrder":    {arxivSortOrder(opts.SortOrder)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := httputil.DoWithRetry(ctx, f.client.api, req, 0, f.logger)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return &feed, nil
}

// arxivQueryWithYears appends the submittedDate clause when a year bound is
// set, widening the missing side to 1900/2099.
func arxivQueryWithYears(query string, startYear, endYear int) string {
	if startYear == 0 && endYear == 0 {
		return query
	}
	start := "190001010000"
	if startYear != 0 {
		start = fmt.Sprintf("%d01010000", startYear)
	}
	end := "209912312359"
	if endYear != 0 {
		end = fmt.Sprintf("%d12312359", endYear)
	}
	return fmt.Sprintf("%s AND submittedDate:[%s TO %s]", query, start, end)
}

func arxivSortBy(sortBy string) string {
	if sortBy == "date" {
		return "submittedDate"
	}
	return "relevance"
}

func arxivSortOrder(sortOrder string) string {
	if sortOrder == "asc" {
		return "ascending"
	}
	return "descending"
}

// arxivEntryID extracts the source-native ID: the last path segment of the
// entry URL (version suffix retained).
func arxivEntryID(entryURL string) string {
	idx := strings.LastIndex(entryURL, "/")
	if idx < 0 || idx == len(entryURL)-1 {
		return ""
	}
	return entryURL[idx+1:]
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	TotalResults *int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	Entries      []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
}

// pdfLink returns the entry's advertised PDF link, falling back to the
// canonical PDF endpoint for the ID.
func (e arxivEntry) pdfLink(id string) string {
	for _, l := range e.Links {
		if l.Title == "pdf" && l.Href != "" {
			return l.Href
		}
	}
	return arxivPDFBase + id
}

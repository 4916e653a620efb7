// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-fetch/internal/httputil"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// Endpoint vars so tests can substitute httptest servers.
var (
	usptoAPIBase     = "https://search.patentsview.org/api/v1/patent/query/"
	usptoDirectBase  = "https://image-ppubs.uspto.gov/dirsearch-public/print/downloadPdf"
	googlePatentsURL = "https://patents.google.com"
)

// usptoUserAgent is a browser User-Agent for the download hosts, which
// reject bare library clients.
const usptoUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Download methods: Google Patents scrapes the patent page for the hosted
// PDF; USPTO Direct hits the image server keyed by patent number.
const (
	usptoMethodGoogle = "Google Patents"
	usptoMethodDirect = "USPTO Direct"
)

// usptoFetcher searches granted US patents through the PatentsView API.
type usptoFetcher struct {
	base
	apiKey string
}

func newUSPTO(cfg types.Config, log zerolog.Logger) *usptoFetcher {
	return &usptoFetcher{
		base:   newBase(cfg, cfg.Rate, log),
		apiKey: cfg.Keys.USPTO,
	}
}

func (f *usptoFetcher) Source() string { return types.SourceUSPTO }

func (f *usptoFetcher) DownloadMethods() []string {
	return []string{usptoMethodGoogle, usptoMethodDirect}
}

// CheckDownloadable only needs a patent number; both methods derive their
// URL from it.
func (f *usptoFetcher) CheckDownloadable(paper types.Paper, method string) bool {
	return paper.ID != ""
}

// usptoQuery builds the PatentsView query object: a phrase match against
// title or abstract, optionally wrapped with patent_date bounds.
func usptoQuery(query string, startYear, endYear int) map[string]any {
	q := map[string]any{
		"_or": []any{
			map[string]any{"_text_phrase": map[string]string{"patent_title": query}},
			map[string]any{"_text_phrase": map[string]string{"patent_abstract": query}},
		},
	}

	if startYear == 0 && endYear == 0 {
		return q
	}
	clauses := []any{q}
	if startYear > 0 {
		clauses = append(clauses, map[string]any{
			"_gte": map[string]string{"patent_date": fmt.Sprintf("%d-01-01", startYear)},
		})
	}
	if endYear > 0 {
		clauses = append(clauses, map[string]any{
			"_lte": map[string]string{"patent_date": fmt.Sprintf("%d-12-31", endYear)},
		})
	}
	return map[string]any{"_and": clauses}
}

type usptoSearchResponse struct {
	Patents []usptoPatent `json:"patents"`
}

type usptoPatent struct {
	PatentNumber   string          `json:"patent_number"`
	PatentTitle    string          `json:"patent_title"`
	PatentAbstract string          `json:"patent_abstract"`
	PatentDate     string          `json:"patent_date"`
	PatentKind     string          `json:"patent_kind"`
	Inventors      []usptoInventor `json:"inventors"`
}

type usptoInventor struct {
	NameFirst string `json:"inventor_name_first"`
	NameLast  string `json:"inventor_name_last"`
}

// Search POSTs a PatentsView query. Relevance ordering is the API default;
// only date sorting is expressed explicitly.
func (f *usptoFetcher) Search(ctx context.Context, query string, opts SearchOptions) []types.Paper {
	f.limiter.WaitBeforeSearch()

	body := map[string]any{
		"q": usptoQuery(query, opts.StartYear, opts.EndYear),
		"f": []string{
			"patent_number", "patent_title", "patent_abstract",
			"patent_date", "inventors", "patent_kind",
		},
		"o": map[string]any{"per_page": maxOrDefault(opts.MaxResults, 10)},
	}
	if opts.SortBy == "date" {
		direction := "desc"
		if opts.SortOrder == "asc" {
			direction = "asc"
		}
		body["s"] = []any{map[string]string{"patent_date": direction}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		f.logger.Error().Err(err).Msg("encoding PatentsView query")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, usptoAPIBase, bytes.NewReader(payload))
	if err != nil {
		f.logger.Error().Err(err).Msg("creating PatentsView request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-Api-Key", f.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, f.client.api, req, 0, f.logger)
	if err != nil {
		f.logger.Error().Err(err).Str("query", query).Msg("PatentsView query failed")
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		f.logger.Error().Int("status", resp.StatusCode).
			Msg("PatentsView authentication failed, set api_keys.uspto in the config (see https://patentsview.org/apis/purpose)")
		return nil
	default:
		f.logger.Error().Int("status", resp.StatusCode).Str("query", query).
			Msg("PatentsView returned non-OK status")
		return nil
	}

	var data usptoSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		f.logger.Error().Err(err).Msg("decoding PatentsView response")
		return nil
	}

	papers := make([]types.Paper, 0, len(data.Patents))
	for _, p := range data.Patents {
		papers = append(papers, f.patentToPaper(p))
	}
	return papers
}

func (f *usptoFetcher) patentToPaper(p usptoPatent) types.Paper {
	var authors []string
	for _, inv := range p.Inventors {
		name := strings.TrimSpace(inv.NameFirst + " " + inv.NameLast)
		if name != "" {
			authors = append(authors, name)
		}
	}

	var published types.Date
	if p.PatentDate != "" {
		t, err := time.Parse("2006-01-02", p.PatentDate)
		if err != nil {
			f.logger.Warn().Str("patent", p.PatentNumber).Str("date", p.PatentDate).
				Msg("unparsable patent date")
		} else {
			published = types.DateOf(t)
		}
	}

	title := p.PatentTitle
	if title == "" {
		title = "No Title"
	}

	// Google Patents resolves US{number}{kind}; a missing kind code still
	// redirects correctly from US{number}.
	return types.Paper{
		Source:         types.SourceUSPTO,
		ID:             p.PatentNumber,
		Title:          title,
		Authors:        authors,
		Abstract:       p.PatentAbstract,
		URL:            fmt.Sprintf("%s/patent/US%s%s/en", googlePatentsURL, p.PatentNumber, p.PatentKind),
		PublishedDate:  published,
		IsDownloadable: true,
	}
}

// TotalResults is not exposed by this adapter; PatentsView result counts
// are paging metadata we do not rely on.
func (f *usptoFetcher) TotalResults(ctx context.Context, query string, opts SearchOptions) int {
	f.limiter.WaitBeforeSearch()
	return -1
}

// DownloadPDF fetches the patent PDF using the selected method. The
// default is Google Patents; "USPTO Direct" skips the scrape and goes
// straight to the image server.
func (f *usptoFetcher) DownloadPDF(ctx context.Context, paper types.Paper, saveDir string, opts DownloadOptions) (string, error) {
	if paper.ID == "" {
		return "", ErrMissingID
	}

	f.limiter.WaitBeforeDownload()

	if err := ensureDir(saveDir); err != nil {
		return "", err
	}
	destPath := filepath.Join(saveDir, GenerateFilename(paper.Title, paper.Authors, paper.PublishedDate, types.SourceUSPTO))

	if opts.Method == usptoMethodDirect {
		url := fmt.Sprintf("%s/%s", usptoDirectBase, paper.ID)
		if err := f.client.fetchToFile(ctx, url, destPath, usptoUserAgent, nil); err != nil {
			return "", fmt.Errorf("USPTO direct download: %w", err)
		}
		return destPath, nil
	}

	pdfURL, err := f.findGooglePatentsPDF(ctx, paper.URL)
	if err != nil {
		return "", err
	}
	if err := f.client.fetchToFile(ctx, pdfURL, destPath, usptoUserAgent, nil); err != nil {
		return "", fmt.Errorf("Google Patents download: %w", err)
	}
	return destPath, nil
}

// findGooglePatentsPDF scrapes the patent page for the first link into
// patentimages.storage.googleapis.com, where Google hosts the PDFs.
func (f *usptoFetcher) findGooglePatentsPDF(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", usptoUserAgent)

	resp, err := httputil.DoWithRetry(ctx, f.client.api, req, 0, f.logger)
	if err != nil {
		return "", fmt.Errorf("fetching patent page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("patent page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing patent page: %w", err)
	}

	pdfURL := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if strings.Contains(href, "patentimages.storage.googleapis.com") {
			pdfURL = href
			return false
		}
		return true
	})
	if pdfURL == "" {
		return "", fmt.Errorf("no PDF link found on %s", pageURL)
	}
	return pdfURL, nil
}

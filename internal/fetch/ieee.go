// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-fetch/internal/convert"
	"github.com/pdiddy/paper-fetch/internal/httputil"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// ieeeBaseURL is the IEEE Xplore site root. Declared as a var so tests can
// substitute an httptest server.
var ieeeBaseURL = "https://ieeexplore.ieee.org"

// ieeeUserAgent is a browser User-Agent; the search endpoint rejects
// obvious non-browser clients.
const ieeeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ieeeFetcher drives the undocumented IEEE Xplore search API: a cookie
// priming GET against the site root, then a JSON POST to /rest/search.
type ieeeFetcher struct {
	base
	conv convert.Converter
}

func newIEEE(cfg types.Config, conv convert.Converter, log zerolog.Logger) *ieeeFetcher {
	return &ieeeFetcher{
		base: newBase(cfg, cfg.Rate, log),
		conv: conv,
	}
}

func (f *ieeeFetcher) Source() string { return types.SourceIEEE }

func (f *ieeeFetcher) CheckDownloadable(paper types.Paper, method string) bool {
	return paper.IsDownloadable
}

// ieeeSearchPayload is the /rest/search request body.
type ieeeSearchPayload struct {
	QueryText    string   `json:"queryText"`
	ReturnFacets []string `json:"returnFacets"`
	ReturnType   string   `json:"returnType"`
	RowsPerPage  int      `json:"rowsPerPage"`
	SortType     string   `json:"sortType,omitempty"`
	Ranges       []string `json:"ranges,omitempty"`
	OpenAccess   string   `json:"openAccess,omitempty"`
}

type ieeeSearchResponse struct {
	Records      []ieeeRecord `json:"records"`
	TotalRecords int          `json:"totalRecords"`
}

type ieeeRecord struct {
	ArticleTitle    string          `json:"articleTitle"`
	Authors         []ieeeAuthor    `json:"authors"`
	Abstract        string          `json:"abstract"`
	ArticleNumber   string          `json:"articleNumber"`
	PdfLink         string          `json:"pdfLink"`
	PublicationYear json.RawMessage `json:"publicationYear"`
	AccessType      json.RawMessage `json:"accessType"`
}

type ieeeAuthor struct {
	PreferredName  string `json:"preferredName"`
	NormalizedName string `json:"normalizedName"`
}

// Search POSTs the search payload and maps each record to a Paper.
// Request-level failures are logged and yield an empty slice; malformed
// fields inside a record degrade that record, not the batch.
func (f *ieeeFetcher) Search(ctx context.Context, query string, opts SearchOptions) []types.Paper {
	f.limiter.WaitBeforeSearch()
	f.primeCookies(ctx)

	payload := ieeeSearchPayload{
		QueryText:    query,
		ReturnFacets: []string{"ALL"},
		ReturnType:   "SEARCH",
		RowsPerPage:  maxOrDefault(opts.MaxResults, 10),
		SortType:     ieeeSortType(opts.SortBy, opts.SortOrder),
		Ranges:       ieeeYearRange(opts.StartYear, opts.EndYear),
	}
	if opts.OpenAccessOnly {
		payload.OpenAccess = "true"
	}

	data, err := f.postSearch(ctx, payload)
	if err != nil {
		f.logger.Error().Err(err).Str("query", query).Msg("IEEE search failed")
		return nil
	}

	papers := make([]types.Paper, 0, len(data.Records))
	for _, rec := range data.Records {
		papers = append(papers, f.recordToPaper(rec))
	}
	return papers
}

// TotalResults asks for a single row and reads totalRecords; -1 on failure.
func (f *ieeeFetcher) TotalResults(ctx context.Context, query string, opts SearchOptions) int {
	f.limiter.WaitBeforeSearch()
	f.primeCookies(ctx)

	payload := ieeeSearchPayload{
		QueryText:    query,
		ReturnFacets: []string{"ALL"},
		ReturnType:   "SEARCH",
		RowsPerPage:  1,
		Ranges:       ieeeYearRange(opts.StartYear, opts.EndYear),
	}
	if opts.OpenAccessOnly {
		payload.OpenAccess = "true"
	}

	data, err := f.postSearch(ctx, payload)
	if err != nil {
		f.logger.Error().Err(err).Str("query", query).Msg("IEEE total-results query failed")
		return -1
	}
	return data.TotalRecords
}

// DownloadPDF attempts a direct GET against the stamp PDF endpoint. Any
// non-PDF content type (typically an HTML login or paywall page) is a
// failure; no browser fallback lives in the core.
func (f *ieeeFetcher) DownloadPDF(ctx context.Context, paper types.Paper, saveDir string, opts DownloadOptions) (string, error) {
	if paper.ID == "" {
		return "", ErrMissingID
	}

	f.limiter.WaitBeforeDownload()

	if err := ensureDir(saveDir); err != nil {
		return "", err
	}

	downloadURL := ieeeBaseURL + "/stampPDF/getPDF.jsp?tp=&arnumber=" + paper.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	f.setHeaders(req)

	resp, err := f.client.download.Do(req)
	if err != nil {
		return "", fmt.Errorf("stamp PDF request: %w", err)
	}
	defer resp.Body.Close()

	if contentType := resp.Header.Get("Content-Type"); !strings.Contains(contentType, "application/pdf") {
		return "", &ContentTypeError{ContentType: contentType}
	}

	destPath := filepath.Join(saveDir, GenerateFilename(paper.Title, paper.Authors, paper.PublishedDate, types.SourceIEEE))
	if err := streamToFile(resp.Body, destPath); err != nil {
		return "", err
	}

	if opts.ConvertToMarkdown {
		f.conv.ToMarkdown(destPath, saveDir)
	}
	return destPath, nil
}

// primeCookies fetches the site root so the session cookies land in the
// jar. The search endpoint rejects cookie-less POSTs; a priming failure is
// deliberately ignored after logging, since the search attempt itself will
// surface any real outage.
func (f *ieeeFetcher) primeCookies(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ieeeBaseURL, nil)
	if err != nil {
		return
	}
	f.setHeaders(req)
	resp, err := f.client.api.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Msg("failed to get initial IEEE cookies")
		return
	}
	resp.Body.Close()
}

func (f *ieeeFetcher) postSearch(ctx context.Context, payload ieeeSearchPayload) (*ieeeSearchResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ieeeBaseURL+"/rest/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	f.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, f.client.api, req, 0, f.logger)
	if err != nil {
		return nil, fmt.Errorf("IEEE search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IEEE search returned HTTP %d", resp.StatusCode)
	}

	var data ieeeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("parsing IEEE response: %w", err)
	}
	return &data, nil
}

func (f *ieeeFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", ieeeUserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", ieeeBaseURL)
	req.Header.Set("Referer", ieeeBaseURL+"/search/searchresult.jsp")
}

// recordToPaper maps one search record, tolerating missing or oddly typed
// fields.
func (f *ieeeFetcher) recordToPaper(rec ieeeRecord) types.Paper {
	var authors []string
	for _, a := range rec.Authors {
		switch {
		case a.PreferredName != "":
			authors = append(authors, a.PreferredName)
		case a.NormalizedName != "":
			authors = append(authors, a.NormalizedName)
		}
	}

	pdfURL := ""
	if rec.PdfLink != "" {
		pdfURL = ieeeBaseURL + rec.PdfLink
	}

	var published types.Date
	if year, ok := parseLooseYear(rec.PublicationYear); ok {
		published = types.NewDate(year, time.January, 1)
	} else if len(rec.PublicationYear) > 0 {
		f.logger.Warn().
			Str("article", rec.ArticleNumber).
			RawJSON("publication_year", rec.PublicationYear).
			Msg("skipping unparsable IEEE publication year")
	}

	return types.Paper{
		Source:         types.SourceIEEE,
		ID:             rec.ArticleNumber,
		Title:          rec.ArticleTitle,
		Authors:        authors,
		Abstract:       rec.Abstract,
		URL:            fmt.Sprintf("%s/document/%s/", ieeeBaseURL, rec.ArticleNumber),
		PDFURL:         pdfURL,
		PublishedDate:  published,
		IsDownloadable: ieeeDownloadable(rec.AccessType, rec.PdfLink),
	}
}

// ieeeDownloadable classifies access. The API returns accessType either as
// a plain string or as an object with a "type" field; both normalize to
// uppercase with hyphens as underscores. OPEN_ACCESS and EPHEMERA classify
// as downloadable. A present pdfLink also classifies as downloadable even
// without a matching access type, a relaxation covering
// IP-authenticated access, at the cost of over-classifying some restricted
// articles. Unknown or absent values default to not downloadable.
func ieeeDownloadable(accessType json.RawMessage, pdfLink string) bool {
	if pdfLink != "" {
		return true
	}

	value := ""
	var s string
	if err := json.Unmarshal(accessType, &s); err == nil {
		value = s
	} else {
		var obj struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(accessType, &obj); err == nil {
			value = obj.Type
		}
	}

	normalized := strings.ReplaceAll(strings.ToUpper(value), "-", "_")
	return normalized == "OPEN_ACCESS" || normalized == "EPHEMERA"
}

// parseLooseYear accepts a JSON string or number year.
func parseLooseYear(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if year, convErr := strconv.Atoi(strings.TrimSpace(s)); convErr == nil && year > 0 {
			return year, true
		}
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}

// ieeeSortType maps the shared sort options onto the API's sort values.
func ieeeSortType(sortBy, sortOrder string) string {
	switch sortBy {
	case "date":
		if sortOrder == "asc" {
			return "oldest"
		}
		return "newest"
	case "relevance":
		return "relevance"
	default:
		return ""
	}
}

// ieeeYearRange builds the "{start}_{end}_Year" range facet, defaulting
// the open side to 1800 or the current year.
func ieeeYearRange(startYear, endYear int) []string {
	if startYear == 0 && endYear == 0 {
		return nil
	}
	if startYear == 0 {
		startYear = 1800
	}
	if endYear == 0 {
		endYear = time.Now().Year()
	}
	return []string{fmt.Sprintf("%d_%d_Year", startYear, endYear)}
}

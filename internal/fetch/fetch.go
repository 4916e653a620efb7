// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch implements the rate-limited search and download core. One
// fetcher per source (arXiv, IEEE Xplore, 3GPP FTP mirrors, USPTO) speaks
// its source's protocol behind a shared contract; the download pipeline
// and the CLI dispatch on the source tag alone.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-fetch/internal/convert"
	"github.com/pdiddy/paper-fetch/internal/httputil"
	"github.com/pdiddy/paper-fetch/internal/ratelimit"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// DefaultMethod selects a fetcher's default download strategy.
const DefaultMethod = "default"

// ErrMissingID is returned when a paper lacks the identifier its source
// needs to build a download URL. It is raised before any network call.
var ErrMissingID = errors.New("paper identifier is missing")

// ContentTypeError reports a download endpoint that returned something
// other than a PDF, typically an HTML login or paywall page.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("expected application/pdf, got content type %q", e.ContentType)
}

// SearchOptions holds the cross-source search parameters. Source-specific
// knobs are explicit optional fields rather than open-ended keyword maps.
type SearchOptions struct {
	// MaxResults caps the returned sequence; <= 0 uses the source default.
	MaxResults int

	// SortBy is "relevance" or "date".
	SortBy string

	// SortOrder is "asc" or "desc".
	SortOrder string

	// StartYear and EndYear bound the publication year; 0 means unbounded.
	StartYear int
	EndYear   int

	// OpenAccessOnly restricts IEEE results to open-access documents.
	// Other sources ignore it.
	OpenAccessOnly bool
}

// DownloadOptions holds the cross-source download parameters.
type DownloadOptions struct {
	// Method selects a download strategy for sources that expose more
	// than one (see Fetcher.DownloadMethods). Empty means default.
	Method string

	// ConvertToMarkdown derives a Markdown rendition of the artifact via
	// the external converter.
	ConvertToMarkdown bool

	// ConvertToPDF converts office documents to PDF (3GPP only).
	ConvertToPDF bool
}

// Fetcher is the per-source search/download contract.
//
// Search and TotalResults absorb request-level failures: a network error or
// non-2xx status is logged and reported as no results (or -1), never as an
// error, so interactive and batch callers keep functioning. DownloadPDF
// raises instead, and the driving loop records per-item failures and
// continues with the remaining papers.
//
// A fetcher instance is meant for sequential use; its rate limiter
// serializes concurrent calls on the same instance.
type Fetcher interface {
	// Source returns the fetcher's source tag.
	Source() string

	// Search runs a rate-limited query and returns ordered results.
	// Malformed individual items are skipped with a logged warning.
	Search(ctx context.Context, query string, opts SearchOptions) []types.Paper

	// TotalResults returns the total hit count for a query, or -1 when
	// the source cannot say. It costs the same rate-limit budget as a
	// search.
	TotalResults(ctx context.Context, query string, opts SearchOptions) int

	// DownloadPDF fetches the paper's artifact into saveDir and returns
	// the final path. It creates saveDir if absent and leaves no
	// partially written file behind on failure.
	DownloadPDF(ctx context.Context, paper types.Paper, saveDir string, opts DownloadOptions) (string, error)

	// CheckDownloadable reports whether the paper can be downloaded with
	// the given method. The base rule is the paper's own classification.
	CheckDownloadable(paper types.Paper, method string) bool

	// DownloadMethods lists the fetcher's download strategies. Most
	// sources expose only the default.
	DownloadMethods() []string

	// QueryDirname derives a filesystem-safe directory name for a query.
	QueryDirname(query string) string

	// Limiter exposes the fetcher's rate limiter for wait estimation and
	// progress observation.
	Limiter() *ratelimit.Limiter
}

// New returns the fetcher for the given source tag. The tag set
// {arxiv, ieee, 3gpp, uspto} is the sole dispatch key and is stable.
func New(source string, cfg types.Config, log zerolog.Logger) (Fetcher, error) {
	log = log.With().Str("source", source).Logger()
	conv := convert.NewToolConverter(log)
	switch source {
	case types.SourceArxiv:
		return newArxiv(cfg, conv, log), nil
	case types.SourceIEEE:
		return newIEEE(cfg, conv, log), nil
	case types.SourceThreeGPP:
		return newThreeGPP(cfg, conv, log), nil
	case types.SourceUSPTO:
		return newUSPTO(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown source %q (known: %v)", source, types.Sources)
	}
}

// base carries the pieces every fetcher shares: the limiter, the HTTP
// clients, and the logger.
type base struct {
	limiter   *ratelimit.Limiter
	client    *httpClient
	logger    zerolog.Logger
	userAgent string
}

func newBase(cfg types.Config, rate types.RateConfig, log zerolog.Logger) base {
	return base{
		limiter: ratelimit.New(rate),
		client: &httpClient{
			api:      httputil.NewClient(cfg.Timeout),
			download: httputil.NewDownloadClient(),
		},
		logger:    log,
		userAgent: cfg.UserAgent,
	}
}

func (b *base) Limiter() *ratelimit.Limiter { return b.limiter }

func (b *base) DownloadMethods() []string { return []string{DefaultMethod} }

// maxOrDefault returns n when positive, else def.
func maxOrDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// unsafeDirnameChars matches every rune that is not filename-safe.
var unsafeDirnameChars = regexp.MustCompile(`[^\w\-]`)

// QueryDirname sanitizes a query into a directory name: anything outside
// [\w-] becomes an underscore, truncated to 50 characters.
func (b *base) QueryDirname(query string) string {
	safe := unsafeDirnameChars.ReplaceAllString(query, "_")
	if len(safe) > 50 {
		safe = safe[:50]
	}
	return safe
}

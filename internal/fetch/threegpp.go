// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-fetch/internal/convert"
	"github.com/pdiddy/paper-fetch/internal/httputil"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// threeGPPExtensions are the document types retained from a directory
// listing.
var threeGPPExtensions = []string{".zip", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx", ".pdf"}

// officeExtensions are the types routed through PDF/Markdown conversion.
var officeExtensions = []string{".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx"}

// threeGPPFetcher scrapes 3GPP FTP-mirror directory listings. There is no
// structured API: the query is a directory URL and each file link becomes
// a result.
type threeGPPFetcher struct {
	base
	conv convert.Converter
}

func newThreeGPP(cfg types.Config, conv convert.Converter, log zerolog.Logger) *threeGPPFetcher {
	rate := cfg.Rate
	if cfg.ThreeGPPRate != nil {
		rate = *cfg.ThreeGPPRate
	}
	return &threeGPPFetcher{
		base: newBase(cfg, rate, log),
		conv: conv,
	}
}

func (f *threeGPPFetcher) Source() string { return types.SourceThreeGPP }

func (f *threeGPPFetcher) CheckDownloadable(paper types.Paper, method string) bool {
	return paper.IsDownloadable
}

// Search treats query as a directory-listing URL and returns one Paper per
// document link. Non-URL input yields an empty result set with a logged
// warning. MaxResults <= 0 returns the full listing.
func (f *threeGPPFetcher) Search(ctx context.Context, query string, opts SearchOptions) []types.Paper {
	f.limiter.WaitBeforeSearch()

	listingURL := strings.TrimSpace(query)
	baseURL, err := url.Parse(listingURL)
	if err != nil || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		f.logger.Warn().Str("query", query).Msg("3GPP query is not a URL, returning no results")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		f.logger.Error().Err(err).Str("url", listingURL).Msg("creating 3GPP listing request")
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := httputil.DoWithRetry(ctx, f.client.api, req, 0, f.logger)
	if err != nil {
		f.logger.Error().Err(err).Str("url", listingURL).Msg("fetching 3GPP listing failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error().Int("status", resp.StatusCode).Str("url", listingURL).Msg("3GPP listing returned non-OK status")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		f.logger.Error().Err(err).Str("url", listingURL).Msg("parsing 3GPP listing failed")
		return nil
	}

	var papers []types.Paper
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !isThreeGPPDocument(href) {
			return
		}

		// Basename only: a crafted link must not escape the save dir.
		decoded, err := url.QueryUnescape(href)
		if err != nil {
			f.logger.Warn().Str("href", href).Msg("skipping undecodable 3GPP link")
			return
		}
		filename := path.Base(decoded)

		ref, err := url.Parse(href)
		if err != nil {
			f.logger.Warn().Str("href", href).Msg("skipping unparsable 3GPP link")
			return
		}
		fullURL := baseURL.ResolveReference(ref).String()

		papers = append(papers, types.Paper{
			Source:         types.SourceThreeGPP,
			ID:             filename,
			Title:          filename,
			Authors:        []string{"3GPP"},
			URL:            fullURL,
			PDFURL:         fullURL,
			IsDownloadable: true,
		})
	})

	if opts.MaxResults > 0 && len(papers) > opts.MaxResults {
		papers = papers[:opts.MaxResults]
	}
	return papers
}

// TotalResults has no dedicated count endpoint; it performs the full
// listing fetch and counts. Callers should treat it as costing a complete
// search, not an O(1) lookup.
func (f *threeGPPFetcher) TotalResults(ctx context.Context, query string, opts SearchOptions) int {
	return len(f.Search(ctx, query, SearchOptions{}))
}

// QueryDirname derives a meeting or series folder name from the directory
// URL; non-URL queries fall back to the shared sanitizer.
func (f *threeGPPFetcher) QueryDirname(query string) string {
	if strings.HasPrefix(query, "http") {
		return folderNameFromURL(query)
	}
	return f.base.QueryDirname(query)
}

// folderNameFromURL maps a listing URL onto a folder name:
// .../TSGR1_122b/Docs/ becomes "TSGR1_122b" (meeting code), and
// .../Rel-19/38_series/ becomes "Rel-19_38_series" (release + series).
func folderNameFromURL(dirURL string) string {
	parts := strings.Split(strings.TrimRight(dirURL, "/"), "/")
	last := parts[len(parts)-1]

	if strings.EqualFold(last, "docs") && len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	if strings.Contains(strings.ToLower(last), "series") && len(parts) >= 2 {
		return parts[len(parts)-2] + "_" + last
	}
	return last
}

// DownloadPDF is multi-stage: the raw file lands in a per-meeting working
// directory, ZIPs are unpacked with the original archived, office
// documents route through source/ with optional PDF/Markdown conversion,
// and bare PDFs route straight to pdf/. It returns the generated or
// retained PDF when one exists, otherwise the raw/source file.
func (f *threeGPPFetcher) DownloadPDF(ctx context.Context, paper types.Paper, saveDir string, opts DownloadOptions) (string, error) {
	filename := paper.ID
	if filename == "" {
		return "", ErrMissingID
	}

	f.limiter.WaitBeforeDownload()

	folder := folderNameFromURL(path.Dir(paper.URL))
	targetBase := filepath.Join(saveDir, folder)

	dirs := meetingDirs{
		archive:  filepath.Join(targetBase, "archive"),
		source:   filepath.Join(targetBase, "source"),
		pdf:      filepath.Join(targetBase, "pdf"),
		markdown: filepath.Join(targetBase, "markdown"),
	}
	for _, d := range []string{targetBase, dirs.archive, dirs.source} {
		if err := ensureDir(d); err != nil {
			return "", err
		}
	}
	if opts.ConvertToPDF {
		if err := ensureDir(dirs.pdf); err != nil {
			return "", err
		}
	}
	if opts.ConvertToMarkdown {
		if err := ensureDir(dirs.markdown); err != nil {
			return "", err
		}
	}

	localPath := filepath.Join(targetBase, filename)
	f.logger.Info().Str("url", paper.URL).Msg("downloading 3GPP document")
	if err := f.client.fetchToFile(ctx, paper.URL, localPath, f.userAgent, nil); err != nil {
		return "", fmt.Errorf("downloading %s: %w", filename, err)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".zip":
		return f.processArchive(localPath, filename, dirs, opts)
	case isOfficeExtension(ext):
		sourcePath := filepath.Join(dirs.source, filename)
		if err := os.Rename(localPath, sourcePath); err != nil {
			return "", fmt.Errorf("moving %s to source: %w", filename, err)
		}
		finalPDF := ""
		if opts.ConvertToPDF {
			finalPDF = f.conv.ToPDF(sourcePath, dirs.pdf)
		}
		if opts.ConvertToMarkdown {
			f.conv.ToMarkdown(sourcePath, dirs.markdown)
		}
		if finalPDF != "" {
			return finalPDF, nil
		}
		return sourcePath, nil
	case ext == ".pdf":
		destDir := dirs.source
		if opts.ConvertToPDF {
			destDir = dirs.pdf
			if err := ensureDir(destDir); err != nil {
				return "", err
			}
		}
		destPath := filepath.Join(destDir, filename)
		if err := os.Rename(localPath, destPath); err != nil {
			return "", fmt.Errorf("moving %s: %w", filename, err)
		}
		if opts.ConvertToMarkdown {
			f.conv.ToMarkdown(destPath, dirs.markdown)
		}
		return destPath, nil
	default:
		sourcePath := filepath.Join(dirs.source, filename)
		if err := os.Rename(localPath, sourcePath); err != nil {
			return "", fmt.Errorf("moving %s to source: %w", filename, err)
		}
		return sourcePath, nil
	}
}

type meetingDirs struct {
	archive, source, pdf, markdown string
}

// processArchive extracts a downloaded ZIP into a temporary area, moves
// the original into archive/, and routes the contents: office documents
// into source/ (prefixed with the zip's base name) with optional
// conversion, or, when the archive holds no office files, any extracted
// PDFs straight into pdf/.
func (f *threeGPPFetcher) processArchive(zipPath, filename string, dirs meetingDirs, opts DownloadOptions) (string, error) {
	tempDir, err := os.MkdirTemp("", "3gpp-extract-*")
	if err != nil {
		return "", fmt.Errorf("creating extraction dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if !f.conv.ExtractZip(zipPath, tempDir) {
		// Leave the ZIP in place for manual inspection or retry.
		f.logger.Error().Str("zip", filename).Msg("failed to extract 3GPP archive")
		return zipPath, nil
	}

	archivedPath := filepath.Join(dirs.archive, filename)
	if err := os.Rename(zipPath, archivedPath); err != nil {
		return "", fmt.Errorf("archiving %s: %w", filename, err)
	}

	zipBase := strings.TrimSuffix(filename, filepath.Ext(filename))
	finalPDF := ""
	foundOffice := false

	walkExtracted(tempDir, func(p string, name string) {
		if !isOfficeExtension(strings.ToLower(filepath.Ext(name))) {
			return
		}
		foundOffice = true

		sourcePath := filepath.Join(dirs.source, zipBase+"_"+name)
		if err := copyFile(p, sourcePath); err != nil {
			f.logger.Warn().Err(err).Str("file", name).Msg("copying extracted office file failed")
			return
		}
		if opts.ConvertToPDF {
			if pdfPath := f.conv.ToPDF(sourcePath, dirs.pdf); pdfPath != "" {
				finalPDF = pdfPath
			}
		}
		if opts.ConvertToMarkdown {
			f.conv.ToMarkdown(sourcePath, dirs.markdown)
		}
	})

	if !foundOffice {
		f.logger.Warn().Str("zip", filename).Msg("no office files found in archive, keeping extracted PDFs")
		walkExtracted(tempDir, func(p string, name string) {
			if strings.ToLower(filepath.Ext(name)) != ".pdf" {
				return
			}
			if opts.ConvertToPDF {
				if err := ensureDir(dirs.pdf); err != nil {
					return
				}
				destPath := filepath.Join(dirs.pdf, name)
				if err := copyFile(p, destPath); err != nil {
					f.logger.Warn().Err(err).Str("file", name).Msg("copying extracted PDF failed")
					return
				}
				if finalPDF == "" {
					finalPDF = destPath
				}
			}
			if opts.ConvertToMarkdown {
				f.conv.ToMarkdown(p, dirs.markdown)
			}
		})
	}

	if finalPDF != "" {
		return finalPDF, nil
	}
	return archivedPath, nil
}

// walkExtracted visits regular files under dir, skipping macOS resource
// forks ("._" prefixes) and __MACOSX metadata trees.
func walkExtracted(dir string, visit func(path, name string)) {
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "._") || strings.Contains(p, "__MACOSX") {
			return nil
		}
		visit(p, name)
		return nil
	})
}

// isThreeGPPDocument reports whether an href points at a retained document
// type. Query-string-only links ("?C=N;O=D" sort links) are excluded.
func isThreeGPPDocument(href string) bool {
	if href == "" || strings.HasPrefix(href, "?") {
		return false
	}
	lower := strings.ToLower(href)
	for _, ext := range threeGPPExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func isOfficeExtension(ext string) bool {
	for _, e := range officeExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

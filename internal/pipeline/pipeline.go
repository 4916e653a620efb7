// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives batch downloads through a fetcher: per-item
// status, skip-already-downloaded, and a summary result. One failed paper
// never aborts the batch.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-fetch/internal/fetch"
	"github.com/pdiddy/paper-fetch/internal/history"
	"github.com/pdiddy/paper-fetch/pkg/types"
)

// BatchResult holds the outcome of a batch download run.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
	Paths      []string
}

// Total returns the number of papers processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any downloads failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Pipeline wires a fetcher to the optional download history.
type Pipeline struct {
	fetcher fetch.Fetcher
	hist    *history.Store
	logger  zerolog.Logger
}

// New builds a pipeline. hist may be nil, which disables skip-existing
// checks and recording.
func New(fetcher fetch.Fetcher, hist *history.Store, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		hist:    hist,
		logger:  log,
	}
}

// DownloadBatch downloads papers sequentially into saveDir, printing
// per-item status to w. Papers already in the history, or classified as
// not downloadable for the selected method, are skipped. Each successful
// download is recorded and gets a YAML metadata sidecar next to the
// artifact.
func (p *Pipeline) DownloadBatch(ctx context.Context, papers []types.Paper, saveDir string, opts fetch.DownloadOptions, w io.Writer) BatchResult {
	var result BatchResult
	for _, paper := range papers {
		if ctx.Err() != nil {
			fmt.Fprintf(w, "aborted: %v\n", ctx.Err())
			break
		}

		if !p.fetcher.CheckDownloadable(paper, opts.Method) {
			fmt.Fprintf(w, "skipped: %s (not downloadable)\n", paper.Key())
			result.Skipped++
			continue
		}

		if p.hist != nil {
			seen, err := p.hist.Contains(paper.Source, paper.ID)
			if err != nil {
				p.logger.Warn().Err(err).Str("paper", paper.Key()).Msg("history lookup failed")
			} else if seen {
				fmt.Fprintf(w, "skipped: %s (already downloaded)\n", paper.Key())
				result.Skipped++
				continue
			}
		}

		fmt.Fprintf(w, "downloading: %s\n", paper.Key())
		path, err := p.fetcher.DownloadPDF(ctx, paper, saveDir, opts)
		if err != nil {
			fmt.Fprintf(w, "  failed: %v\n", err)
			p.logger.Error().Err(err).Str("paper", paper.Key()).Msg("download failed")
			result.Failed++
			continue
		}

		if p.hist != nil {
			if err := p.hist.Record(paper, path); err != nil {
				p.logger.Warn().Err(err).Str("paper", paper.Key()).Msg("recording download failed")
			}
		}
		if err := writeSidecar(paper, path); err != nil {
			p.logger.Warn().Err(err).Str("paper", paper.Key()).Msg("writing metadata sidecar failed")
		}

		fmt.Fprintf(w, "  saved: %s\n", path)
		result.Downloaded++
		result.Paths = append(result.Paths, path)
	}
	return result
}

// EstimateWait returns the cooldown bounds for downloading n papers,
// derived from the fetcher's download wait range. The first download
// waits like the rest when the limiter has already been used, so the
// estimate assumes n enforced waits.
func (p *Pipeline) EstimateWait(n int) (shortest, longest time.Duration) {
	lo, hi := p.fetcher.Limiter().DownloadWaitRange()
	return time.Duration(float64(n) * lo * float64(time.Second)),
		time.Duration(float64(n) * hi * float64(time.Second))
}

// writeSidecar writes the paper record as YAML next to the artifact,
// replacing the artifact's extension with .yaml.
func writeSidecar(paper types.Paper, artifactPath string) error {
	data, err := yaml.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	sidecar := strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".yaml"
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata sidecar: %w", err)
	}
	return nil
}

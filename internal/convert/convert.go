// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert shells out to external document tools: LibreOffice for
// office-to-PDF, pandoc and pdftotext for Markdown, unzip for archives.
// Every operation is best-effort and tool-availability-gated: a missing
// binary degrades to a logged warning, never an error, so the primary
// download artifact is still delivered.
package convert

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Converter transforms downloaded documents. The 3GPP fetcher and the
// download pipeline depend on this narrow interface; tests substitute a
// stub.
type Converter interface {
	// ToPDF converts an office document to PDF in outputDir. Returns the
	// generated path, or "" when the tool is unavailable or fails.
	ToPDF(inputPath, outputDir string) string

	// ToMarkdown converts a PDF or office document to Markdown in
	// outputDir. Returns the generated path, or "" on failure.
	ToMarkdown(inputPath, outputDir string) string

	// ExtractZip unpacks zipPath into outputDir and reports success.
	ExtractZip(zipPath, outputDir string) bool
}

// executor abstracts binary lookup and execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(name string, args ...string) error
	RunTimeout(timeout time.Duration, name string, args ...string) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (osExecutor) RunTimeout(timeout time.Duration, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		cmd.Process.Kill()
		<-done
		return fmt.Errorf("%s timed out after %v", name, timeout)
	}
}

// ToolConverter implements Converter over the system binaries. Tool
// availability is probed once at construction.
type ToolConverter struct {
	exec   executor
	logger zerolog.Logger

	soffice      string // empty when LibreOffice is absent
	hasPandoc    bool
	hasPdftotext bool
	hasUnzip     bool
}

// NewToolConverter probes the PATH for the conversion binaries.
func NewToolConverter(log zerolog.Logger) *ToolConverter {
	return newToolConverter(osExecutor{}, log)
}

func newToolConverter(ex executor, log zerolog.Logger) *ToolConverter {
	c := &ToolConverter{exec: ex, logger: log}
	c.soffice = findSoffice(ex)
	c.hasPandoc = lookupOK(ex, "pandoc")
	c.hasPdftotext = lookupOK(ex, "pdftotext")
	c.hasUnzip = lookupOK(ex, "unzip")
	return c
}

// Available reports which external tools were found, for diagnostics.
func (c *ToolConverter) Available() map[string]bool {
	return map[string]bool{
		"libreoffice": c.soffice != "",
		"pandoc":      c.hasPandoc,
		"pdftotext":   c.hasPdftotext,
		"unzip":       c.hasUnzip,
	}
}

func lookupOK(ex executor, bin string) bool {
	_, err := ex.LookPath(bin)
	return err == nil
}

// findSoffice locates the LibreOffice binary, checking the macOS bundle
// path before the PATH.
func findSoffice(ex executor) string {
	const macPath = "/Applications/LibreOffice.app/Contents/MacOS/soffice"
	if info, err := os.Stat(macPath); err == nil && !info.IsDir() {
		return macPath
	}
	if p, err := ex.LookPath("soffice"); err == nil {
		return p
	}
	return ""
}

// ToPDF converts an office document to PDF with LibreOffice headless. A
// throwaway user profile avoids the profile lock that concurrent soffice
// invocations trip over.
func (c *ToolConverter) ToPDF(inputPath, outputDir string) string {
	if c.soffice == "" {
		c.logger.Warn().Msg("LibreOffice (soffice) not found, skipping PDF conversion")
		return ""
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		c.logger.Error().Err(err).Str("dir", outputDir).Msg("creating PDF output dir")
		return ""
	}

	profileDir, err := os.MkdirTemp("", "soffice-profile-*")
	if err != nil {
		c.logger.Error().Err(err).Msg("creating soffice profile dir")
		return ""
	}
	defer os.RemoveAll(profileDir)

	err = c.exec.RunTimeout(60*time.Second, c.soffice,
		"-env:UserInstallation=file://"+profileDir,
		"--headless",
		"--convert-to", "pdf",
		inputPath,
		"--outdir", outputDir,
	)
	if err != nil {
		c.logger.Error().Err(err).Str("input", inputPath).Msg("PDF conversion failed")
		return ""
	}

	expected := filepath.Join(outputDir, baseNameNoExt(inputPath)+".pdf")
	if _, err := os.Stat(expected); err != nil {
		c.logger.Error().Str("expected", expected).Msg("PDF conversion ran but output not found")
		return ""
	}
	return expected
}

// ToMarkdown converts PDFs via pdftotext and office documents via pandoc.
func (c *ToolConverter) ToMarkdown(inputPath, outputDir string) string {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		c.logger.Error().Err(err).Str("dir", outputDir).Msg("creating Markdown output dir")
		return ""
	}
	outputPath := filepath.Join(outputDir, baseNameNoExt(inputPath)+".md")

	switch strings.ToLower(filepath.Ext(inputPath)) {
	case ".pdf":
		if !c.hasPdftotext {
			c.logger.Warn().Msg("pdftotext not found, skipping Markdown conversion")
			return ""
		}
		if err := c.exec.Run("pdftotext", "-layout", inputPath, outputPath); err != nil {
			c.logger.Error().Err(err).Str("input", inputPath).Msg("pdftotext conversion failed")
			return ""
		}
		return outputPath

	case ".doc", ".docx", ".odt":
		if !c.hasPandoc {
			c.logger.Warn().Msg("pandoc not found, skipping Markdown conversion")
			return ""
		}
		err := c.exec.Run("pandoc",
			"-f", "docx",
			"-t", "markdown",
			inputPath,
			"--extract-media="+outputDir,
			"-o", outputPath,
		)
		if err != nil {
			c.logger.Error().Err(err).Str("input", inputPath).Msg("pandoc conversion failed")
			return ""
		}
		return outputPath

	default:
		c.logger.Warn().Str("input", inputPath).Msg("unsupported file type for Markdown conversion")
		return ""
	}
}

// ExtractZip prefers the system unzip (better filename-encoding handling
// for 3GPP archives) and falls back to archive/zip.
func (c *ToolConverter) ExtractZip(zipPath, outputDir string) bool {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		c.logger.Error().Err(err).Str("dir", outputDir).Msg("creating extraction dir")
		return false
	}

	if c.hasUnzip {
		err := c.exec.Run("unzip", "-q", "-o", zipPath, "-d", outputDir)
		if err == nil {
			return true
		}
		c.logger.Warn().Err(err).Msg("system unzip failed, falling back to archive/zip")
	}

	if err := extractZipNative(zipPath, outputDir); err != nil {
		c.logger.Error().Err(err).Str("zip", zipPath).Msg("zip extraction failed")
		return false
	}
	return true
}

// extractZipNative unpacks with the standard library, rejecting entries
// that would escape outputDir.
func extractZipNative(zipPath, outputDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		dest := filepath.Join(outputDir, f.Name)
		if !strings.HasPrefix(dest, filepath.Clean(outputDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry %q escapes extraction dir", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func baseNameNoExt(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

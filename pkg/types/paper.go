// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for paper-fetch.
// The Paper record is the unified result model produced by every source
// fetcher; Config carries process-wide settings loaded once at startup.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source tags identify which fetcher produced a paper and how it must be
// downloaded. The tag set is the dispatch key every caller uses to obtain
// a fetcher, so it must remain stable.
const (
	SourceArxiv    = "arxiv"
	SourceIEEE     = "ieee"
	SourceThreeGPP = "3gpp"
	SourceUSPTO    = "uspto"
)

// Sources lists the known source tags in display order.
var Sources = []string{SourceArxiv, SourceIEEE, SourceThreeGPP, SourceUSPTO}

// KnownSource reports whether tag is one of the four supported sources.
func KnownSource(tag string) bool {
	for _, s := range Sources {
		if s == tag {
			return true
		}
	}
	return false
}

// Date is a calendar date with day precision. It serializes to JSON as an
// ISO-8601 date string ("2023-01-15") or null when zero.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" strings and null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// MarshalYAML encodes the date as its string form, or nil when zero.
func (d Date) MarshalYAML() (any, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// UnmarshalYAML accepts "YYYY-MM-DD" strings and null.
func (d *Date) UnmarshalYAML(unmarshal func(any) error) error {
	var s *string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", *s, err)
	}
	*d = DateOf(t)
	return nil
}

// Paper is the unified result record produced by a fetcher's Search call.
// Values are never mutated after construction; the download pipeline and
// export code read them as-is.
type Paper struct {
	// Source is one of the four known source tags.
	Source string `json:"source" yaml:"source"`

	// ID is the source-native identifier: arXiv entry ID, IEEE article
	// number, 3GPP filename, or patent number. (Source, ID) is the
	// natural key for deduplication and already-downloaded checks.
	ID string `json:"id" yaml:"id"`

	// Title is the display title, also used for filename generation.
	Title string `json:"title" yaml:"title"`

	// Authors lists display names in source order. The first and last
	// entries feed the filename convention.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is free text; may be empty.
	Abstract string `json:"abstract" yaml:"abstract"`

	// URL is the canonical human-viewable page.
	URL string `json:"url" yaml:"url"`

	// PDFURL is the direct or best-guess location of the binary
	// artifact. May be empty when unknown at search time.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// PublishedDate is year-precision for non-arXiv sources. A zero
	// date is valid and means unknown.
	PublishedDate Date `json:"published_date" yaml:"published_date"`

	// IsDownloadable is the access classification computed at search
	// time. It is a permission hint, not a guarantee: the download step
	// can still fail, e.g. for IEEE-locked documents.
	IsDownloadable bool `json:"is_downloadable" yaml:"is_downloadable"`
}

// Key returns the (source, id) natural key.
func (p Paper) Key() string {
	return p.Source + "/" + p.ID
}

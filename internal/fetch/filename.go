// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"fmt"
	"strings"

	"github.com/pdiddy/paper-fetch/pkg/types"
)

// invalidFilenameChars are stripped from every filename component.
const invalidFilenameChars = `<>:"/\|?*`

// SanitizeFilename makes text safe for use as a filename component:
// invalid characters removed, spaces replaced with underscores, truncated
// to 100 characters.
func SanitizeFilename(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(invalidFilenameChars, r) {
			continue
		}
		if r == ' ' {
			r = '_'
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// GenerateFilename builds the download filename using the convention
// {Year}_{Month}[_{Source}]_{FirstAuthorLastName}[_{LastAuthorLastName}]_{Title}.pdf.
// Year and month default to "0000"/"00" when the date is unknown; the first
// author falls back to "Unknown"; the last author appears only when the
// paper has more than one. The output must stay bit-for-bit stable: it is
// the dedup key for files already on disk.
func GenerateFilename(title string, authors []string, published types.Date, source string) string {
	year := "0000"
	month := "00"
	if !published.IsZero() {
		year = fmt.Sprintf("%04d", published.Year)
		month = fmt.Sprintf("%02d", int(published.Month))
	}

	firstAuthor := "Unknown"
	lastAuthor := ""
	if len(authors) > 0 {
		firstAuthor = lastNameOf(authors[0])
		if len(authors) > 1 {
			lastAuthor = lastNameOf(authors[len(authors)-1])
		}
	}

	components := []string{year, month}
	if s := SanitizeFilename(source); s != "" {
		components = append(components, s)
	}
	components = append(components, SanitizeFilename(firstAuthor))
	if s := SanitizeFilename(lastAuthor); s != "" {
		components = append(components, s)
	}
	components = append(components, SanitizeFilename(title))

	return strings.Join(components, "_") + ".pdf"
}

// lastNameOf returns the last whitespace-delimited token of a display name.
func lastNameOf(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[len(fields)-1]
}

// Package pdftext extracts thesis metadata from local PDF files.
//
// Extraction is heuristic: institutional cover pages bury the title under
// university letterhead, and the abstract is located by its "RESUMEN" or
// "ABSTRACT" section heading. Results are best-effort, never exact.
package pdftext

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/andeslab/thesisrec/internal/metadata"
)

// DefaultMaxPages bounds how deep into the document the abstract search
// goes. Thesis abstracts sit within the front matter.
const DefaultMaxPages = 10

const maxAbstractChars = 2000

// ExtractText extracts plain text from the first maxPages pages.
func ExtractText(path string, maxPages int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// ExtractTitle extracts a likely title from the cover page.
func ExtractTitle(path string) (string, error) {
	text, err := ExtractText(path, 2)
	if err != nil {
		return "", err
	}
	return titleFromText(text), nil
}

// ExtractAbstract extracts the abstract section from the front matter.
func ExtractAbstract(path string) (string, error) {
	text, err := ExtractText(path, DefaultMaxPages)
	if err != nil {
		return "", err
	}
	return abstractFromText(text), nil
}

// BuildItem extracts title and abstract from the PDF at path and packs
// them into an Item with a uuid derived from the absolute file path, so
// re-ingesting the same file maps to the same row.
func BuildItem(path, university string) (metadata.Item, error) {
	title, err := ExtractTitle(path)
	if err != nil {
		return metadata.Item{}, err
	}
	abstract, err := ExtractAbstract(path)
	if err != nil {
		return metadata.Item{}, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	it := metadata.Item{
		UUID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String(),
		Title:      title,
		Abstract:   abstract,
		URL:        "file://" + abs,
		University: university,
	}
	if it.Title == "" {
		it.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	it.Normalize()
	return it, nil
}

// titleFromText returns the first substantial line that is not
// institutional letterhead.
func titleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len(line) > 20 && !isLetterheadLine(line) {
			return line
		}
	}
	return ""
}

// abstractFromText locates a "RESUMEN" or "ABSTRACT" heading and collects
// the paragraph text that follows it.
func abstractFromText(text string) string {
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		if isAbstractHeading(line) {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return ""
	}

	var builder strings.Builder
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if isSectionEnd(trimmed) {
			break
		}
		if trimmed == "" {
			if builder.Len() > 0 {
				builder.WriteString(" ")
			}
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(trimmed)
		if builder.Len() >= maxAbstractChars {
			break
		}
	}

	out := strings.Join(strings.Fields(builder.String()), " ")
	if len(out) > maxAbstractChars {
		out = out[:maxAbstractChars]
	}
	return out
}

// isAbstractHeading matches a line that is just the abstract heading.
func isAbstractHeading(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	l = strings.TrimRight(l, ".:")
	return l == "resumen" || l == "abstract"
}

// isSectionEnd matches headings that terminate the abstract section.
func isSectionEnd(line string) bool {
	l := strings.ToLower(strings.TrimRight(line, ".:"))
	switch {
	case l == "abstract", l == "resumen":
		return true
	case strings.HasPrefix(l, "palabras clave"), strings.HasPrefix(l, "keywords"), strings.HasPrefix(l, "key words"):
		return true
	case strings.HasPrefix(l, "introducci"), strings.HasPrefix(l, "introduction"):
		return true
	case strings.HasPrefix(l, "cap"): // capítulo I
		return true
	}
	return false
}

// isLetterheadLine matches university cover-page boilerplate.
func isLetterheadLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{
		"universidad", "university",
		"facultad", "faculty",
		"escuela", "school of",
		"para optar", "presentada por", "presentado por",
		"tesis", "thesis",
		"repositorio",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

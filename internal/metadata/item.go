// Package metadata defines the harvested document model.
package metadata

import (
	"strings"
	"time"
)

// Item is one harvested academic document.
//
// UUID is assigned by the source repository (or derived deterministically
// when the source omits one) and is immutable once stored.
type Item struct {
	UUID         string    `json:"uuid"`
	Handle       string    `json:"handle,omitempty"`
	Title        string    `json:"title"`
	TitleNorm    string    `json:"title_norm,omitempty"`
	Abstract     string    `json:"abstract,omitempty"`
	AbstractNorm string    `json:"abstract_norm,omitempty"`
	Authors      []string  `json:"authors,omitempty"`
	Subjects     []string  `json:"subjects,omitempty"`
	DateIssued   string    `json:"date_issued,omitempty"`
	URL          string    `json:"url,omitempty"`
	University   string    `json:"university,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`

	// Enrichment fields populated by cluster joins. A nil ClusterID means
	// the item has no assignment for the active model.
	ClusterID *int   `json:"cluster_id,omitempty"`
	Label     string `json:"label,omitempty"`
}

// NormalizeText lowercases, trims, and collapses internal whitespace.
// The normalized form is what gets embedded, so it must be stable:
// normalizing twice yields the same string.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Normalize populates TitleNorm and AbstractNorm from the raw fields.
func (it *Item) Normalize() {
	it.TitleNorm = NormalizeText(it.Title)
	it.AbstractNorm = NormalizeText(it.Abstract)
}

// Eligible reports whether the item has enough normalized text to index.
func (it *Item) Eligible() bool {
	return it.AbstractNorm != ""
}

// EmbeddingText returns the text embedded for this item: normalized title
// and abstract joined with a single space.
func (it *Item) EmbeddingText() string {
	if it.TitleNorm == "" {
		return it.AbstractNorm
	}
	return it.TitleNorm + " " + it.AbstractNorm
}

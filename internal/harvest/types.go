package harvest

import (
	"strings"

	"github.com/google/uuid"

	"github.com/andeslab/thesisrec/internal/metadata"
)

// dspaceRecord is one item from the DSpace /rest/items listing with
// expanded metadata.
type dspaceRecord struct {
	UUID     string    `json:"uuid"`
	Name     string    `json:"name"`
	Handle   string    `json:"handle"`
	Metadata []dcField `json:"metadata"`
}

// dcField is one flattened Dublin Core entry, e.g.
// {"key": "dc.title", "value": "..."}.
type dcField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Dublin Core keys the harvester cares about.
const (
	dcTitle    = "dc.title"
	dcAbstract = "dc.description.abstract"
	dcAuthor   = "dc.contributor.author"
	dcSubject  = "dc.subject"
	dcIssued   = "dc.date.issued"
)

// toItem flattens the record's metadata into an Item. Single-valued
// fields take the first occurrence; authors and subjects collect all.
func (r dspaceRecord) toItem(baseURL, university string) metadata.Item {
	it := metadata.Item{
		UUID:       r.UUID,
		Handle:     r.Handle,
		Title:      r.Name,
		University: university,
	}

	for _, f := range r.Metadata {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			continue
		}
		switch f.Key {
		case dcTitle:
			if it.Title == "" || it.Title == r.Name {
				it.Title = value
			}
		case dcAbstract:
			if it.Abstract == "" {
				it.Abstract = value
			}
		case dcAuthor:
			it.Authors = append(it.Authors, value)
		case dcSubject:
			it.Subjects = append(it.Subjects, value)
		case dcIssued:
			if it.DateIssued == "" {
				it.DateIssued = value
			}
		}
	}

	if r.Handle != "" {
		it.URL = strings.TrimSuffix(baseURL, "/") + "/handle/" + r.Handle
	}

	// Some repositories omit or mangle item uuids; derive a stable one
	// from the handle so re-harvests map to the same row.
	if _, err := uuid.Parse(it.UUID); err != nil {
		seed := r.Handle
		if seed == "" {
			seed = r.Name
		}
		it.UUID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(baseURL+"/"+seed)).String()
	}

	it.Normalize()
	return it
}

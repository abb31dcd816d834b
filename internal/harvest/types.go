package harvest

import (
	"encoding/json"
	"strings"
	"time"
)

// Item is one harvested artifact as persisted in the metadata store.
// Optional fields are omitted from the serialized form when empty; a missing
// label means the item has not been through enrichment yet.
type Item struct {
	Title        string    `json:"title,omitempty"`
	SourceURL    string    `json:"sourceUrl"`
	ArtifactURL  string    `json:"artifactUrl"`
	Authors      string    `json:"authors,omitempty"`
	Year         int       `json:"year"`
	ArtifactPath string    `json:"artifactPath"`
	MirrorURI    string    `json:"mirrorUri,omitempty"`
	SHA256       string    `json:"artifactSha256,omitempty"`
	HarvestedAt  time.Time `json:"harvestedAt"`
	Label        Label     `json:"label,omitempty"`
}

// legacyTitle is the placeholder older metadata files store for a missing title.
const legacyTitle = "Unknown Title"

// legacyTimeLayout is the local-time stamp format of older metadata files.
const legacyTimeLayout = "2006-01-02 15:04:05"

// legacyItem holds the keys used by metadata files written before the
// current field names.
type legacyItem struct {
	URL        string `json:"url"`
	FilePath   string `json:"file_path"`
	ScrapedAt  string `json:"scraped_at"`
	Annotation string `json:"annotation"`
}

// UnmarshalJSON decodes an Item, filling fields absent under their current
// keys from the older url, file_path, scraped_at and annotation keys. Older
// records carry no artifact URL, so the dedup index never matches them.
func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	var item plain
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	var legacy legacyItem
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	if item.SourceURL == "" {
		item.SourceURL = legacy.URL
	}
	if item.ArtifactPath == "" {
		item.ArtifactPath = legacy.FilePath
	}
	if item.Label == "" {
		item.Label = Label(strings.TrimSpace(legacy.Annotation))
	}
	if item.HarvestedAt.IsZero() && legacy.ScrapedAt != "" {
		if at, err := time.ParseInLocation(legacyTimeLayout, legacy.ScrapedAt, time.Local); err == nil {
			item.HarvestedAt = at.UTC()
		}
	}
	if item.Title == legacyTitle {
		item.Title = ""
	}
	*i = Item(item)
	return nil
}

// Downloaded reports whether the artifact was stored locally.
func (i Item) Downloaded() bool {
	return i.ArtifactPath != ""
}

// Labeled reports whether enrichment has processed the item.
func (i Item) Labeled() bool {
	return i.Label != ""
}

// ParsedItem carries the fields extracted from one item page.
type ParsedItem struct {
	Title       string
	Authors     string
	Year        int
	SourceURL   string
	ArtifactURL string
}

// Page is a fetched HTML document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

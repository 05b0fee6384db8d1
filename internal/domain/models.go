package domain

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// QueryKind distinguishes the recent feed from a text search
type QueryKind int

const (
	// QueryRecent is the unfiltered recent photos feed
	QueryRecent QueryKind = iota
	// QuerySearch is a text search
	QuerySearch
)

func (k QueryKind) String() string {
	switch k {
	case QueryRecent:
		return "recent"
	case QuerySearch:
		return "search"
	default:
		return "unknown"
	}
}

// ListQuery is the correlation key for every piece of cached list data.
// The zero value is the recent feed. Two queries are equal (==) iff both are
// recent or both are searches for the same text.
type ListQuery struct {
	kind QueryKind
	text string
}

// Recent returns the recent feed query
func Recent() ListQuery {
	return ListQuery{kind: QueryRecent}
}

// Search returns a search query for text. Blank text yields the recent query,
// so a search query always carries non-blank text.
func Search(text string) ListQuery {
	if strings.TrimSpace(text) == "" {
		return Recent()
	}
	return ListQuery{kind: QuerySearch, text: text}
}

// QueryForText maps raw input text to the query it commits to. Input is
// NFC-normalized: composed and decomposed spellings of "café" are the same
// search and must not trigger a reload or a second snapshot.
func QueryForText(text string) ListQuery {
	return Search(norm.NFC.String(text))
}

// Kind returns the query kind
func (q ListQuery) Kind() QueryKind {
	return q.kind
}

// Text returns the search text, empty for the recent feed
func (q ListQuery) Text() string {
	return q.text
}

// IsSearch reports whether q is a text search
func (q ListQuery) IsSearch() bool {
	return q.kind == QuerySearch
}

// Equal reports whether q and other address the same feed
func (q ListQuery) Equal(other ListQuery) bool {
	return q == other
}

func (q ListQuery) String() string {
	if q.IsSearch() {
		return fmt.Sprintf("search(%q)", q.text)
	}
	return "recent"
}

// PhotoSummary is a single photo in a list page
type PhotoSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	OwnerName    string `json:"owner_name"`
	DateTaken    string `json:"date_taken,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Secret       string `json:"secret"`
	Server       string `json:"server"`
}

// Thumbnail returns the thumbnail URL, deriving it from server and secret
// when the source did not supply one
func (p PhotoSummary) Thumbnail() string {
	if p.ThumbnailURL != "" {
		return p.ThumbnailURL
	}
	if p.Server == "" || p.Secret == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s_%s_q.jpg", StaticPhotoHost, p.Server, p.ID, p.Secret)
}

// StaticPhotoHost serves photo image files
const StaticPhotoHost = "https://live.staticflickr.com"

// Page is one page of a list result
type Page struct {
	Items      []PhotoSummary `json:"items"`
	PageNumber int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	Total      int            `json:"total"`
}

// HasMore reports whether pages remain after this one
func (p *Page) HasMore() bool {
	return p.PageNumber < p.TotalPages
}

// IDs returns the photo IDs in page order
func (p *Page) IDs() []string {
	return PhotoIDs(p.Items)
}

// PhotoIDs returns the IDs of items in order
func PhotoIDs(items []PhotoSummary) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// PhotoDetail is the full record shown on a detail view
type PhotoDetail struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	OwnerName     string `json:"owner_name"`
	DateTaken     string `json:"date_taken,omitempty"`
	LargeImageURL string `json:"large_image_url,omitempty"`
	Description   string `json:"description,omitempty"`
}

// PollSnapshot is the persisted record of the first page last seen for the
// active search. FirstPageIDs keeps fetch order but is compared as a set.
type PollSnapshot struct {
	Query        string    `json:"query" yaml:"query"`
	FirstPageIDs []string  `json:"first_page_ids" yaml:"first_page_ids"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// IsActive reports whether the snapshot has anything to reconcile
func (s *PollSnapshot) IsActive() bool {
	return s != nil && strings.TrimSpace(s.Query) != "" && len(s.FirstPageIDs) > 0
}

// Clone returns a deep copy; nil stays nil
func (s *PollSnapshot) Clone() *PollSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.FirstPageIDs = append([]string(nil), s.FirstPageIDs...)
	return &c
}

// IDSet returns FirstPageIDs as a set
func (s *PollSnapshot) IDSet() map[string]struct{} {
	return IDSet(s.FirstPageIDs)
}

// IDSet builds a set from ids
func IDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// SameIDSet reports whether a and b contain the same IDs, ignoring order
// and duplicates
func SameIDSet(a, b []string) bool {
	setA := IDSet(a)
	setB := IDSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for id := range setA {
		if _, ok := setB[id]; !ok {
			return false
		}
	}
	return true
}

// ScheduleRequest describes a periodic task registration
type ScheduleRequest struct {
	TaskID          string
	Period          time.Duration
	InitialDelay    time.Duration
	ReplaceExisting bool
}

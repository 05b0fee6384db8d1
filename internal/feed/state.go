// Package feed is the foreground list engine: the pagination state machine,
// its debounced query input and the freshness watcher that reloads the list
// when the background poller records a different first page.
package feed

import (
	"fmt"

	"github.com/quantmind-br/photofeed/internal/domain"
)

// ListState is the authoritative foreground list state. It is one of
// Loading, Loaded, Empty or Error.
type ListState interface {
	isListState()
}

// Loading is a replace load in flight
type Loading struct {
	Query domain.ListQuery
}

// Loaded shows items for Query. Items never hold duplicate IDs. FirstPage
// holds the IDs the replace load returned and is not touched by appends.
type Loaded struct {
	Query         domain.ListQuery
	Items         []domain.PhotoSummary
	FirstPage     []string
	CurrentPage   int
	TotalPages    int
	IsLoadingMore bool
}

// Empty is a successful load with no items
type Empty struct {
	Query domain.ListQuery
}

// Error is a failed replace load; Retry reloads
type Error struct {
	Query domain.ListQuery
	Cause error
}

func (Loading) isListState() {}
func (Loaded) isListState()  {}
func (Empty) isListState()   {}
func (Error) isListState()   {}

// HasMore reports whether another page can be appended
func (s Loaded) HasMore() bool {
	return s.CurrentPage < s.TotalPages
}

// QueryOf returns the query a state belongs to
func QueryOf(s ListState) domain.ListQuery {
	switch st := s.(type) {
	case Loading:
		return st.Query
	case Loaded:
		return st.Query
	case Empty:
		return st.Query
	case Error:
		return st.Query
	default:
		panic(fmt.Sprintf("feed: unknown state %T", s))
	}
}

// StateName is a short label for logs and metrics
func StateName(s ListState) string {
	switch s.(type) {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Empty:
		return "empty"
	case Error:
		return "error"
	default:
		panic(fmt.Sprintf("feed: unknown state %T", s))
	}
}

// Action is an input to the machine
type Action interface {
	isAction()
}

// LoadInitial replace-loads the query for the current input text
type LoadInitial struct{}

// QueryChanged records new input text and restarts the debounce
type QueryChanged struct {
	Text string
}

// SubmitQuery commits Text immediately, skipping the quiet period
type SubmitQuery struct {
	Text string
}

// LoadNextPage appends the next page when one is available
type LoadNextPage struct{}

// OpenItem asks to navigate to a photo
type OpenItem struct {
	ID string
}

// Retry replace-loads the query for the current input text
type Retry struct{}

// Refresh replace-loads the query currently displayed
type Refresh struct{}

// ClearSearch drops the active search and goes back to recent photos
type ClearSearch struct{}

func (LoadInitial) isAction()  {}
func (QueryChanged) isAction() {}
func (SubmitQuery) isAction()  {}
func (LoadNextPage) isAction() {}
func (OpenItem) isAction()     {}
func (Retry) isAction()        {}
func (Refresh) isAction()      {}
func (ClearSearch) isAction()  {}

// Event is a one-shot signal for the presentation layer
type Event interface {
	isEvent()
}

// NavigateToDetail asks the presentation layer to show one photo. Secret is
// set when the photo is in the displayed list.
type NavigateToDetail struct {
	ID     string
	Secret string
}

func (NavigateToDetail) isEvent() {}

// appendUnique returns existing followed by the items of incoming whose IDs
// have not been seen, keeping first-seen order. Neither input is modified.
func appendUnique(existing, incoming []domain.PhotoSummary) []domain.PhotoSummary {
	out := make([]domain.PhotoSummary, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, batch := range [][]domain.PhotoSummary{existing, incoming} {
		for _, item := range batch {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

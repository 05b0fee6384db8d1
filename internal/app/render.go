package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/feed"
)

// renderer prints state changes incrementally: an append prints only the
// new rows
type renderer struct {
	out   io.Writer
	query domain.ListQuery
	first string
	shown int
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) render(st feed.ListState) {
	switch st := st.(type) {
	case feed.Loading:
		r.reset(st.Query)
		fmt.Fprintf(r.out, "Loading %s...\n", describe(st.Query))
	case feed.Empty:
		r.reset(st.Query)
		if st.Query.IsSearch() {
			fmt.Fprintf(r.out, "No photos match %q.\n", st.Query.Text())
		} else {
			fmt.Fprintln(r.out, "No recent photos.")
		}
	case feed.Error:
		r.reset(st.Query)
		fmt.Fprintf(r.out, "Could not load %s: %v\nType :retry to try again.\n", describe(st.Query), st.Cause)
	case feed.Loaded:
		// a reload may arrive without a visible Loading in between
		if !st.Query.Equal(r.query) || r.shown > len(st.Items) || st.Items[0].ID != r.first {
			r.reset(st.Query)
			r.first = st.Items[0].ID
		}
		if r.shown == 0 && len(st.Items) > 0 {
			fmt.Fprintf(r.out, "%s, page %d of %d:\n", capitalize(describe(st.Query)), st.CurrentPage, st.TotalPages)
		}
		for _, item := range st.Items[r.shown:] {
			fmt.Fprintf(r.out, "  %-12s %s (%s)\n", item.ID, item.Title, item.OwnerName)
		}
		r.shown = len(st.Items)

		switch {
		case st.IsLoadingMore:
			fmt.Fprintln(r.out, "Loading more...")
		case st.HasMore():
			fmt.Fprintf(r.out, "Showing %d photos. Type :next for more.\n", len(st.Items))
		default:
			fmt.Fprintf(r.out, "Showing all %d photos.\n", len(st.Items))
		}
	}
}

func (r *renderer) reset(q domain.ListQuery) {
	r.query = q
	r.first = ""
	r.shown = 0
}

func renderDetail(out io.Writer, d *domain.PhotoDetail) {
	fmt.Fprintf(out, "%s\n  by %s\n", d.Title, d.OwnerName)
	if d.DateTaken != "" {
		fmt.Fprintf(out, "  taken %s\n", d.DateTaken)
	}
	if d.LargeImageURL != "" {
		fmt.Fprintf(out, "  %s\n", d.LargeImageURL)
	}
	if d.Description != "" {
		fmt.Fprintf(out, "\n  %s\n", strings.ReplaceAll(d.Description, "\n", "\n  "))
	}
}

func describe(q domain.ListQuery) string {
	if q.IsSearch() {
		return fmt.Sprintf("results for %q", q.Text())
	}
	return "recent photos"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Package poll reconciles the persisted active-search snapshot against the
// remote feed and reports photos that appeared since it was last seen.
package poll

import "github.com/quantmind-br/photofeed/internal/domain"

// TaskID is the single scheduler identity of the poll job
const TaskID = "photos_poll"

// Reconcile compares a fetched first page against the previous snapshot.
// added holds the fetched IDs absent from prev, in fetch order. The
// comparison is by set membership, so reordering alone adds nothing.
func Reconcile(prev *domain.PollSnapshot, page *domain.Page) (next *domain.PollSnapshot, added []string) {
	if prev == nil {
		prev = &domain.PollSnapshot{}
	}
	ids := page.IDs()
	seen := prev.IDSet()

	reported := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := reported[id]; ok {
			continue
		}
		reported[id] = struct{}{}
		added = append(added, id)
	}

	next = &domain.PollSnapshot{
		Query:        prev.Query,
		FirstPageIDs: ids,
	}
	return next, added
}

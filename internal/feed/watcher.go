package feed

import (
	"context"

	"github.com/quantmind-br/photofeed/internal/domain"
)

// watch forwards snapshot changes into the loop for the session lifetime
func (m *Machine) watch(ctx context.Context) {
	for snap := range m.store.Changes(ctx) {
		if !m.post(snapshotChanged{snap: snap}) {
			return
		}
	}
}

// staleQuery returns the query to reload when snap records a first page
// that differs from the one on screen. Only a settled view of the same
// search is compared; loading and failed views are left alone.
func staleQuery(state ListState, snap *domain.PollSnapshot) (domain.ListQuery, bool) {
	if snap == nil {
		return domain.ListQuery{}, false
	}
	target := domain.Search(snap.Query)
	if !target.IsSearch() {
		return domain.ListQuery{}, false
	}

	var displayed []string
	switch st := state.(type) {
	case Loaded:
		if !st.Query.Equal(target) {
			return domain.ListQuery{}, false
		}
		displayed = st.FirstPage
	case Empty:
		if !st.Query.Equal(target) {
			return domain.ListQuery{}, false
		}
	case Loading, Error:
		return domain.ListQuery{}, false
	}

	if domain.SameIDSet(displayed, snap.FirstPageIDs) {
		return domain.ListQuery{}, false
	}
	return target, true
}

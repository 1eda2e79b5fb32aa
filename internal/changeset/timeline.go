package changeset

import (
	"sort"
	"time"
)

// TimelineEntry is one event in a changeset's chronological history.
type TimelineEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Kind      string      `json:"kind"`
	Summary   string      `json:"summary"`
	Detail    interface{} `json:"detail,omitempty"`
}

// Timeline flattens a changeset's history (creation, handoffs, decisions,
// artifacts, conflicts) into one chronological list, oldest first.
func (t *Tracker) Timeline(id string) ([]TimelineEntry, error) {
	cs, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	entries := []TimelineEntry{{
		Timestamp: cs.CreatedAt,
		Kind:      "created",
		Summary:   cs.OriginalRequest,
	}}
	for _, h := range cs.Handoffs {
		entries = append(entries, TimelineEntry{
			Timestamp: h.CreatedAt,
			Kind:      "handoff",
			Summary:   h.SourceDomain + " -> " + h.TargetDomain,
			Detail:    h,
		})
		if h.CompletedAt != nil {
			entries = append(entries, TimelineEntry{
				Timestamp: *h.CompletedAt,
				Kind:      "handoff_completed",
				Summary:   h.SourceDomain + " -> " + h.TargetDomain,
			})
		}
	}
	for _, d := range cs.Decisions {
		entries = append(entries, TimelineEntry{
			Timestamp: d.CreatedAt,
			Kind:      "decision",
			Summary:   d.Decision,
			Detail:    d,
		})
	}
	for _, a := range cs.Artifacts {
		entries = append(entries, TimelineEntry{
			Timestamp: a.CreatedAt,
			Kind:      "artifact",
			Summary:   a.Name,
			Detail:    a,
		})
	}
	for _, c := range cs.Conflicts {
		entries = append(entries, TimelineEntry{
			Timestamp: c.CreatedAt,
			Kind:      "conflict",
			Summary:   c.Description,
			Detail:    c,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func sortByCreated(sets []*Changeset) {
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].CreatedAt.After(sets[j].CreatedAt)
	})
}

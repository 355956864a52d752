package replay

import (
	"fmt"
	"sort"

	"github.com/botjam/stage/internal/domain"
)

// Result is the reconstructed stage state at a point in song time.
type Result struct {
	VisibleEvents []domain.Event `json:"visibleEvents"`
	Code          string         `json:"code"`
	Warnings      []string       `json:"warnings"`
}

// ToTime folds all patch events with atMs <= targetAtMs into the program
// text shown at that song time. Events are re-sorted by (atMs, id) on every
// call, so the result is independent of arrival order; a patch that fails to
// apply is skipped with a warning and never aborts the replay. Calling ToTime
// twice with the same inputs yields identical output.
func ToTime(events []domain.Event, targetAtMs int64) Result {
	visible := make([]domain.Event, 0, len(events))
	for _, event := range events {
		if event.AtMs <= targetAtMs {
			visible = append(visible, event)
		}
	}
	sort.SliceStable(visible, func(a, b int) bool {
		if visible[a].AtMs == visible[b].AtMs {
			return visible[a].ID < visible[b].ID
		}
		return visible[a].AtMs < visible[b].AtMs
	})

	code := ""
	warnings := []string{}

	for _, event := range visible {
		if event.Type != domain.EventTypePatch || event.Patch == nil {
			continue
		}
		next, err := Apply(code, *event.Patch)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Patch event %d failed: %s", event.ID, err))
			continue
		}
		code = next
	}

	return Result{VisibleEvents: visible, Code: code, Warnings: warnings}
}

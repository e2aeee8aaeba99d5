package aggregator

import (
	"synthsite/models"
)

// Phase is the progressive render stage a view belongs to
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseCache    Phase = "cache"
	PhaseSkeleton Phase = "skeleton"
	PhaseLive     Phase = "live"
)

// StatusKind says why the grid shows a status message instead of, or next to, items
type StatusKind string

const (
	StatusNone      StatusKind = ""
	StatusLoading   StatusKind = "loading"
	StatusNoFilters StatusKind = "no-filters"
	StatusNoMatches StatusKind = "no-matches"
	StatusNoContent StatusKind = "no-content"
)

var statusTexts = map[StatusKind]string{
	StatusLoading:   "Inhalte werden geladen...",
	StatusNoFilters: "Kein Filter aktiv. Wähle mindestens eine Plattform aus.",
	StatusNoMatches: "Für die gewählten Plattformen gibt es noch keine Beiträge.",
	StatusNoContent: "Inhalte konnten nicht geladen werden.",
}

const (
	latestLoadingText     = "Video wird geladen..."
	latestUnavailableText = "Noch keine Videos verfügbar."
)

// StatusText is the user facing message for a status kind
func StatusText(kind StatusKind) string {
	return statusTexts[kind]
}

// FilterState is one toggle in the filter bar
type FilterState struct {
	Source models.Source `json:"source"`
	Label  string        `json:"label"`
	Active bool          `json:"active"`
	Count  int           `json:"count"`
}

// View is an immutable snapshot handed to renderers
type View struct {
	Phase Phase `json:"phase"`
	// Latest is the most recent YouTube item, nil when there is none
	Latest     *models.MediaItem  `json:"latest,omitempty"`
	LatestText string             `json:"latestText,omitempty"`
	Grid       []models.MediaItem `json:"grid"`
	StatusKind StatusKind         `json:"statusKind,omitempty"`
	StatusText string             `json:"statusText,omitempty"`
	// Retry is set when the retry control should be offered
	Retry   bool          `json:"retry"`
	Filters []FilterState `json:"filters"`
	Cycle   int64         `json:"cycle"`
}

// buildView derives the render snapshot from merged items and the active filters
func buildView(phase Phase, items []models.MediaItem, filters FilterSet, cycle int64) View {
	view := View{
		Phase: phase,
		Grid:  []models.MediaItem{},
		Cycle: cycle,
	}

	for _, source := range models.AllSources {
		count := 0
		for _, item := range items {
			if item.Source == source {
				count++
			}
		}
		view.Filters = append(view.Filters, FilterState{
			Source: source,
			Label:  source.Label(),
			Active: filters.Active(source),
			Count:  count,
		})
	}

	if phase == PhaseSkeleton {
		view.LatestText = latestLoadingText
		view.StatusKind = StatusLoading
		view.StatusText = StatusText(StatusLoading)
		return view
	}

	if latest, ok := LatestYouTube(items); ok {
		view.Latest = &latest
	} else {
		view.LatestText = latestUnavailableText
	}

	switch {
	case len(items) == 0:
		view.StatusKind = StatusNoContent
		view.Retry = phase == PhaseLive
	case len(filters) == 0:
		view.StatusKind = StatusNoFilters
	default:
		view.Grid = Filter(items, filters)
		if len(view.Grid) == 0 {
			view.StatusKind = StatusNoMatches
		}
	}
	view.StatusText = StatusText(view.StatusKind)
	return view
}

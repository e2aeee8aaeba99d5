package aggregator

import (
	"github.com/samber/lo"

	"synthsite/models"
)

// FilterSet is the set of sources currently shown in the grid. The empty set
// is valid and hides everything.
type FilterSet map[models.Source]struct{}

// AllFilters returns a set with every known source active
func AllFilters() FilterSet {
	return NewFilterSet(models.AllSources...)
}

func NewFilterSet(sources ...models.Source) FilterSet {
	set := make(FilterSet, len(sources))
	for _, source := range sources {
		set[source] = struct{}{}
	}
	return set
}

func (f FilterSet) Active(source models.Source) bool {
	_, ok := f[source]
	return ok
}

// Toggle flips source and reports whether it is active afterwards
func (f FilterSet) Toggle(source models.Source) bool {
	if f.Active(source) {
		delete(f, source)
		return false
	}
	f[source] = struct{}{}
	return true
}

// Sources lists the active sources in display order
func (f FilterSet) Sources() []models.Source {
	return lo.Filter(models.AllSources, func(source models.Source, _ int) bool {
		return f.Active(source)
	})
}

func (f FilterSet) clone() FilterSet {
	return NewFilterSet(f.Sources()...)
}

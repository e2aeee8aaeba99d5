package aggregator

import (
	"sort"

	"github.com/samber/lo"

	"synthsite/models"
)

// Merge concatenates the lists, keeps the first item per URL and orders the
// result newest first. Items without a timestamp go last, in input order.
func Merge(lists ...[]models.MediaItem) []models.MediaItem {
	merged := lo.UniqBy(lo.Flatten(lists), func(item models.MediaItem) string {
		return item.Url
	})

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].Published, merged[j].Published
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a > b
	})
	return merged
}

// Filter keeps the items whose source is active
func Filter(items []models.MediaItem, filters FilterSet) []models.MediaItem {
	return lo.Filter(items, func(item models.MediaItem, _ int) bool {
		return filters.Active(item.Source)
	})
}

// LatestYouTube returns the most recent YouTube item of a merged list
func LatestYouTube(items []models.MediaItem) (models.MediaItem, bool) {
	return lo.Find(items, func(item models.MediaItem) bool {
		return item.Source == models.SourceYouTube
	})
}

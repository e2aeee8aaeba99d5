package render_test

import (
	"bytes"
	"strings"
	"synthsite/aggregator"
	"synthsite/models"
	"synthsite/render"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTML(t *testing.T) *render.HTML {
	t.Helper()
	titles, err := models.NewTitleFormatter(`(?i)^iamb\s*synthmusic\s*[-–—:]\s*`)
	require.NoError(t, err)
	h, err := render.NewHTML(titles, "de", "IAMB")
	require.NoError(t, err)
	return h
}

func liveView() aggregator.View {
	video := models.MediaItem{
		Title:     "IAMB Synthmusic - Night Drive",
		Url:       "https://www.youtube.com/watch?v=AAAAAAAAAAA",
		Thumbnail: "https://i.ytimg.com/vi/AAAAAAAAAAA/hqdefault.jpg",
		Source:    models.SourceYouTube,
	}
	post := models.MediaItem{
		Title:     "<b>not markup</b>",
		Url:       "https://www.instagram.com/p/X/",
		Thumbnail: "https://www.instagram.com/p/X/media/?size=l",
		Source:    models.SourceInstagram,
	}
	return aggregator.View{
		Phase:  aggregator.PhaseLive,
		Latest: &video,
		Grid:   []models.MediaItem{video, post},
		Filters: []aggregator.FilterState{
			{Source: models.SourceYouTube, Label: "YouTube", Active: true, Count: 1},
			{Source: models.SourceInstagram, Label: "Instagram", Active: false, Count: 1},
		},
	}
}

func TestRenderLivePage(t *testing.T) {
	h := newHTML(t)
	h.Render(liveView())

	page := string(h.Page())
	assert.Contains(t, page, `<canvas id="starfield"`)
	assert.Contains(t, page, `id="latest-video-card"`)
	assert.Contains(t, page, "<h2>Night Drive</h2>")
	assert.Contains(t, page, "Keine Beschreibung verfügbar.")
	assert.Contains(t, page, `data-filter="instagram" aria-pressed="false"`)
	assert.Equal(t, 2, strings.Count(page, "data-animate"))
	assert.Contains(t, page, "&lt;b&gt;not markup&lt;/b&gt;")
	assert.Contains(t, page, "YouTube Upload")
	assert.NotContains(t, page, "feed-retry")

	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, page, buf.String())
}

func TestRenderStatusAndRetry(t *testing.T) {
	h := newHTML(t)
	h.Render(aggregator.View{
		Phase:      aggregator.PhaseLive,
		LatestText: "Noch keine Videos verfügbar.",
		StatusKind: aggregator.StatusNoContent,
		StatusText: aggregator.StatusText(aggregator.StatusNoContent),
		Retry:      true,
	})

	page := string(h.Page())
	assert.Contains(t, page, `data-status="no-content"`)
	assert.Contains(t, page, `id="feed-retry" data-action="retry"`)
	assert.Contains(t, page, "Noch keine Videos verfügbar.")
}

func TestRenderSkeleton(t *testing.T) {
	h := newHTML(t)
	h.Render(aggregator.View{Phase: aggregator.PhaseSkeleton})
	assert.Equal(t, 6, strings.Count(string(h.Page()), "release-card skeleton"))
}

func TestFragments(t *testing.T) {
	h := newHTML(t)
	fragments, err := h.Fragments(liveView())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(fragments[render.FragmentLatest], `<section id="latest-video-card"`))
	assert.True(t, strings.HasPrefix(fragments[render.FragmentFilters], `<nav id="feed-filters"`))
	assert.True(t, strings.HasPrefix(fragments[render.FragmentGrid], `<section id="feed-grid"`))
}

func TestMultiFansOut(t *testing.T) {
	var got []aggregator.Phase
	m := render.Multi{
		render.Func(func(v aggregator.View) { got = append(got, v.Phase) }),
		nil,
		render.Func(func(v aggregator.View) { got = append(got, v.Phase) }),
	}
	m.Render(aggregator.View{Phase: aggregator.PhaseCache})
	assert.Equal(t, []aggregator.Phase{aggregator.PhaseCache, aggregator.PhaseCache}, got)
}

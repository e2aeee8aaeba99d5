// Package render turns aggregator views into the page markup. The HTML
// renderer keeps the last page so HTTP handlers can serve it without
// re-running a load cycle.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"synthsite/aggregator"
	"synthsite/models"
)

//go:embed page.html.tmpl
var templates embed.FS

const (
	latestDescriptionLength = 220
	cardDescriptionLength   = 120
	skeletonCards           = 6

	noDescription = "Keine Beschreibung verfügbar."
)

// Fragment ids, shared with the page script
const (
	FragmentLatest  = "latest-video-card"
	FragmentFilters = "feed-filters"
	FragmentGrid    = "feed-grid"
)

type page struct {
	Lang     string
	Title    string
	View     aggregator.View
	Latest   *models.MediaItem
	Cards    []models.MediaItem
	Skeleton []int
}

// HTML renders the page and keeps the latest result in memory
type HTML struct {
	tmpl   *template.Template
	titles *models.TitleFormatter
	lang   string
	title  string

	mu   sync.RWMutex
	page []byte
	data page
}

func NewHTML(titles *models.TitleFormatter, lang, title string) (*HTML, error) {
	tmpl, err := template.ParseFS(templates, "page.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &HTML{tmpl: tmpl, titles: titles, lang: lang, title: title}, nil
}

// Render implements aggregator.Renderer
func (h *HTML) Render(view aggregator.View) {
	data := h.prepare(view)

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		log.WithError(err).Error("Error rendering page")
		return
	}

	h.mu.Lock()
	h.page = buf.Bytes()
	h.data = data
	h.mu.Unlock()
}

// WriteTo writes the last rendered page
func (h *HTML) WriteTo(w io.Writer) (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, err := w.Write(h.page)
	return int64(n), err
}

// Page returns a copy of the last rendered page
func (h *HTML) Page() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]byte(nil), h.page...)
}

// Fragments renders the replaceable page regions of a view, keyed by element id
func (h *HTML) Fragments(view aggregator.View) (map[string]string, error) {
	data := h.prepare(view)
	fragments := make(map[string]string, 3)
	for id, name := range map[string]string{
		FragmentLatest:  "latest",
		FragmentFilters: "filters",
		FragmentGrid:    "grid",
	} {
		var buf bytes.Buffer
		if err := h.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			return nil, fmt.Errorf("render %s: %w", id, err)
		}
		fragments[id] = buf.String()
	}
	return fragments, nil
}

// prepare formats titles and descriptions for display
func (h *HTML) prepare(view aggregator.View) page {
	data := page{
		Lang:  h.lang,
		Title: h.title,
		View:  view,
		Cards: lo.Map(view.Grid, func(item models.MediaItem, _ int) models.MediaItem {
			return h.card(item)
		}),
	}

	if view.Latest != nil {
		latest := *view.Latest
		latest.Title = h.titles.Format(latest.Title)
		latest.Description = models.Truncate(lo.Ternary(latest.Description != "", latest.Description, noDescription), latestDescriptionLength)
		data.Latest = &latest
	}
	if view.Phase == aggregator.PhaseSkeleton {
		data.Skeleton = lo.Range(skeletonCards)
	}
	return data
}

func (h *HTML) card(item models.MediaItem) models.MediaItem {
	if item.Source == models.SourceYouTube {
		item.Title = h.titles.Format(item.Title)
	}
	description := item.Description
	if description == "" {
		description = item.Source.Label() + " Upload"
	}
	item.Description = models.Truncate(description, cardDescriptionLength)
	return item
}

package render

import (
	"synthsite/aggregator"
)

// Multi fans a view out to several renderers, in order
type Multi []aggregator.Renderer

func (m Multi) Render(view aggregator.View) {
	for _, r := range m {
		if r != nil {
			r.Render(view)
		}
	}
}

// Func adapts a function to aggregator.Renderer
type Func func(view aggregator.View)

func (f Func) Render(view aggregator.View) {
	f(view)
}

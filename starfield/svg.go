package starfield

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
)

const background = "#05060d"

type circle struct {
	x, y, r, alpha float64
}

// SVG is a Surface that keeps the last complete frame and writes it as an SVG
// document. Coordinates are CSS px, the backing size only sets the pixel dimensions.
type SVG struct {
	mu      sync.Mutex
	width   int
	height  int
	scale   float64
	frame   []circle
	drawing []circle
}

func NewSVG() *SVG {
	return &SVG{scale: 1}
}

func (s *SVG) SetSize(width, height int, scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height, s.scale = width, height, scale
}

// Clear starts a new frame. The previous frame stays readable until Present.
func (s *SVG) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = make([]circle, 0, len(s.frame))
}

func (s *SVG) DrawPoint(x, y, radius, alpha float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = append(s.drawing, circle{x: x, y: y, r: radius, alpha: alpha})
}

// Present publishes the frame drawn since the last Clear
func (s *SVG) Present() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = s.drawing
	s.drawing = nil
}

// Circles counts the points of the last complete frame
func (s *SVG) Circles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frame)
}

func (s *SVG) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cw := &countingWriter{w: bufio.NewWriter(w)}
	viewW, viewH := float64(s.width)/s.scale, float64(s.height)/s.scale
	fmt.Fprintf(cw, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %.2f %.2f">`, s.width, s.height, viewW, viewH)
	fmt.Fprintf(cw, `<rect width="100%%" height="100%%" fill="%s"/>`, background)
	for _, c := range s.frame {
		fmt.Fprintf(cw, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="#fff" fill-opacity="%.3f"/>`, c.x, c.y, c.r, c.alpha)
	}
	fmt.Fprint(cw, "</svg>")

	if err := cw.w.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil && c.err == nil {
		c.err = err
	}
	return n, err
}

// SnapshotOptions describe a single rendered frame
type SnapshotOptions struct {
	Width, Height, DPR float64
	Seed               uint64
	// Frames to simulate before the snapshot
	Frames  int
	Reduced bool
}

// Snapshot simulates a field and returns the surface holding its last frame
func Snapshot(opts SnapshotOptions) *SVG {
	surface := NewSVG()
	scheduler := NewManualScheduler()
	field := NewField(surface, scheduler, WithRand(rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))))
	field.SetReducedMotion(opts.Reduced)
	field.Resize(opts.Width, opts.Height, opts.DPR)
	field.Start()

	frames := max(opts.Frames, 1)
	ts := 0.0
	scheduler.Step(ts)
	for i := 0; i < frames; i++ {
		ts += frameMillis
		scheduler.Step(ts)
	}
	field.Stop()
	return surface
}

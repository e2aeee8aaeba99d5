// Package starfield simulates the decorative point field drawn behind the
// page. The field is driven by a Scheduler and draws onto a Surface, so the
// same simulation runs against a browser canvas bridge, an SVG snapshot or a
// test double.
package starfield

import (
	"math"
	"math/rand/v2"
	"sync"
)

const (
	// Density is the viewport area, in CSS px², per point
	Density = 4800
	// ResizeTolerance ignores dimension jitter, in CSS px
	ResizeTolerance = 2
	// MaxFrameDelta caps catch-up after a suspended tab resumes
	MaxFrameDelta = 4

	frameMillis    = 1000.0 / 60
	edgeMargin     = 2
	parallax       = 14
	pointerRange   = 0.6
	twinkleSpeed   = 0.002
	minRadius      = 0.15
	radiusSpread   = 1.8
	minSpeed       = 0.04
	speedSpread    = 0.35
	reducedMotion  = 0.25
	reducedTwinkle = 0.6
	coarseMotion   = 0.4
)

// Point is one decorative dot. Radius, Speed and Twinkle are fixed at creation.
type Point struct {
	X, Y    float64
	Radius  float64
	Speed   float64
	Twinkle float64
}

// Surface is the drawing target
type Surface interface {
	// SetSize is called with the backing size and the device pixel scale
	SetSize(width, height int, scale float64)
	Clear()
	DrawPoint(x, y, radius, alpha float64)
}

// Presenter is implemented by surfaces that publish a frame once every
// point of it was drawn
type Presenter interface {
	Present()
}

// MediaQuery is a live boolean preference such as prefers-reduced-motion
type MediaQuery interface {
	Matches() bool
	// Subscribe calls fn on every change until the returned func is called
	Subscribe(fn func(matches bool)) (unsubscribe func())
}

// State is Running while frames are scheduled
type State int

const (
	Paused State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "paused"
}

type Option func(*Field)

// WithRand fixes the random source, used for reproducible snapshots
func WithRand(r *rand.Rand) Option {
	return func(f *Field) { f.rand = r }
}

type viewport struct {
	width, height, dpr float64
}

// Field owns the points and their animation lifecycle. All methods are safe
// for concurrent use; frame callbacks take the same lock.
type Field struct {
	surface   Surface
	scheduler Scheduler
	rand      *rand.Rand

	mu     sync.Mutex
	points []Point
	built  bool
	size   viewport

	requested     viewport
	resizeFrame   FrameID
	resizeWaiting bool

	frame   FrameID
	enabled bool
	visible bool
	scroll  bool

	lastTS  float64
	hasLast bool

	pointerX, pointerY float64
	reduced, coarse    bool
}

func NewField(surface Surface, scheduler Scheduler, opts ...Option) *Field {
	f := &Field{
		surface:   surface,
		scheduler: scheduler,
		visible:   true,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rand == nil {
		f.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return f
}

// TargetCount is the number of points for a viewport
func TargetCount(width, height float64) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return int(math.Floor(width * height / Density))
}

// Resize records a viewport change. The recompute happens on the next frame,
// at most once however many calls arrive, and waits while scrolling.
func (f *Field) Resize(width, height, dpr float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dpr <= 0 {
		dpr = 1
	}
	f.requested = viewport{width: width, height: height, dpr: dpr}
	if f.scroll {
		f.resizeWaiting = true
		return
	}
	f.scheduleResizeLocked()
}

func (f *Field) scheduleResizeLocked() {
	if f.resizeFrame != 0 {
		return
	}
	token := new(FrameID)
	*token = f.scheduler.RequestFrame(func(float64) {
		f.mu.Lock()
		defer f.mu.Unlock()
		// A cancelled request may already have been handed out
		if *token != f.resizeFrame {
			return
		}
		f.resizeFrame = 0
		f.applyResizeLocked()
	})
	f.resizeFrame = *token
}

func (f *Field) applyResizeLocked() {
	next := f.requested
	if f.built &&
		next.dpr == f.size.dpr &&
		math.Abs(next.width-f.size.width) <= ResizeTolerance &&
		math.Abs(next.height-f.size.height) <= ResizeTolerance {
		return
	}

	f.size = next
	if f.surface != nil {
		f.surface.SetSize(int(math.Floor(next.width*next.dpr)), int(math.Floor(next.height*next.dpr)), next.dpr)
	}

	target := TargetCount(next.width, next.height)
	if !f.built {
		f.points = make([]Point, 0, target)
		for len(f.points) < target {
			f.points = append(f.points, f.newPoint())
		}
		f.built = true
		return
	}

	for i := range f.points {
		f.points[i].X = clamp(f.points[i].X, 0, next.width)
		f.points[i].Y = clamp(f.points[i].Y, 0, next.height)
	}
	if len(f.points) > target {
		f.points = f.points[:target]
	}
	for len(f.points) < target {
		f.points = append(f.points, f.newPoint())
	}
}

// unit returns a uniform value in the open interval (0, 1)
func (f *Field) unit() float64 {
	for {
		if u := f.rand.Float64(); u > 0 {
			return u
		}
	}
}

func (f *Field) newPoint() Point {
	return Point{
		X:       f.rand.Float64() * f.size.width,
		Y:       f.rand.Float64() * f.size.height,
		Radius:  minRadius + radiusSpread*f.unit(),
		Speed:   minSpeed + speedSpread*f.unit(),
		Twinkle: 2 * math.Pi * f.unit(),
	}
}

// Tick advances every point by one frame and draws the field
func (f *Field) Tick(ts float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickLocked(ts)
}

func (f *Field) tickLocked(ts float64) {
	delta := 1.0
	if f.hasLast {
		delta = clamp((ts-f.lastTS)/frameMillis, 0, MaxFrameDelta)
	}
	f.lastTS = ts
	f.hasLast = true

	motion, twinkle := f.scalesLocked()
	if f.surface != nil {
		f.surface.Clear()
	}

	for i := range f.points {
		p := &f.points[i]
		p.Y += p.Speed * motion * delta
		if p.Y > f.size.height+edgeMargin {
			p.Y = -edgeMargin
			p.X = f.rand.Float64() * f.size.width
		}

		if f.surface == nil {
			continue
		}
		driftX := f.pointerX * p.Speed * parallax * motion
		driftY := f.pointerY * p.Speed * parallax * motion
		alpha := 0.5 + 0.5*twinkle*math.Sin(ts*twinkleSpeed+p.Twinkle)
		f.surface.DrawPoint(p.X+driftX, p.Y+driftY, p.Radius, alpha)
	}
	if presenter, ok := f.surface.(Presenter); ok {
		presenter.Present()
	}
}

func (f *Field) scalesLocked() (motion, twinkle float64) {
	switch {
	case f.reduced:
		return reducedMotion, reducedTwinkle
	case f.coarse:
		return coarseMotion, 1
	default:
		return 1, 1
	}
}

// PointerMove updates the parallax offset from a pointer position in CSS px
func (f *Field) PointerMove(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.size.width == 0 || f.size.height == 0 {
		return
	}
	f.pointerX = (x/f.size.width - 0.5) * pointerRange
	f.pointerY = (y/f.size.height - 0.5) * pointerRange
}

func (f *Field) SetReducedMotion(reduced bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reduced = reduced
}

func (f *Field) SetCoarsePointer(coarse bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coarse = coarse
}

// Watch follows both preferences until the returned func is called. Either query may be nil.
func (f *Field) Watch(reduced, coarse MediaQuery) (stop func()) {
	var unsubscribe []func()
	if reduced != nil {
		f.SetReducedMotion(reduced.Matches())
		unsubscribe = append(unsubscribe, reduced.Subscribe(f.SetReducedMotion))
	}
	if coarse != nil {
		f.SetCoarsePointer(coarse.Matches())
		unsubscribe = append(unsubscribe, coarse.Subscribe(f.SetCoarsePointer))
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}

// Start begins the frame loop. Calling it while running does nothing.
func (f *Field) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	f.syncLocked()
}

// Stop cancels the pending frame
func (f *Field) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	f.syncLocked()
}

// SetVisible pauses the loop while the page is hidden
func (f *Field) SetVisible(visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = visible
	f.syncLocked()
}

// ScrollStart pauses the loop and defers resizes until ScrollEnd
func (f *Field) ScrollStart() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scroll = true
	if f.resizeFrame != 0 {
		f.scheduler.CancelFrame(f.resizeFrame)
		f.resizeFrame = 0
		f.resizeWaiting = true
	}
	f.syncLocked()
}

func (f *Field) ScrollEnd() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scroll = false
	if f.resizeWaiting {
		f.resizeWaiting = false
		f.scheduleResizeLocked()
	}
	f.syncLocked()
}

// syncLocked moves between Running and Paused to match the current signals
func (f *Field) syncLocked() {
	want := f.enabled && f.visible && !f.scroll
	switch {
	case want && f.frame == 0:
		f.hasLast = false
		f.requestFrameLocked()
	case !want && f.frame != 0:
		f.scheduler.CancelFrame(f.frame)
		f.frame = 0
	}
}

// requestFrameLocked schedules the next frame. The token is written and read
// under mu, so a callback outliving its cancellation sees it is stale.
func (f *Field) requestFrameLocked() {
	token := new(FrameID)
	*token = f.scheduler.RequestFrame(func(ts float64) {
		f.onFrame(token, ts)
	})
	f.frame = *token
}

func (f *Field) onFrame(token *FrameID, ts float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if *token != f.frame {
		return
	}
	f.frame = 0
	if !(f.enabled && f.visible && !f.scroll) {
		return
	}
	f.tickLocked(ts)
	f.requestFrameLocked()
}

// State reports whether frames are scheduled
func (f *Field) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame != 0 {
		return Running
	}
	return Paused
}

// Points returns a copy of the current points
func (f *Field) Points() []Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Point(nil), f.points...)
}

// Size returns the applied viewport in CSS px and its pixel ratio
func (f *Field) Size() (width, height, dpr float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size.width, f.size.height, f.size.dpr
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

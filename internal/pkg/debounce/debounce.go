// Package debounce turns bursts of updates into a single trailing value.
package debounce

import (
	"sync"
	"time"
)

// Debouncer emits the latest value passed to Set once delay has elapsed with no
// further Set calls. Earlier values in the quiet window are dropped.
type Debouncer[T any] struct {
	delay time.Duration
	emit  func(T)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	value   T
}

// New creates a Debouncer that calls emit with the stable value.
func New[T any](delay time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, emit: emit}
}

// Set records v and restarts the quiet period.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.value = v
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// A timer that lost the race with Set or Stop must not emit.
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.emit(v)
}

// Flush emits a pending value immediately.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	v := d.value
	d.pending = false
	d.mu.Unlock()

	d.emit(v)
}

// Stop discards any pending value.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
}

// Pending reports whether a value is waiting for its quiet period.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Group debounces independent named fields, each with its own timer.
type Group[T any] struct {
	delay time.Duration
	emit  func(field string, v T)

	mu     sync.Mutex
	fields map[string]*Debouncer[T]
}

// NewGroup creates a Group that calls emit with the field name and its stable value.
func NewGroup[T any](delay time.Duration, emit func(field string, v T)) *Group[T] {
	return &Group[T]{delay: delay, emit: emit, fields: make(map[string]*Debouncer[T])}
}

// Set updates one field without touching the timers of the others.
func (g *Group[T]) Set(field string, v T) {
	g.mu.Lock()
	d, ok := g.fields[field]
	if !ok {
		d = New(g.delay, func(v T) { g.emit(field, v) })
		g.fields[field] = d
	}
	g.mu.Unlock()
	d.Set(v)
}

// Flush emits every pending field immediately.
func (g *Group[T]) Flush() {
	for _, d := range g.snapshot() {
		d.Flush()
	}
}

// Stop discards every pending field.
func (g *Group[T]) Stop() {
	for _, d := range g.snapshot() {
		d.Stop()
	}
}

func (g *Group[T]) snapshot() []*Debouncer[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Debouncer[T], 0, len(g.fields))
	for _, d := range g.fields {
		out = append(out, d)
	}
	return out
}

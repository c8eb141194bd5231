package visengine

import (
	"math"

	"github.com/samber/lo"
)

// ComponentShape is the geometric form of a model component (spec.md §3),
// grounded on difmap's model.h Modtyp enumeration.
type ComponentShape int

const (
	ShapeDelta ComponentShape = iota
	ShapeGaussian
	ShapeUniformDisk
	ShapeShell // optically-thin spherical shell
	ShapeRing
	ShapeRectangle
	ShapeSZ // Sunyaev-Zel'dovich profile
)

// FreeParam is a bitmask of which component parameters are free, grounded
// on difmap's model.h Modpar enumeration.
type FreeParam uint8

const (
	FreeFlux FreeParam = 1 << iota
	FreeCenter
	FreeMajor
	FreeRatio
	FreePhi
	FreeSpectralIndex
)

// ModelComponent is one component of a sky model.
type ModelComponent struct {
	Shape       ComponentShape
	Free        FreeParam
	Flux        float64
	X, Y        float64 // radians
	Major       float64 // radians
	AxialRatio  float64 // minor/major, < 1.0
	PositionAngle float64 // radians, N->E
	RefFreqHz   float64
	SpectralIndex float64

	next *ModelComponent
}

// HasFreeParam reports whether p is set in the component's free-parameter
// bitmask.
func (c *ModelComponent) HasFreeParam(p FreeParam) bool { return c.Free&p != 0 }

// IsVariable reports whether the component has any free parameter at all.
func (c *ModelComponent) IsVariable() bool { return c.Free != 0 }

// scaledFlux returns the component's flux scaled to refFreq via its
// spectral index, used when squashing deltas at the same sky position but
// (potentially) different reference frequencies.
func (c *ModelComponent) scaledFlux(refFreq float64) float64 {
	if c.SpectralIndex == 0 || c.RefFreqHz == 0 || refFreq == 0 {
		return c.Flux
	}
	return c.Flux * math.Pow(refFreq/c.RefFreqHz, c.SpectralIndex)
}

// Model is an owned, ordered list of components (spec.md §3), implemented
// as a genuine Go linked list: components move between the four model
// lists named on Observation rather than being aliased, per the design's
// "move, don't alias" re-architecture note.
type Model struct {
	head, tail *ModelComponent
	count      int
	flux       float64
	squashed   bool
	deltaOnly  bool
}

// NewModel returns an empty model, trivially squashed and delta-only.
func NewModel() *Model {
	return &Model{squashed: true, deltaOnly: true}
}

func (m *Model) Count() int      { return m.count }
func (m *Model) TotalFlux() float64 { return m.flux }
func (m *Model) IsSquashed() bool { return m.squashed }
func (m *Model) IsDeltaOnly() bool { return m.deltaOnly }

// IsZeroFlux reports whether the model is empty or carries no net flux.
func (m *Model) IsZeroFlux() bool { return m.count == 0 || m.flux == 0 }

// Components returns the list's components in order, as a slice snapshot
// (the underlying list is still linked; this is a read convenience).
func (m *Model) Components() []*ModelComponent {
	out := make([]*ModelComponent, 0, m.count)
	for c := m.head; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

// Clear empties the list.
func (m *Model) Clear() {
	m.head, m.tail = nil, nil
	m.count = 0
	m.flux = 0
	m.squashed = true
	m.deltaOnly = true
}

// appendTail links c onto the tail of the list.
func (m *Model) appendTail(c *ModelComponent) {
	c.next = nil
	if m.tail == nil {
		m.head, m.tail = c, c
	} else {
		m.tail.next = c
		m.tail = c
	}
	m.count++
	m.flux += c.Flux
	if c.Shape != ShapeDelta {
		m.deltaOnly = false
	}
}

// prependHead links c onto the head of the list.
func (m *Model) prependHead(c *ModelComponent) {
	c.next = m.head
	m.head = c
	if m.tail == nil {
		m.tail = c
	}
	m.count++
	m.flux += c.Flux
	if c.Shape != ShapeDelta {
		m.deltaOnly = false
	}
}

// Add appends (or prepends) a single component, optionally squashing it
// into a coincident existing delta as described in spec.md §4.10 "Squash".
func (m *Model) Add(c *ModelComponent, atHead, combine bool) {
	if combine && c.Shape == ShapeDelta {
		for e := m.head; e != nil; e = e.next {
			if e.Shape == ShapeDelta && e.X == c.X && e.Y == c.Y && e.SpectralIndex == c.SpectralIndex {
				e.Flux += c.scaledFlux(e.RefFreqHz)
				m.flux += c.Flux
				return
			}
		}
	}
	if atHead {
		m.prependHead(c)
	} else {
		m.appendTail(c)
	}
	m.squashed = false
}

// Splice moves all of other's components onto m (at head or tail),
// preserving other's internal order, and empties other. This is the "move,
// don't alias" primitive used by MergeModel/stream selection.
func (m *Model) Splice(other *Model, atHead bool) {
	if other.count == 0 {
		return
	}
	if atHead {
		other.tail.next = m.head
		if m.head == nil {
			m.tail = other.tail
		}
		m.head = other.head
	} else {
		if m.tail == nil {
			m.head = other.head
		} else {
			m.tail.next = other.head
		}
		m.tail = other.tail
	}
	m.count += other.count
	m.flux += other.flux
	if !other.deltaOnly {
		m.deltaOnly = false
	}
	m.squashed = false
	other.head, other.tail, other.count, other.flux = nil, nil, 0, 0
	other.squashed = true
	other.deltaOnly = true
}

// Copy returns an independent deep copy of the model's component list.
func (m *Model) Copy() *Model {
	cp := NewModel()
	for c := m.head; c != nil; c = c.next {
		nc := *c
		nc.next = nil
		cp.appendTail(&nc)
	}
	cp.squashed = m.squashed
	return cp
}

// Squash merges coincident delta components (same x, y, spectral index),
// summing flux scaled to a common reference frequency, and marks the model
// squashed. See spec.md §4.10 "Squash".
func (m *Model) Squash() {
	if m.squashed {
		return
	}
	deltas := lo.Filter(m.Components(), func(c *ModelComponent, _ int) bool { return c.Shape == ShapeDelta })
	others := lo.Filter(m.Components(), func(c *ModelComponent, _ int) bool { return c.Shape != ShapeDelta })

	type key struct {
		x, y, spcind float64
	}
	merged := map[key]*ModelComponent{}
	order := []key{}
	for _, c := range deltas {
		k := key{c.X, c.Y, c.SpectralIndex}
		if existing, ok := merged[k]; ok {
			existing.Flux += c.scaledFlux(existing.RefFreqHz)
		} else {
			nc := *c
			nc.next = nil
			merged[k] = &nc
			order = append(order, k)
		}
	}

	newModel := NewModel()
	// Preserve the original relative ordering as best as possible: replay
	// deltas in first-seen order, then the untouched non-delta components.
	for _, k := range order {
		newModel.appendTail(merged[k])
	}
	for _, c := range others {
		nc := *c
		nc.next = nil
		newModel.appendTail(&nc)
	}

	m.head, m.tail, m.count, m.flux, m.deltaOnly = newModel.head, newModel.tail, newModel.count, newModel.flux, newModel.deltaOnly
	m.squashed = true
}

// PartitionVariable redistributes components between est (fixed-parameter
// components) and tent (any free parameter), preserving each component's
// temporal/list order, per spec.md §4.10 "partition_variable".
func PartitionVariable(est, tent *Model) {
	all := append(est.Components(), tent.Components()...)
	est.Clear()
	tent.Clear()
	for _, c := range all {
		nc := *c
		nc.next = nil
		if nc.IsVariable() {
			tent.appendTail(&nc)
		} else {
			est.appendTail(&nc)
		}
	}
}

// WindowModel partitions list by whether each component's (x,y) lies
// inside any of windows; keepOutside selects which partition survives.
// Returns the discarded components (used by (*Observation).WindowModel to
// subtract their UV representation when operating on the established
// list).
func WindowModel(list *Model, windows []SkyWindow, keepOutside bool) []*ModelComponent {
	var keep, drop []*ModelComponent
	for _, c := range list.Components() {
		inside := lo.ContainsBy(windows, func(w SkyWindow) bool { return w.Contains(c.X, c.Y) })
		if inside == keepOutside {
			drop = append(drop, c)
		} else {
			keep = append(keep, c)
		}
	}
	list.Clear()
	for _, c := range keep {
		nc := *c
		nc.next = nil
		list.appendTail(&nc)
	}
	return drop
}

// SkyWindow is a rectangular region of the sky plane used by WindowModel.
type SkyWindow struct {
	XMin, XMax, YMin, YMax float64
}

// Contains reports whether (x,y) lies within the window.
func (w SkyWindow) Contains(x, y float64) bool {
	return x >= w.XMin && x <= w.XMax && y >= w.YMin && y <= w.YMax
}

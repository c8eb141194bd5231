package visengine

import "fmt"

// subArrayCursor walks one sub-array's integrations in array order,
// tracking the next unread integration — the per-sub-array "head" of
// spec.md §4.3's merge.
type subArrayCursor struct {
	sub  *SubArray
	next int // index of the next unread integration within sub.Integrations
}

func (c *subArrayCursor) exhausted() bool { return c.next >= len(c.sub.Integrations) }

func (c *subArrayCursor) peekTime() float64 { return c.sub.Integrations[c.next].StartTime }

// BuildIndex merges every sub-array's (populated but unordered)
// integrations into one flat, time-ordered global index, per spec.md §4.3:
// a linear scan over the per-sub-array heads repeatedly picks the earliest
// head, emits it, and advances that sub-array. Each emitted integration's
// pre-set RecordIndex must equal its position in the emitted order; a
// mismatch fails with ErrIndexMismatch. Requires state DataLoaded and transitions
// to Indexed on success, or leaves the Observation at DataLoaded on
// failure.
func (o *Observation) BuildIndex() error {
	if err := o.requireState(DataLoaded, "BuildIndex"); err != nil {
		return err
	}

	total := 0
	cursors := make([]*subArrayCursor, 0, len(o.SubArrays))
	for i := range o.SubArrays {
		sub := &o.SubArrays[i]
		total += len(sub.Integrations)
		if len(sub.Integrations) > 0 {
			cursors = append(cursors, &subArrayCursor{sub: sub})
		}
	}

	index := make([]*Integration, 0, total)
	for len(cursors) > 0 {
		// Find the cursor with the earliest next integration time
		// (a small linear scan; difmap's C implementation keeps this
		// list small — tens of sub-arrays at most).
		best := 0
		for i := 1; i < len(cursors); i++ {
			if cursors[i].peekTime() < cursors[best].peekTime() {
				best = i
			}
		}
		c := cursors[best]
		integ := &c.sub.Integrations[c.next]
		integ.SubArray = c.sub
		expected := len(index)
		if integ.RecordIndex != expected {
			o.setState(DataLoaded)
			return fmt.Errorf("%w: integration recorded index %d, expected position %d",
				ErrIndexMismatch, integ.RecordIndex, expected)
		}
		index = append(index, integ)
		c.next++
		if c.exhausted() {
			cursors = append(cursors[:best], cursors[best+1:]...)
		}
	}

	if len(index) != total {
		o.setState(DataLoaded)
		return fmt.Errorf("%w: merged %d integrations, expected %d", ErrIndexMismatch, len(index), total)
	}

	o.TimeIndex = index
	o.setState(Indexed)
	return nil
}

// TimeOrdered reports whether the current TimeIndex is non-decreasing in
// integration start time (spec.md §8 property 2).
func (o *Observation) TimeOrdered() bool {
	for i := 1; i < len(o.TimeIndex); i++ {
		if o.TimeIndex[i].StartTime < o.TimeIndex[i-1].StartTime {
			return false
		}
	}
	return true
}

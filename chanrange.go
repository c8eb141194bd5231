package visengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// rangeInc is the growth block size for a ChannelRangeSet's backing slice,
// grounded on difmap's chlist.c RANGE_INC: the set is kept as a flat,
// resizable array rather than a linked list because channel ranges are
// walked in inner loops, where contiguous-array access wins.
const rangeInc = 5

// ChanRange is one closed, 0-relative channel index interval [Ca, Cb].
type ChanRange struct {
	Ca, Cb int
}

// ChannelRangeSet is an ordered, disjoint, mergeable set of channel index
// ranges, plus the cached overall min/max across all ranges.
type ChannelRangeSet struct {
	ranges []ChanRange
	ca, cb int
}

// NewChannelRangeSet returns an empty channel-range set.
func NewChannelRangeSet() *ChannelRangeSet {
	return &ChannelRangeSet{ranges: make([]ChanRange, 0, rangeInc)}
}

// NRange returns the number of disjoint ranges currently held.
func (cl *ChannelRangeSet) NRange() int {
	return len(cl.ranges)
}

// Bounds returns the overall minimum and maximum channel index across all
// ranges. Undefined (0, 0) when the set is empty.
func (cl *ChannelRangeSet) Bounds() (ca, cb int) {
	return cl.ca, cl.cb
}

// Ranges returns a defensive copy of the ordered ranges.
func (cl *ChannelRangeSet) Ranges() []ChanRange {
	return append([]ChanRange(nil), cl.ranges...)
}

// Add merges [ca, cb] into the set, normalizing ca <= cb. If the new range
// touches or overlaps an existing one, it is merged (absorbing any
// subsequently overlapped ranges); otherwise it is inserted in ascending
// order. See chlist.c:add_crange.
func (cl *ChannelRangeSet) Add(ca, cb int) error {
	if ca > cb {
		ca, cb = cb, ca
	}
	if ca < 0 {
		return fmt.Errorf("%w: illegal channel index %d", ErrBadArg, ca)
	}

	// Find the first range whose upper bound+1 >= ca.
	irange := 0
	for irange < len(cl.ranges) && ca > cl.ranges[irange].Cb+1 {
		irange++
	}

	if irange < len(cl.ranges) && (ca >= cl.ranges[irange].Ca-1 || cb >= cl.ranges[irange].Ca-1) {
		r := &cl.ranges[irange]
		if ca < r.Ca {
			r.Ca = ca
		}
		if cb > r.Cb {
			// Find the last range overlapped by the extension.
			ir := len(cl.ranges) - 1
			for ir > irange && cb < cl.ranges[ir].Ca-1 {
				ir--
			}
			if cb > cl.ranges[ir].Cb {
				r.Cb = cb
			} else {
				r.Cb = cl.ranges[ir].Cb
			}
			if ir > irange {
				cl.ranges = append(cl.ranges[:irange+1], cl.ranges[ir+1:]...)
			}
		}
	} else {
		cl.ranges = append(cl.ranges, ChanRange{})
		copy(cl.ranges[irange+1:], cl.ranges[irange:])
		cl.ranges[irange] = ChanRange{Ca: ca, Cb: cb}
	}

	cl.ca = cl.ranges[0].Ca
	cl.cb = cl.ranges[len(cl.ranges)-1].Cb
	return nil
}

// Truncate drops ranges entirely above nChannel-1 and caps any range that
// only partially exceeds it. Returns the number of surviving ranges.
func (cl *ChannelRangeSet) Truncate(nChannel int) int {
	if len(cl.ranges) == 0 {
		return 0
	}
	ir := 0
	for ir < len(cl.ranges) && cl.ranges[ir].Cb < nChannel {
		ir++
	}
	if ir < len(cl.ranges) {
		if cl.ranges[ir].Ca >= nChannel {
			cl.ranges = cl.ranges[:ir]
		} else {
			cl.ranges[ir].Cb = nChannel - 1
			cl.ranges = cl.ranges[:ir+1]
		}
	}
	if len(cl.ranges) >= 1 {
		cl.ca = cl.ranges[0].Ca
		cl.cb = cl.ranges[len(cl.ranges)-1].Cb
	} else {
		cl.ca, cl.cb = 0, 0
	}
	return len(cl.ranges)
}

// Subset builds a new set translated by -offset and clipped to
// [0, nChannel-1] — used to derive a per-IF channel set from a global one
// (see chlist.c:sub_Chlist).
func (cl *ChannelRangeSet) Subset(offset, nChannel int) (*ChannelRangeSet, error) {
	if nChannel < 0 {
		return nil, fmt.Errorf("%w: nChannel < 0", ErrBadArg)
	}
	sub := NewChannelRangeSet()
	for _, r := range cl.ranges {
		ca := r.Ca - offset
		cb := r.Cb - offset
		if ca < nChannel && cb >= 0 {
			if ca < 0 {
				ca = 0
			}
			if cb >= nChannel {
				cb = nChannel - 1
			}
			if err := sub.Add(ca, cb); err != nil {
				return nil, err
			}
		}
	}
	return sub, nil
}

// Copy returns an independent deep copy.
func (cl *ChannelRangeSet) Copy() *ChannelRangeSet {
	cp := NewChannelRangeSet()
	cp.ranges = append([]ChanRange(nil), cl.ranges...)
	cp.ca, cp.cb = cl.ca, cl.cb
	return cp
}

// Equal compares length and then each range's endpoints, element-wise.
func (cl *ChannelRangeSet) Equal(other *ChannelRangeSet) bool {
	if other == nil {
		return false
	}
	if len(cl.ranges) != len(other.ranges) {
		return false
	}
	for i, r := range cl.ranges {
		if r != other.ranges[i] {
			return false
		}
	}
	return true
}

// Contains reports whether channel c falls within any retained range.
func (cl *ChannelRangeSet) Contains(c int) bool {
	return lo.ContainsBy(cl.ranges, func(r ChanRange) bool { return c >= r.Ca && c <= r.Cb })
}

// Channels enumerates every channel index covered by the set, in order.
func (cl *ChannelRangeSet) Channels() []int {
	var out []int
	for _, r := range cl.ranges {
		for c := r.Ca; c <= r.Cb; c++ {
			out = append(out, c)
		}
	}
	return out
}

// String renders the set as comma-separated 1-based pairs, "a, b" per range,
// matching the text form used by model-table serialization (spec.md §4.10).
func (cl *ChannelRangeSet) String() string {
	parts := lo.Map(cl.ranges, func(r ChanRange, _ int) string {
		return fmt.Sprintf("%d, %d", r.Ca+1, r.Cb+1)
	})
	return strings.Join(parts, ", ")
}

// ParseChannelRangeSet parses the text form produced by String: a sequence
// of 1-based "a, b" pairs separated by commas.
func ParseChannelRangeSet(text string) (*ChannelRangeSet, error) {
	fields := strings.Split(text, ",")
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: malformed channel range text %q", ErrBadArg, text)
	}
	cl := NewChannelRangeSet()
	for i := 0; i < len(fields); i += 2 {
		a, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArg, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(fields[i+1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArg, err)
		}
		if err := cl.Add(a-1, b-1); err != nil {
			return nil, err
		}
	}
	return cl, nil
}

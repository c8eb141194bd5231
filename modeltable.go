package visengine

// ModelTable stores models keyed by the (channel-range-set, polarization)
// selection they were recorded against, per spec.md §4.10 "model table",
// grounded on difmap's modeltab.c: C buckets models in a fixed-size hash
// table using a rolling base-65599 polynomial over each range's (ca,cb)
// pair; a Go map keyed by an explicit struct replaces the bucket array,
// but Hash still reproduces the same polynomial so on-disk model-table
// files written by either implementation would bucket identically.
type ModelTable struct {
	entries map[modelTableKey]*modelTableEntry
}

type modelTableKey struct {
	ranges string // ChannelRangeSet.String(), a canonical textual key
	pol    string
}

type modelTableEntry struct {
	ranges *ChannelRangeSet
	pol    string
	model  *Model
	// east/north record the shift that was removed from model before
	// storage, so the entry can be reapplied at an arbitrary new phase
	// center (spec.md §4.10 "recorded with a de-shift").
	east, north float64
}

// NewModelTable returns an empty model table.
func NewModelTable() *ModelTable {
	return &ModelTable{entries: make(map[modelTableKey]*modelTableEntry)}
}

// Hash reproduces difmap's find_ModelBucket polynomial over a channel
// range set's (ca,cb) pairs: h = 65599*(65599*h + ca) + cb, accumulated
// across every range in order.
func Hash(cl *ChannelRangeSet) uint64 {
	var h uint64
	for _, r := range cl.Ranges() {
		h = 65599*(65599*h+uint64(r.Ca)) + uint64(r.Cb)
	}
	return h
}

func tableKey(cl *ChannelRangeSet, pol string) modelTableKey {
	return modelTableKey{ranges: cl.String(), pol: pol}
}

// Add records model under (cl, pol), removing the given eastward/northward
// shift from the stored copy so it represents the model at the
// unshifted phase center (spec.md §4.10). A prior entry for the same key
// is replaced. The table takes an independent copy of model.
func (t *ModelTable) Add(cl *ChannelRangeSet, pol string, model *Model, east, north float64) {
	stored := model.Copy()
	if east != 0 || north != 0 {
		shiftModelComponents(stored, -east, -north)
	}
	t.entries[tableKey(cl, pol)] = &modelTableEntry{
		ranges: cl.Copy(),
		pol:    pol,
		model:  stored,
		east:   east,
		north:  north,
	}
}

// Lookup returns a copy of the model recorded for (cl, pol), re-applying
// its recorded shift, or (nil, false) if no entry matches.
func (t *ModelTable) Lookup(cl *ChannelRangeSet, pol string) (*Model, bool) {
	e, ok := t.entries[tableKey(cl, pol)]
	if !ok {
		return nil, false
	}
	out := e.model.Copy()
	if e.east != 0 || e.north != 0 {
		shiftModelComponents(out, e.east, e.north)
	}
	return out, true
}

// Remove deletes the entry for (cl, pol), if any.
func (t *ModelTable) Remove(cl *ChannelRangeSet, pol string) {
	delete(t.entries, tableKey(cl, pol))
}

// Len returns the number of recorded entries.
func (t *ModelTable) Len() int { return len(t.entries) }

// Clear empties the table.
func (t *ModelTable) Clear() { t.entries = make(map[modelTableKey]*modelTableEntry) }

// shiftModelComponents translates every component's sky position by
// (east, north), the same shift primitive used by geometry.go's Shift but
// kept local here to avoid a circular dependency between model storage and
// the live Observation's shift bookkeeping.
func shiftModelComponents(m *Model, east, north float64) {
	for _, c := range m.Components() {
		c.X += east
		c.Y += north
	}
}

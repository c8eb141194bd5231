package visengine

// Target kinds and scopes for a deferred edit, grounded on difmap's
// obedit.h Edint bitfields.
type EditTargetKind int

const (
	EditBaseline EditTargetKind = iota
	EditAntenna
	EditAllBaselinesOfSubArray
)

type EditAction int

const (
	EditFlag EditAction = iota
	EditUnflag
)

// editsPerBlock and maxBlocks give the pool's default capacity
// (256*10=2560), matching spec.md §4.9's default threshold.
const editsPerBlock = 256
const maxBlocks = 10

// Edit is one queued flag/unflag operation.
type Edit struct {
	IF          int // target IF index; ignored when AllIFs is set
	AllIFs      bool
	TargetIndex int
	TargetKind  EditTargetKind
	AllChannels bool // false => only the currently selected channels
	Action      EditAction

	next *Edit
}

// editList is a per-integration FIFO of pending edits.
type editList struct {
	head, tail *Edit
	n          int
}

func (l *editList) push(e *Edit) {
	e.next = nil
	if l.tail == nil {
		l.head, l.tail = e, e
	} else {
		l.tail.next = e
		l.tail = e
	}
	l.n++
}

func (l *editList) clear() { l.head, l.tail, l.n = nil, nil, 0 }

// editPool is a fixed-block pool of Edit nodes, grounded on difmap's
// freelist.c: grows in blocks rather than one node at a time, and never
// shrinks mid-use; growing past maxBlocks is refused so the caller is
// forced to flush instead of growing without bound (spec.md §4.9, §9).
type editPool struct {
	blocks    [][]Edit
	free      []*Edit
	allocated int
}

func newEditPool() *editPool {
	return &editPool{}
}

func (p *editPool) grow() bool {
	if len(p.blocks) >= maxBlocks {
		return false
	}
	block := make([]Edit, editsPerBlock)
	p.blocks = append(p.blocks, block)
	for i := range block {
		p.free = append(p.free, &block[i])
	}
	return true
}

func (p *editPool) get() (*Edit, error) {
	if len(p.free) == 0 {
		if !p.grow() {
			return nil, ErrEditPoolExhausted
		}
	}
	n := len(p.free) - 1
	e := p.free[n]
	p.free = p.free[:n]
	*e = Edit{}
	p.allocated++
	return e, nil
}

func (p *editPool) put(e *Edit) {
	p.free = append(p.free, e)
	p.allocated--
}

// reset discards every allocated node back to fully free, as done after a
// flush (spec.md §4.9 "the free-list of edit nodes is reset").
func (p *editPool) reset() {
	p.free = p.free[:0]
	for _, block := range p.blocks {
		for i := range block {
			p.free = append(p.free, &block[i])
		}
	}
	p.allocated = 0
}

// editEngine owns the pool and the current queue depth across all
// integrations.
type editEngine struct {
	pool   *editPool
	queued int
}

func newEditEngine() *editEngine {
	return &editEngine{pool: newEditPool()}
}

func (e *editEngine) capacity() int { return maxBlocks * editsPerBlock }

// QueueEdit queues an edit against integ, force-flushing the whole engine
// first if the queue is already at capacity (spec.md §4.9). If the
// targeted IF is resident (or the edit is IF-unrestricted), the in-memory
// visibilities of integ are also updated immediately.
func (o *Observation) QueueEdit(integ *Integration, ed Edit) error {
	if err := o.requireState(Indexed, "QueueEdit"); err != nil {
		return err
	}
	if o.Edits.queued >= o.Edits.capacity() {
		if err := o.FlushEdits(); err != nil {
			return err
		}
	}

	node, err := o.Edits.pool.get()
	if err != nil {
		return err
	}
	*node = ed
	if integ.PendingEdits == nil {
		integ.PendingEdits = &editList{}
	}
	integ.PendingEdits.push(node)
	o.Edits.queued++

	if o.ifResidentValid && integ.Visibilities != nil {
		if ed.AllIFs || ed.IF == o.residentIF {
			applyEditToIntegration(integ, ed, o.residentIF)
		}
	}
	return nil
}

// applyEditToIntegration applies ed's flag/unflag action to integ's
// in-memory visibilities, restricted to the matching baseline(s).
func applyEditToIntegration(integ *Integration, ed Edit, currentIF int) {
	sub := integ.SubArray
	for bi := range integ.Visibilities {
		if !editMatchesBaseline(sub, bi, ed) {
			continue
		}
		v := &integ.Visibilities[bi]
		switch ed.Action {
		case EditFlag:
			v.Weight = -absFloat(v.Weight)
			v.Bad |= FlagFlagged
		case EditUnflag:
			if v.Weight != 0 {
				v.Weight = absFloat(v.Weight)
			}
			v.Bad &^= FlagFlagged
		}
	}
}

func editMatchesBaseline(sub *SubArray, baselineIdx int, ed Edit) bool {
	switch ed.TargetKind {
	case EditBaseline:
		return baselineIdx == ed.TargetIndex
	case EditAntenna:
		b := sub.Baselines[baselineIdx]
		return b.AntennaA == ed.TargetIndex || b.AntennaB == ed.TargetIndex
	case EditAllBaselinesOfSubArray:
		return true
	default:
		return false
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ApplyEditsOnSwap applies every still-queued edit whose scope covers
// ifIndex to integ's freshly-swapped-in in-memory visibilities only — the
// "applying to a newly read IF" path of spec.md §4.9, distinct from Flush.
func ApplyEditsOnSwap(integ *Integration, ifIndex int) {
	if integ.PendingEdits == nil {
		return
	}
	for e := integ.PendingEdits.head; e != nil; e = e.next {
		if e.AllIFs || e.IF == ifIndex {
			applyEditToIntegration(integ, *e, ifIndex)
		}
	}
}

// editBounds is the minimal channel x baseline bounding rectangle a set of
// edits affects within one IF.
type editBounds struct {
	baselineFirst, baselineLast int
	channelFirst, channelLast   int
}

// boundsForIF computes, for a single IF, the minimal bounding rectangle
// over every queued edit in integ that touches that IF, per spec.md §4.9
// flush step. An edit with AllChannels=false is restricted to selected's
// bounds (the IF's currently selected channel range) rather than the full
// [0,nChannel) span; selected may be nil if the IF has no current
// selection, in which case the full span is used. Returns ok=false if no
// queued edit touches ifIndex.
func boundsForIF(integ *Integration, ifIndex, nBaseline, nChannel int, selected *ChannelRangeSet) (editBounds, bool) {
	if integ.PendingEdits == nil {
		return editBounds{}, false
	}
	b := editBounds{baselineFirst: nBaseline, baselineLast: -1, channelFirst: nChannel, channelLast: -1}
	found := false
	sub := integ.SubArray
	for e := integ.PendingEdits.head; e != nil; e = e.next {
		if !e.AllIFs && e.IF != ifIndex {
			continue
		}
		found = true
		bf, bl := 0, nBaseline-1
		switch e.TargetKind {
		case EditBaseline:
			bf, bl = e.TargetIndex, e.TargetIndex
		case EditAntenna:
			bf, bl = nBaseline, -1
			for i, base := range sub.Baselines {
				if base.AntennaA == e.TargetIndex || base.AntennaB == e.TargetIndex {
					if i < bf {
						bf = i
					}
					if i > bl {
						bl = i
					}
				}
			}
		}
		if bf < b.baselineFirst {
			b.baselineFirst = bf
		}
		if bl > b.baselineLast {
			b.baselineLast = bl
		}
		cf, cl := 0, nChannel-1
		if !e.AllChannels && selected != nil {
			cf, cl = selected.Bounds()
		}
		if cf < b.channelFirst {
			b.channelFirst = cf
		}
		if cl > b.channelLast {
			b.channelLast = cl
		}
	}
	return b, found
}

// FlushEdits commits every integration's queued edits to RawStore (and to
// IFStore, if it exists) and then discards the queues and resets the node
// pool, per spec.md §4.9. Requires state >= Selected (deferred edits are
// tied to the currently selected channel set).
func (o *Observation) FlushEdits() error {
	if err := o.requireState(Selected, "FlushEdits"); err != nil {
		return err
	}
	if o.Edits.queued == 0 {
		return nil
	}

	nIF := o.NIF()
	for _, integ := range o.TimeIndex {
		if integ.PendingEdits == nil || integ.PendingEdits.n == 0 {
			continue
		}
		sub := integ.SubArray
		nBaseline := sub.NBaseline()

		for cif := 0; cif < nIF; cif++ {
			ifDesc := &o.IFs[cif]
			nChannel := ifDesc.NChannel
			bounds, touched := boundsForIF(integ, cif, nBaseline, nChannel, ifDesc.Selected)
			if !touched {
				continue
			}

			if o.Raw != nil {
				if err := flushToRawStore(o, integ, cif, bounds); err != nil {
					o.setState(Selected)
					return err
				}
			}
			if o.IFSt != nil {
				if err := flushToIFStore(o, integ, cif, bounds); err != nil {
					o.setState(Selected)
					return err
				}
			}
		}
		integ.PendingEdits.clear()
	}

	o.Edits.queued = 0
	o.Edits.pool.reset()

	if o.Raw != nil {
		if err := o.Raw.ps.Flush(); err != nil {
			return err
		}
	}
	if o.IFSt != nil {
		if err := o.IFSt.ps.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// flushToRawStore applies every queued edit of integ that touches cif to
// the RawStore's on-disk weights within the given bounding rectangle,
// flipping signs per spec.md §4.9: flag forces negative, unflag forces
// positive, deleted (zero) cells are left untouched.
func flushToRawStore(o *Observation, integ *Integration, cif int, bounds editBounds) error {
	nPol := len(o.Pols)
	o.Raw.SetWindow(RawWindow{
		ChannelFirst: bounds.channelFirst, ChannelLast: bounds.channelLast,
		IFFirst: cif, IFLast: cif,
		PolFirst: 0, PolLast: nPol - 1,
		BaselineFirst: bounds.baselineFirst, BaselineLast: bounds.baselineLast,
	})
	data, err := o.Raw.ReadIntegration(integ.RecordIndex)
	if err != nil {
		return err
	}
	for e := integ.PendingEdits.head; e != nil; e = e.next {
		if !e.AllIFs && e.IF != cif {
			continue
		}
		for bi := bounds.baselineFirst; bi <= bounds.baselineLast; bi++ {
			if !editMatchesBaseline(integ.SubArray, bi, *e) {
				continue
			}
			for ch := bounds.channelFirst; ch <= bounds.channelLast; ch++ {
				for p := 0; p < nPol; p++ {
					cv := o.Raw.At(data, bi, ch, cif, p)
					applySignFlip(&cv, e.Action)
					idx := o.rawWindowIndex(bi, ch, cif, p, nPol, bounds)
					data[idx] = cv
				}
			}
		}
	}
	return o.Raw.WriteIntegration(integ.RecordIndex, data)
}

// rawWindowIndex mirrors RawStore.At's index arithmetic for write-back.
func (o *Observation) rawWindowIndex(baseline, channel, cif, pol, nPol int, b editBounds) int {
	nBase := b.baselineLast - b.baselineFirst + 1
	nChan := b.channelLast - b.channelFirst + 1
	_ = nChan
	ci := (channel-b.channelFirst)*nBase + (baseline - b.baselineFirst)
	return ci*nPol + (pol - 0)
}

func applySignFlip(v *ComplexVis, action EditAction) {
	if v.Weight == 0 {
		return // deleted cells are untouched
	}
	switch action {
	case EditFlag:
		v.Weight = -absFloat(v.Weight)
	case EditUnflag:
		v.Weight = absFloat(v.Weight)
	}
}

// flushToIFStore applies the same edits to IFStore's combined visibility
// for cif, over the baseline range within that IF's integration record.
func flushToIFStore(o *Observation, integ *Integration, cif int, bounds editBounds) error {
	data, err := o.IFSt.ReadBaselineRange(cif, integ.RecordIndex, bounds.baselineFirst, bounds.baselineLast)
	if err != nil {
		return err
	}
	for e := integ.PendingEdits.head; e != nil; e = e.next {
		if !e.AllIFs && e.IF != cif {
			continue
		}
		for i := range data {
			bi := bounds.baselineFirst + i
			if !editMatchesBaseline(integ.SubArray, bi, *e) {
				continue
			}
			if data[i].Weight == 0 {
				continue
			}
			switch e.Action {
			case EditFlag:
				data[i].Weight = -absFloat(data[i].Weight)
			case EditUnflag:
				data[i].Weight = absFloat(data[i].Weight)
			}
		}
	}
	return o.IFSt.WriteBaselineRange(cif, integ.RecordIndex, bounds.baselineFirst, data)
}

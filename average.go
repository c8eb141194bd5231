package visengine

import (
	"container/heap"
	"math"
)

// binCursor walks one sub-array's integrations, collecting consecutive
// integrations into time bins of width binWidth, grounded on difmap's
// uvaver.c Biniter/nextbin/newbin.
type binCursor struct {
	sub      *SubArray
	next     int // index of the next unconsumed integration
	binWidth float64
	subIndex int
}

// peekBinCenter returns the center time of the next bin this cursor would
// emit, computed from its first unconsumed integration's start time.
func (c *binCursor) peekBinCenter() float64 {
	return c.sub.Integrations[c.next].StartTime + c.binWidth/2
}

func (c *binCursor) exhausted() bool { return c.next >= len(c.sub.Integrations) }

// takeBin collects every consecutive integration whose start time falls
// within [binStart, binStart+binWidth] starting at c.next, advancing the
// cursor past them.
func (c *binCursor) takeBin() []*Integration {
	binStart := c.sub.Integrations[c.next].StartTime
	binEnd := binStart + c.binWidth
	var members []*Integration
	for c.next < len(c.sub.Integrations) && c.sub.Integrations[c.next].StartTime <= binEnd {
		members = append(members, &c.sub.Integrations[c.next])
		c.next++
	}
	return members
}

// cursorHeap is a min-heap of binCursor by next bin center time, used to
// emit averaged integrations across sub-arrays in global time order.
type cursorHeap []*binCursor

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].peekBinCenter() < h[j].peekBinCenter() }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*binCursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// runningMean accumulates a flag-takeover weighted mean of a complex
// quantity, per spec.md §4.12: flagged samples seed the mean only until
// the first unflagged sample arrives, at which point the mean restarts.
type runningMean struct {
	re, im  float64
	sumW    float64
	n       int
	sawGood bool
}

func (m *runningMean) add(re, im, w float64, flagged bool) {
	if flagged && m.sawGood {
		return
	}
	if !flagged && !m.sawGood {
		m.re, m.im, m.sumW, m.n = 0, 0, 0, 0
		m.sawGood = true
	}
	aw := math.Abs(w)
	m.re += aw * re
	m.im += aw * im
	m.sumW += aw
	m.n++
}

func (m *runningMean) mean() (re, im float64) {
	if m.sumW == 0 {
		return 0, 0
	}
	return m.re / m.sumW, m.im / m.sumW
}

// AverageOptions parameterizes Average.
type AverageOptions struct {
	BinWidthSeconds float64
	Scatter         bool
}

// baselineUVW is the per-baseline accumulated (u,v,w,summed-integration-
// time) of one output bin.
type baselineUVW struct {
	u, v, w, itime float64
}

// avgBin is one output time bin: the sub-array it belongs to, its start
// time, and its averaged raw cells, laid out in RawStore's single-channel
// record shape (IF slowest, then baseline, then polarization fastest).
type avgBin struct {
	subIndex  int
	startTime float64
	nBaseline int
	cells     []ComplexVis
	uvw       []baselineUVW
}

// Average performs coherent time-bin averaging of the observation's raw
// data, per spec.md §4.12, grounded on difmap's uvaver.c. It replaces
// RawStore with a new, shrunk store, clears per-antenna/per-baseline
// corrections (now frozen into the averaged data), resets the weight
// scale to 1 when scatter weighting is used, and re-runs stream selection
// with the previously selected channel range and polarization to rebuild
// IFStore and ModelStore.
func (o *Observation) Average(path string, opts AverageOptions) error {
	if err := o.requireState(Indexed, "Average"); err != nil {
		return err
	}
	if opts.BinWidthSeconds <= 0 {
		return ErrBadArg
	}

	nIF, nPol := o.NIF(), len(o.Pols)
	o.averagerScatter = opts.Scatter

	h := &cursorHeap{}
	for i := range o.SubArrays {
		sub := &o.SubArrays[i]
		if len(sub.Integrations) == 0 {
			continue
		}
		heap.Push(h, &binCursor{sub: sub, binWidth: opts.BinWidthSeconds, subIndex: i})
	}

	var outBins []avgBin
	for h.Len() > 0 {
		c := heap.Pop(h).(*binCursor)
		members := c.takeBin()
		if len(members) > 0 {
			ob, err := o.averageOneBin(members, nIF, nPol)
			if err != nil {
				return err
			}
			ob.subIndex = c.subIndex
			outBins = append(outBins, ob)
		}
		if !c.exhausted() {
			heap.Push(h, c)
		}
	}

	nBaselineMax := 0
	for i := range o.SubArrays {
		if n := o.SubArrays[i].NBaseline(); n > nBaselineMax {
			nBaselineMax = n
		}
	}

	newRaw, err := OpenRawStore(path, nBaselineMax, 1, nIF, nPol, ModeScratch)
	if err != nil {
		return err
	}
	newRaw.SetWindow(RawWindow{ChannelLast: 0, IFLast: nIF - 1, PolLast: nPol - 1, BaselineLast: nBaselineMax - 1})

	for recIdx, ob := range outBins {
		if err := newRaw.WriteIntegration(recIdx, ob.cells); err != nil {
			newRaw.Close()
			return err
		}
	}

	if o.Raw != nil {
		o.Raw.Close()
	}
	o.Raw = newRaw

	o.rebuildAfterAverage(outBins, opts)
	return nil
}

// averageOneBin reduces a consecutive run of same-sub-array integrations
// into one output bin's raw cells, for every (IF, baseline, polarization).
// The averager reduces over time, not over channel, so the output record
// carries a single averaged "channel" per the shrunk data model of
// spec.md §4.12.
func (o *Observation) averageOneBin(members []*Integration, nIF, nPol int) (avgBin, error) {
	var ob avgBin
	sub := members[0].SubArray
	nBase := sub.NBaseline()
	ob.nBaseline = nBase
	ob.startTime = members[0].StartTime
	ob.cells = make([]ComplexVis, nBase*nIF*nPol)
	ob.uvw = make([]baselineUVW, nBase)

	for bi := 0; bi < nBase; bi++ {
		means := make([]runningMean, nIF*nPol)
		scatterSum := make([]float64, nIF*nPol)
		counts := make([]int, nIF*nPol)
		inputWeight := make([]float64, nIF*nPol)

		var uMean, vMean, wMean runningMean
		var sumITime float64

		for _, integ := range members {
			if bi >= len(integ.Visibilities) {
				continue
			}
			v := integ.Visibilities[bi]
			if v.Bad&FlagDeleted != 0 {
				continue
			}
			flagged := v.Bad&FlagFlagged != 0
			re := v.Amp * math.Cos(v.Phase)
			im := v.Amp * math.Sin(v.Phase)
			for cif := 0; cif < nIF; cif++ {
				for p := 0; p < nPol; p++ {
					idx := cif*nPol + p
					means[idx].add(re, im, v.Weight, flagged)
					inputWeight[idx] = v.Weight
					counts[idx]++
					scatterSum[idx] += re*re + im*im
				}
			}
			uMean.add(v.U, 0, 1, false)
			vMean.add(v.V, 0, 1, false)
			wMean.add(v.W, 0, 1, false)
			sumITime += v.IntegrationTime
		}

		for cif := 0; cif < nIF; cif++ {
			for p := 0; p < nPol; p++ {
				idx := cif*nPol + p
				re, im := means[idx].mean()
				n := counts[idx]
				weight := o.avgBinWeight(n, means[idx].sumW, scatterSum[idx], re, im, inputWeight[idx])
				if n > 0 && re == 0 && im == 0 {
					weight = 0
				}
				ob.cells[(cif*nBase+bi)*nPol+p] = ComplexVis{Re: re, Im: im, Weight: weight}
			}
		}
		u, _ := uMean.mean()
		v, _ := vMean.mean()
		w, _ := wMean.mean()
		ob.uvw[bi] = baselineUVW{u, v, w, sumITime}
	}
	return ob, nil
}

// avgBinWeight computes one cell's output weight per spec.md §4.12: the
// sum of input weights when not using scatter weighting, otherwise
// 1/variance derived from the sample scatter, falling back to a flagged
// negative input weight when fewer than two samples contributed or the
// scatter estimate is non-positive.
func (o *Observation) avgBinWeight(n int, sumW, scatterSum, re, im, inputWeight float64) float64 {
	if n == 0 {
		return 0
	}
	if !o.averagerScatter {
		return sumW
	}
	if n < 2 {
		return -math.Abs(inputWeight)
	}
	meanSq := scatterSum / float64(n)
	variance := 0.5 * (meanSq - re*re - im*im) * float64(n) / float64(n-1)
	if variance <= 0 {
		return -math.Abs(inputWeight)
	}
	return 1 / variance
}

// rebuildAfterAverage shrinks the Observation's sub-array integration
// arrays to the averaged bins, clears corrections now frozen into the
// data, resets the weight scale if scatter weighting was used, and
// re-runs stream selection.
func (o *Observation) rebuildAfterAverage(outBins []avgBin, opts AverageOptions) {
	bySubArray := map[int][]Integration{}
	recIdx := 0
	for _, ob := range outBins {
		sub := &o.SubArrays[ob.subIndex]
		integ := Integration{
			StartTime:   ob.startTime,
			RecordIndex: recIdx,
			SubArray:    sub,
			Corrections: make([][]AntennaCorrection, o.NIF()),
		}
		for cif := range integ.Corrections {
			integ.Corrections[cif] = make([]AntennaCorrection, sub.NAntenna())
			for i := range integ.Corrections[cif] {
				integ.Corrections[cif][i] = AntennaCorrection{Amp: 1}
			}
		}
		bySubArray[ob.subIndex] = append(bySubArray[ob.subIndex], integ)
		recIdx++
	}
	for i := range o.SubArrays {
		o.SubArrays[i].Integrations = bySubArray[i]
		for bi := range o.SubArrays[i].Baselines {
			o.SubArrays[i].Baselines[bi].Corrections = make([]BaselineCorrection, o.NIF())
			o.SubArrays[i].Baselines[bi].WeightSums = make([]float64, o.NIF())
		}
	}

	if opts.Scatter {
		o.WeightScale = 1
	}

	prevChans, prevPol := o.SelectedChannels, o.SelectedPol.Name
	o.setState(DataLoaded)
	_ = o.BuildIndex()
	if prevChans != nil {
		_ = o.SelectStream(prevChans, prevPol, true)
	}
}

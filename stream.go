package visengine

import "math"

// SelectStream runs the stream selection pipeline of spec.md §4.4. newChans
// is an optional global-domain channel-range set (nil keeps the current
// one); pol is the literal polarization name to resolve, or "" for NO_POL.
// If keepModel is false, the current (channels, pol, model) triple is
// archived to the model table under the previous selection, and any
// previously saved model for the new selection is installed.
func (o *Observation) SelectStream(newChans *ChannelRangeSet, pol string, keepModel bool) error {
	if err := o.requireState(Indexed, "SelectStream"); err != nil {
		return err
	}

	// 1. Flush the deferred-edit queue.
	if err := o.FlushEdits(); err != nil {
		return err
	}

	// 2. Merge established into tentative, preserving order.
	o.Tentative.Splice(o.Established, false)

	prevChans, prevPol := o.SelectedChannels, o.SelectedPol

	// 3. Archive the outgoing selection's model under the previous key.
	if !keepModel && prevChans != nil {
		o.ModelTable.Add(prevChans, prevPol.Name, o.Tentative, 0, 0)
	}

	// 4. Resolve the new polarization.
	newPol, err := o.ResolvePolarization(pol)
	if err != nil {
		o.setState(Indexed)
		return err
	}

	if newChans != nil {
		o.SelectedChannels = newChans
	}
	if o.SelectedChannels == nil {
		o.setState(Indexed)
		return ErrChannelRangeEmpty
	}
	o.SelectedPol = newPol

	// 5. Split the global channel-range set per IF.
	for i := range o.IFs {
		sub, err := o.SelectedChannels.Subset(o.IFs[i].ChannelOffset, o.IFs[i].NChannel)
		if err != nil {
			o.setState(Indexed)
			return err
		}
		if sub.NRange() == 0 {
			o.IFs[i].Selected = nil
		} else {
			o.IFs[i].Selected = sub
		}
	}

	// 6. Mark all per-baseline weight sums stale.
	flagBaselineWeights(o, -1)

	// 7. Install any previously saved model for the new selection.
	if !keepModel {
		if saved, ok := o.ModelTable.Lookup(o.SelectedChannels, o.SelectedPol.Name); ok {
			o.Tentative.Clear()
			o.Established.Clear()
			o.Established.Splice(saved, false)
			o.ModelTable.Remove(o.SelectedChannels, o.SelectedPol.Name)
		}
	}

	// 8. Build IFStore from RawStore for every sampled IF.
	if o.Raw != nil && o.IFSt != nil {
		if err := o.buildIFStore(); err != nil {
			o.setState(Indexed)
			return err
		}
	}

	// 9. Clear ModelStore for every IF.
	if o.Model != nil {
		for cif := range o.IFs {
			if err := o.Model.ClearIF(cif); err != nil {
				o.setState(Indexed)
				return err
			}
		}
	}

	// 10. Transition to Selected, then to IFResident for the single-IF case.
	o.ifResidentValid = false
	o.setState(Selected)
	if o.NIF() == 1 {
		if err := o.SwapIF(0); err != nil {
			return err
		}
	}
	return nil
}

// buildIFStore computes, for every sampled IF and every integration, the
// combined per-baseline visibility over the IF's selected channels and
// writes it to IFStore, per spec.md §4.4 step 8.
func (o *Observation) buildIFStore() error {
	nPol := len(o.Pols)
	raw := make([]ComplexVis, nPol)

	for cif := range o.IFs {
		ifd := &o.IFs[cif]
		if ifd.Selected == nil {
			continue
		}
		ca, cb := ifd.Selected.Bounds()
		window := RawWindow{
			ChannelFirst: ca, ChannelLast: cb,
			IFFirst: cif, IFLast: cif,
			PolFirst: 0, PolLast: nPol - 1,
		}

		for _, integ := range o.TimeIndex {
			nBase := integ.SubArray.NBaseline()
			window.BaselineFirst, window.BaselineLast = 0, nBase-1
			o.Raw.SetWindow(window)
			data, err := o.Raw.ReadIntegration(integ.RecordIndex)
			if err != nil {
				return err
			}

			out := make([]PolarVis, nBase)
			for bi := 0; bi < nBase; bi++ {
				combined, err := combineChannels(o.SelectedPol, raw, data, o.Raw, bi, ifd.Selected.Ranges(), cif, nPol)
				if err != nil {
					return err
				}
				amp, phase := math.Hypot(combined.Re, combined.Im), math.Atan2(combined.Im, combined.Re)
				w := combined.Weight
				if combined.Re == 0 && combined.Im == 0 && w == 0 {
					amp, phase = 0, 0
				}
				out[bi] = PolarVis{Amp: amp, Phase: phase, Weight: w}
			}
			if err := o.IFSt.WriteBaselineRange(cif, integ.RecordIndex, 0, out); err != nil {
				return err
			}
		}
	}
	return nil
}

package visengine

import "math"

// addPolar vector-sums two polar visibilities as complex numbers, returning
// a polar result; used to accumulate per-component UV contributions into
// ModelStore/in-memory model visibilities.
func addPolar(a, b PolarVis) PolarVis {
	re := a.Amp*math.Cos(a.Phase) + b.Amp*math.Cos(b.Phase)
	im := a.Amp*math.Sin(a.Phase) + b.Amp*math.Sin(b.Phase)
	return PolarVis{Amp: math.Hypot(re, im), Phase: math.Atan2(im, re)}
}

// addModelVis asks o.ModelEval for each component of mod's UV contribution,
// over every sampled IF and every integration, and accumulates the result
// into ModelStore (and, for the currently resident IF, the in-memory
// ModelAmp/ModelPhase fields) by sign: +1 to add, -1 to subtract.
func (o *Observation) addModelVis(mod *Model, sign float64) error {
	if mod.Count() == 0 {
		return nil
	}
	if o.ModelEval == nil {
		return ErrNoModelEvaluator
	}
	if o.Model == nil {
		return nil
	}
	for _, c := range mod.Components() {
		for cif := range o.IFs {
			if o.IFs[cif].Selected == nil {
				continue
			}
			comp := c
			if c.Shape == ShapeDelta {
				radius := math.Hypot(c.X, c.Y)
				freq := o.IFs[cif].FirstChannelFreqHz
				mean, err := o.ObservationPrimaryBeamMean(cif, radius, freq)
				if err != nil {
					return err
				}
				if mean != 0 {
					adj := *c
					adj.Flux = c.Flux / mean
					comp = &adj
				}
			}
			for _, integ := range o.TimeIndex {
				nBase := integ.SubArray.NBaseline()
				out := make([]PolarVis, nBase)
				if err := o.ModelEval.AddComponentToModelVis(o, comp, &out); err != nil {
					return err
				}
				existing, err := o.Model.ReadIntegration(cif, integ.RecordIndex)
				if err != nil {
					return err
				}
				combined := make([]PolarVis, nBase)
				for i := 0; i < nBase && i < len(out); i++ {
					contribution := out[i]
					if sign < 0 {
						contribution.Phase += math.Pi
					}
					combined[i] = addPolar(existing[i], contribution)
				}
				if err := o.Model.WriteIntegration(cif, integ.RecordIndex, combined); err != nil {
					return err
				}
				if o.ifResidentValid && o.residentIF == cif {
					for i := 0; i < nBase && i < len(integ.Visibilities); i++ {
						integ.Visibilities[i].ModelAmp = combined[i].Amp
						integ.Visibilities[i].ModelPhase = combined[i].Phase
					}
				}
			}
		}
	}
	return nil
}

// clearModelStore zeroes ModelStore for every IF and every in-memory
// ModelAmp/ModelPhase field, used by ClearModel and by MergeModel's demote
// path, per spec.md §4.10.
func (o *Observation) clearModelStore() error {
	if o.Model != nil {
		for cif := range o.IFs {
			if err := o.Model.ClearIF(cif); err != nil {
				return err
			}
		}
	}
	for i := range o.SubArrays {
		for ii := range o.SubArrays[i].Integrations {
			vis := o.SubArrays[i].Integrations[ii].Visibilities
			for vi := range vis {
				vis[vi].ModelAmp = 0
				vis[vi].ModelPhase = 0
			}
		}
	}
	return nil
}

// AddModel implements spec.md §4.10 add_model: if established, first
// computes mod's UV contribution via the configured ModelEvaluator and adds
// it into ModelStore/the in-memory model visibilities, then splices mod's
// components onto the target list (established or tentative, main or
// continuum) at head or tail.
func (o *Observation) AddModel(mod *Model, established, continuum, appendAtTail bool) error {
	if established {
		if err := o.addModelVis(mod, 1); err != nil {
			return err
		}
	}

	var target *Model
	switch {
	case established && continuum:
		target = o.EstContinuum
	case established && !continuum:
		target = o.Established
	case !established && continuum:
		target = o.TentContinuum
	default:
		target = o.Tentative
	}
	target.Splice(mod, !appendAtTail)
	return nil
}

// MergeModel implements spec.md §4.10 merge_model: if promote, the
// tentative model (and its continuum) become established, computing their
// UV transform; otherwise the established model (and continuum) is demoted
// to the head of the tentative lists and its UV representation cleared.
// Per original_source/difmap_src/model.c clear_model, demotion reattaches
// components rather than discarding them.
func (o *Observation) MergeModel(promote bool) error {
	if promote {
		promoted := o.Tentative.Copy()
		promotedContinuum := o.TentContinuum.Copy()
		o.Established.Splice(o.Tentative, false)
		o.EstContinuum.Splice(o.TentContinuum, false)
		if err := o.addModelVis(promoted, 1); err != nil {
			return err
		}
		return o.addModelVis(promotedContinuum, 1)
	}
	o.Tentative.Splice(o.Established, true)
	o.TentContinuum.Splice(o.EstContinuum, true)
	return o.clearModelStore()
}

// WindowModel implements spec.md §4.10 window_model: partitions every model
// list by whether a component's sky position lies inside windows, discards
// the other partition, and subtracts the discarded established components'
// UV representation from ModelStore.
func (o *Observation) WindowModel(windows []SkyWindow, keepOutside bool) error {
	dropEst := WindowModel(o.Established, windows, keepOutside)
	dropEstCont := WindowModel(o.EstContinuum, windows, keepOutside)
	WindowModel(o.Tentative, windows, keepOutside)
	WindowModel(o.TentContinuum, windows, keepOutside)

	if len(dropEst) == 0 && len(dropEstCont) == 0 {
		return nil
	}
	discarded := NewModel()
	for _, c := range dropEst {
		discarded.Add(c, false, false)
	}
	for _, c := range dropEstCont {
		discarded.Add(c, false, false)
	}
	return o.addModelVis(discarded, -1)
}

// ClearModel implements spec.md §4.10 clear_model: clearOld/clearNew
// conditionally clear the established/tentative lists (main or continuum).
// With continuum set, clearOld empties the established continuum by moving
// its components to the head of the tentative continuum, where clearNew
// then discards them; it does not discard them itself.
// Clearing the established model also zeroes ModelStore, the in-memory
// model visibilities, and the zero-spacing model amplitude.
func (o *Observation) ClearModel(clearOld, clearNew, continuum bool) error {
	if clearOld {
		if continuum {
			o.TentContinuum.Splice(o.EstContinuum, true)
		} else {
			o.Established.Clear()
		}
		if err := o.clearModelStore(); err != nil {
			return err
		}
		o.zeroSpacingModelAmp = 0
	}
	if clearNew {
		if continuum {
			o.TentContinuum.Clear()
		} else {
			o.Tentative.Clear()
		}
	}
	return nil
}

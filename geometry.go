package visengine

import "math"

// Rotate rotates every in-memory visibility's (u,v) clockwise by angle
// radians and records the increment in o.RotationRadians, grounded on
// difmap's uvrotate.c. The rotation is reapplied to every IF as it is
// swapped into residence (spec.md §4.8), via ReapplyGeometry.
func (o *Observation) Rotate(angle float64) error {
	if err := o.requireState(Indexed, "Rotate"); err != nil {
		return err
	}
	o.RotationRadians += angle
	if o.ifResidentValid {
		rotateResident(o, angle)
	}
	return nil
}

func rotateResident(o *Observation, angle float64) {
	sinA, cosA := math.Sin(angle), math.Cos(angle)
	for _, integ := range o.TimeIndex {
		for i := range integ.Visibilities {
			v := &integ.Visibilities[i]
			u, vv := v.U, v.V
			v.U = u*cosA + vv*sinA
			v.V = vv*cosA - u*sinA
		}
	}
}

// Shift moves the phase center by (east, north) radians on the sky,
// applying the standard interferometric phase-shift theorem to every
// in-memory visibility's phase and translating every sky-model component
// by the opposite offset so the model stays registered to the new phase
// center. Recorded cumulatively in o.ShiftEast/ShiftNorth (spec.md §4.8).
func (o *Observation) Shift(east, north float64) error {
	if err := o.requireState(Indexed, "Shift"); err != nil {
		return err
	}
	o.ShiftEast += east
	o.ShiftNorth += north
	if o.ifResidentValid {
		shiftResident(o, east, north)
	}
	shiftModelComponents(o.Established, -east, -north)
	shiftModelComponents(o.Tentative, -east, -north)
	shiftModelComponents(o.EstContinuum, -east, -north)
	shiftModelComponents(o.TentContinuum, -east, -north)
	return nil
}

func shiftResident(o *Observation, east, north float64) {
	cif := o.residentIF
	freq := o.IFs[cif].FirstChannelFreqHz
	for _, integ := range o.TimeIndex {
		for i := range integ.Visibilities {
			v := &integ.Visibilities[i]
			u, vv, _ := v.UVWavelengths(freq)
			v.Phase += 2 * math.Pi * (u*east + vv*north)
		}
	}
}

// ScaleWeights multiplies the current weight scale factor by the ratio
// needed to reach newScale and applies the incremental multiplier to every
// in-memory visibility's weight and every baseline's per-IF weight sum,
// grounded on difmap's wtscal.c wtscale. newScale must be > 0.
func (o *Observation) ScaleWeights(newScale float64) error {
	if err := o.requireState(Indexed, "ScaleWeights"); err != nil {
		return err
	}
	if newScale <= 0 {
		return ErrBadArg
	}
	mult := newScale / o.WeightScale
	o.WeightScale = newScale

	for _, sub := range o.SubArrays {
		for bi := range sub.Baselines {
			for cif := range sub.Baselines[bi].WeightSums {
				sub.Baselines[bi].WeightSums[cif] *= mult
			}
		}
	}
	if o.ifResidentValid {
		for _, integ := range o.TimeIndex {
			for i := range integ.Visibilities {
				integ.Visibilities[i].Weight *= mult
			}
		}
	}
	return nil
}

// ReapplyGeometry reapplies the observation's cumulative rotation, shift,
// and weight-scale totals to a newly-swapped-in IF's in-memory
// visibilities, grounded on difmap's obutil.c iniIF geometry-reapplication
// block (spec.md §4.6, §4.8: "recorded geometry... reapplied on every IF
// swap").
func (o *Observation) ReapplyGeometry(cif int) {
	freq := o.IFs[cif].FirstChannelFreqHz
	sinA, cosA := math.Sin(o.RotationRadians), math.Cos(o.RotationRadians)
	for _, integ := range o.TimeIndex {
		for i := range integ.Visibilities {
			v := &integ.Visibilities[i]
			if o.RotationRadians != 0 {
				u, vv := v.U, v.V
				v.U = u*cosA + vv*sinA
				v.V = vv*cosA - u*sinA
			}
			if o.ShiftEast != 0 || o.ShiftNorth != 0 {
				u, vv, _ := v.UVWavelengths(freq)
				v.Phase += 2 * math.Pi * (u*o.ShiftEast + vv*o.ShiftNorth)
			}
			if o.WeightScale != 1 {
				v.Weight *= o.WeightScale
			}
		}
	}
}

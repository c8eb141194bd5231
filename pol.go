package visengine

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// PolRecipe names which synthesis rule a PolDescriptor uses to produce a
// polarization from the recorded hands/parameters, grounded on difmap's
// obpol.c get_Obpol dispatch.
type PolRecipe int

const (
	PolDirect PolRecipe = iota // a single recorded polarization, used as-is
	PolStokesI
	PolStokesQ
	PolStokesU
	PolStokesV
	PolPseudoI
)

// PolDescriptor carries either a direct index into Observation.Pols or a
// combination recipe over two recorded indices (spec.md §4.5, §9 "Dynamic
// dispatch by Stokes type... is replaced by a polarization descriptor").
type PolDescriptor struct {
	Recipe   PolRecipe
	Name     string
	IndexA   int // index into Observation.Pols; -1 if unavailable
	IndexB   int // -1 when the recipe needs only one input
}

// findStokes returns the index of label within o.Pols, or -1.
func findStokes(o *Observation, label string) int {
	return lo.IndexOf(o.Pols, label)
}

// ResolvePolarization implements spec.md §4.4 step 4 / §4.5: resolves the
// literal polarization name (one of the recorded labels, "I","Q","U","V",
// "PI" for pseudo-I, or "" for NO_POL) to a PolDescriptor.
func (o *Observation) ResolvePolarization(name string) (PolDescriptor, error) {
	if name == "" {
		if o.SelectedPol.Name != "" {
			return o.SelectedPol, nil
		}
		if d, err := o.ResolvePolarization("I"); err == nil {
			return d, nil
		}
		if len(o.Pols) > 0 {
			return o.ResolvePolarization(o.Pols[0])
		}
		return PolDescriptor{}, ErrPolarizationUnavailable
	}

	if idx := findStokes(o, name); idx >= 0 {
		return PolDescriptor{Recipe: PolDirect, Name: name, IndexA: idx, IndexB: -1}, nil
	}

	switch name {
	case "I":
		rr, ll := findStokes(o, "RR"), findStokes(o, "LL")
		if rr < 0 || ll < 0 {
			return PolDescriptor{}, fmt.Errorf("%w: I needs RR and LL", ErrPolarizationUnavailable)
		}
		return PolDescriptor{Recipe: PolStokesI, Name: name, IndexA: rr, IndexB: ll}, nil
	case "Q":
		rl, lr := findStokes(o, "RL"), findStokes(o, "LR")
		if rl < 0 || lr < 0 {
			return PolDescriptor{}, fmt.Errorf("%w: Q needs RL and LR", ErrPolarizationUnavailable)
		}
		return PolDescriptor{Recipe: PolStokesQ, Name: name, IndexA: rl, IndexB: lr}, nil
	case "U":
		lr, rl := findStokes(o, "LR"), findStokes(o, "RL")
		if lr < 0 || rl < 0 {
			return PolDescriptor{}, fmt.Errorf("%w: U needs LR and RL", ErrPolarizationUnavailable)
		}
		return PolDescriptor{Recipe: PolStokesU, Name: name, IndexA: lr, IndexB: rl}, nil
	case "V":
		rr, ll := findStokes(o, "RR"), findStokes(o, "LL")
		if rr < 0 || ll < 0 {
			return PolDescriptor{}, fmt.Errorf("%w: V needs RR and LL", ErrPolarizationUnavailable)
		}
		return PolDescriptor{Recipe: PolStokesV, Name: name, IndexA: rr, IndexB: ll}, nil
	case "PI":
		rr, ll := findStokes(o, "RR"), findStokes(o, "LL")
		if rr < 0 && ll < 0 {
			return PolDescriptor{}, fmt.Errorf("%w: PI needs RR or LL", ErrPolarizationUnavailable)
		}
		if rr < 0 {
			rr, ll = ll, -1
		}
		return PolDescriptor{Recipe: PolPseudoI, Name: name, IndexA: rr, IndexB: ll}, nil
	}
	return PolDescriptor{}, ErrPolarizationUnavailable
}

// Synthesize combines the per-channel polarized visibilities in raw (one
// ComplexVis per recorded polarization, same channel/baseline/IF) according
// to d's recipe, per spec.md §4.5.
func (d PolDescriptor) Synthesize(raw []ComplexVis) (ComplexVis, error) {
	switch d.Recipe {
	case PolDirect:
		if d.IndexA < 0 || d.IndexA >= len(raw) {
			return ComplexVis{}, ErrBadIndex
		}
		return raw[d.IndexA], nil
	case PolStokesI, PolStokesV:
		a, b := raw[d.IndexA], raw[d.IndexB]
		if a.Deleted() || b.Deleted() {
			return ComplexVis{Weight: 0}, nil
		}
		flagged := a.Flagged() || b.Flagged()
		wA, wB := math.Abs(a.Weight), math.Abs(b.Weight)
		w := 4.0 / (1.0/wA + 1.0/wB)
		var re, im float64
		if d.Recipe == PolStokesI {
			re, im = (a.Re+b.Re)/2, (a.Im+b.Im)/2
		} else {
			re, im = (a.Re-b.Re)/2, (a.Im-b.Im)/2
		}
		if flagged {
			w = -w
		}
		return ComplexVis{Re: re, Im: im, Weight: w}, nil
	case PolStokesQ:
		a, b := raw[d.IndexA], raw[d.IndexB] // RL, LR
		if a.Deleted() || b.Deleted() {
			return ComplexVis{Weight: 0}, nil
		}
		flagged := a.Flagged() || b.Flagged()
		wA, wB := math.Abs(a.Weight), math.Abs(b.Weight)
		w := 4.0 / (1.0/wA + 1.0/wB)
		re, im := (a.Re+b.Re)/2, (a.Im+b.Im)/2
		if flagged {
			w = -w
		}
		return ComplexVis{Re: re, Im: im, Weight: w}, nil
	case PolStokesU:
		// U = i(LR-RL)/2: IndexA=LR, IndexB=RL.
		a, b := raw[d.IndexA], raw[d.IndexB]
		if a.Deleted() || b.Deleted() {
			return ComplexVis{Weight: 0}, nil
		}
		flagged := a.Flagged() || b.Flagged()
		wA, wB := math.Abs(a.Weight), math.Abs(b.Weight)
		w := 4.0 / (1.0/wA + 1.0/wB)
		dre, dim := a.Re-b.Re, a.Im-b.Im
		// multiply (dre + i*dim) by i => (-dim + i*dre), then /2
		re, im := -dim/2, dre/2
		if flagged {
			w = -w
		}
		return ComplexVis{Re: re, Im: im, Weight: w}, nil
	case PolPseudoI:
		a := raw[d.IndexA]
		if d.IndexB < 0 {
			return a, nil
		}
		b := raw[d.IndexB]
		switch {
		case a.Deleted() && b.Deleted():
			return ComplexVis{Weight: 0}, nil
		case a.Flagged() == b.Flagged() && !a.Deleted() && !b.Deleted():
			wA, wB := math.Abs(a.Weight), math.Abs(b.Weight)
			re := (wA*a.Re + wB*b.Re) / (wA + wB)
			im := (wA*a.Im + wB*b.Im) / (wA + wB)
			w := wA + wB
			if a.Flagged() {
				w = -w
			}
			return ComplexVis{Re: re, Im: im, Weight: w}, nil
		case !a.Flagged() && !a.Deleted():
			return a, nil
		case !b.Flagged() && !b.Deleted():
			return b, nil
		default:
			return ComplexVis{Weight: 0}, nil
		}
	default:
		return ComplexVis{}, ErrBadArg
	}
}

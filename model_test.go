package visengine

import "testing"

func TestModelAddAppendAndPrepend(t *testing.T) {
	m := NewModel()
	m.Add(&ModelComponent{Flux: 1}, false, false)
	m.Add(&ModelComponent{Flux: 2}, false, false)
	m.Add(&ModelComponent{Flux: 3}, true, false)

	got := m.Components()
	if len(got) != 3 {
		t.Fatalf("Count() = %d, want 3", len(got))
	}
	if got[0].Flux != 3 || got[1].Flux != 1 || got[2].Flux != 2 {
		t.Fatalf("order wrong: %v", []float64{got[0].Flux, got[1].Flux, got[2].Flux})
	}
	if m.TotalFlux() != 6 {
		t.Fatalf("TotalFlux() = %v, want 6", m.TotalFlux())
	}
}

func TestModelAddCombinesCoincidentDeltas(t *testing.T) {
	m := NewModel()
	m.Add(&ModelComponent{Shape: ShapeDelta, Flux: 1, X: 0.5, Y: 0.5}, false, true)
	m.Add(&ModelComponent{Shape: ShapeDelta, Flux: 2, X: 0.5, Y: 0.5}, false, true)

	if m.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (coincident deltas should combine)", m.Count())
	}
	if m.TotalFlux() != 3 {
		t.Fatalf("TotalFlux() = %v, want 3", m.TotalFlux())
	}
}

func TestModelSpliceMovesAndEmptiesSource(t *testing.T) {
	a := NewModel()
	a.Add(&ModelComponent{Flux: 1}, false, false)
	b := NewModel()
	b.Add(&ModelComponent{Flux: 2}, false, false)
	b.Add(&ModelComponent{Flux: 3}, false, false)

	a.Splice(b, false)

	if a.Count() != 3 {
		t.Fatalf("a.Count() = %d, want 3", a.Count())
	}
	if b.Count() != 0 {
		t.Fatalf("b.Count() = %d, want 0 after splice", b.Count())
	}
	flux := a.TotalFlux()
	if flux != 6 {
		t.Fatalf("a.TotalFlux() = %v, want 6", flux)
	}
}

func TestModelSpliceAtHeadPreservesOrder(t *testing.T) {
	a := NewModel()
	a.Add(&ModelComponent{Flux: 1}, false, false)
	b := NewModel()
	b.Add(&ModelComponent{Flux: 2}, false, false)
	b.Add(&ModelComponent{Flux: 3}, false, false)

	a.Splice(b, true)

	got := a.Components()
	want := []float64{2, 3, 1}
	for i, c := range got {
		if c.Flux != want[i] {
			t.Fatalf("got %v, want %v", fluxesOf(got), want)
		}
	}
}

func fluxesOf(cs []*ModelComponent) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Flux
	}
	return out
}

func TestModelCopyIsIndependent(t *testing.T) {
	m := NewModel()
	m.Add(&ModelComponent{Flux: 1}, false, false)
	cp := m.Copy()
	m.Add(&ModelComponent{Flux: 2}, false, false)

	if cp.Count() != 1 {
		t.Fatalf("copy mutated by later Add on original: Count() = %d", cp.Count())
	}
}

func TestModelSquashMergesCoincidentDeltas(t *testing.T) {
	m := NewModel()
	m.Add(&ModelComponent{Shape: ShapeDelta, Flux: 1, X: 1, Y: 1}, false, false)
	m.Add(&ModelComponent{Shape: ShapeDelta, Flux: 2, X: 1, Y: 1}, false, false)
	m.Add(&ModelComponent{Shape: ShapeGaussian, Flux: 5, X: 2, Y: 2}, false, false)

	m.Squash()

	if !m.IsSquashed() {
		t.Fatal("IsSquashed() = false after Squash")
	}
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (two deltas merged, one gaussian untouched)", m.Count())
	}
}

func TestPartitionVariable(t *testing.T) {
	est := NewModel()
	tent := NewModel()
	est.Add(&ModelComponent{Flux: 1, Free: 0}, false, false)
	est.Add(&ModelComponent{Flux: 2, Free: FreeFlux}, false, false)
	tent.Add(&ModelComponent{Flux: 3, Free: 0}, false, false)

	PartitionVariable(est, tent)

	if est.Count() != 2 {
		t.Fatalf("est.Count() = %d, want 2 (fixed components)", est.Count())
	}
	if tent.Count() != 1 {
		t.Fatalf("tent.Count() = %d, want 1 (variable component)", tent.Count())
	}
	for _, c := range tent.Components() {
		if !c.IsVariable() {
			t.Fatal("tentative list contains a non-variable component")
		}
	}
}

func TestWindowModelKeepInside(t *testing.T) {
	m := NewModel()
	m.Add(&ModelComponent{Flux: 1, X: 0, Y: 0}, false, false)
	m.Add(&ModelComponent{Flux: 2, X: 100, Y: 100}, false, false)
	windows := []SkyWindow{{XMin: -1, XMax: 1, YMin: -1, YMax: 1}}

	dropped := WindowModel(m, windows, false)

	if m.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 surviving component", m.Count())
	}
	if len(dropped) != 1 || dropped[0].Flux != 2 {
		t.Fatalf("dropped = %v, want the out-of-window component", dropped)
	}
}

func TestWindowModelKeepOutside(t *testing.T) {
	m := NewModel()
	m.Add(&ModelComponent{Flux: 1, X: 0, Y: 0}, false, false)
	m.Add(&ModelComponent{Flux: 2, X: 100, Y: 100}, false, false)
	windows := []SkyWindow{{XMin: -1, XMax: 1, YMin: -1, YMax: 1}}

	dropped := WindowModel(m, windows, true)

	if m.Count() != 1 || m.Components()[0].Flux != 2 {
		t.Fatalf("expected the out-of-window component to survive, got %v", m.Components())
	}
	if len(dropped) != 1 || dropped[0].Flux != 1 {
		t.Fatalf("dropped = %v, want the in-window component", dropped)
	}
}

package visengine

import "testing"

func obsWithPols(pols ...string) *Observation {
	return &Observation{Pols: pols}
}

func TestResolvePolarizationDirect(t *testing.T) {
	o := obsWithPols("RR", "LL")
	d, err := o.ResolvePolarization("RR")
	if err != nil {
		t.Fatalf("ResolvePolarization: %v", err)
	}
	if d.Recipe != PolDirect || d.IndexA != 0 {
		t.Fatalf("got %+v, want direct index 0", d)
	}
}

func TestResolvePolarizationStokesI(t *testing.T) {
	o := obsWithPols("RR", "LL")
	d, err := o.ResolvePolarization("I")
	if err != nil {
		t.Fatalf("ResolvePolarization: %v", err)
	}
	if d.Recipe != PolStokesI {
		t.Fatalf("got recipe %v, want PolStokesI", d.Recipe)
	}
}

func TestResolvePolarizationMissingHandsFails(t *testing.T) {
	o := obsWithPols("RR")
	if _, err := o.ResolvePolarization("I"); err == nil {
		t.Fatal("expected error resolving I without LL")
	}
}

func TestResolvePolarizationEmptyFallsBackToRecorded(t *testing.T) {
	o := obsWithPols("XX")
	d, err := o.ResolvePolarization("")
	if err != nil {
		t.Fatalf("ResolvePolarization(\"\"): %v", err)
	}
	if d.Name != "XX" {
		t.Fatalf("got %+v, want fallback to recorded XX", d)
	}
}

func TestResolvePolarizationEmptyObservationFails(t *testing.T) {
	o := obsWithPols()
	if _, err := o.ResolvePolarization(""); err == nil {
		t.Fatal("expected error for an observation with no recorded polarizations")
	}
}

func TestSynthesizeDirect(t *testing.T) {
	d := PolDescriptor{Recipe: PolDirect, IndexA: 1}
	raw := []ComplexVis{{Re: 1}, {Re: 2, Weight: 5}}
	got, err := d.Synthesize(raw)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Re != 2 || got.Weight != 5 {
		t.Fatalf("got %+v, want raw[1]", got)
	}
}

func TestSynthesizeStokesIAverages(t *testing.T) {
	d := PolDescriptor{Recipe: PolStokesI, IndexA: 0, IndexB: 1}
	raw := []ComplexVis{
		{Re: 2, Im: 0, Weight: 1},
		{Re: 4, Im: 0, Weight: 1},
	}
	got, err := d.Synthesize(raw)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Re != 3 {
		t.Fatalf("Re = %v, want 3", got.Re)
	}
	if got.Weight <= 0 {
		t.Fatalf("Weight = %v, want positive (unflagged)", got.Weight)
	}
}

func TestSynthesizeStokesIFlaggedPropagates(t *testing.T) {
	d := PolDescriptor{Recipe: PolStokesI, IndexA: 0, IndexB: 1}
	raw := []ComplexVis{
		{Re: 2, Weight: 1},
		{Re: 4, Weight: -1},
	}
	got, err := d.Synthesize(raw)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !got.Flagged() {
		t.Fatal("expected synthesized sample to be flagged when either input is flagged")
	}
}

func TestSynthesizeStokesIDeletedPropagates(t *testing.T) {
	d := PolDescriptor{Recipe: PolStokesI, IndexA: 0, IndexB: 1}
	raw := []ComplexVis{
		{Re: 2, Weight: 0},
		{Re: 4, Weight: 1},
	}
	got, err := d.Synthesize(raw)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !got.Deleted() {
		t.Fatal("expected synthesized sample to be deleted when either input is deleted")
	}
}

func TestSynthesizePseudoISingleHand(t *testing.T) {
	d := PolDescriptor{Recipe: PolPseudoI, IndexA: 0, IndexB: -1}
	raw := []ComplexVis{{Re: 3, Im: 1, Weight: 2}}
	got, err := d.Synthesize(raw)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != raw[0] {
		t.Fatalf("got %+v, want raw[0] unchanged", got)
	}
}

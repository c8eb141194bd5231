package visengine

import "testing"

func TestVoltageBeamValueInterpolatesLinearly(t *testing.T) {
	vb := &VoltageBeam{samples: []float64{1, 0.5, 0}, binwidth: 1, freq: 1}
	got := vb.Value(0.5, 1)
	want := 0.75
	if !closeEnough(got, want) {
		t.Fatalf("Value(0.5) = %v, want %v", got, want)
	}
}

func TestVoltageBeamValueBeforeFirstBin(t *testing.T) {
	vb := &VoltageBeam{samples: []float64{1, 0.5, 0}, binwidth: 1, freq: 1}
	if got := vb.Value(-1, 1); got != 1 {
		t.Fatalf("Value(-1) = %v, want first sample 1", got)
	}
}

func TestVoltageBeamValueBeyondExtentIsZero(t *testing.T) {
	vb := &VoltageBeam{samples: []float64{1, 0.5, 0}, binwidth: 1, freq: 1}
	if got := vb.Value(10, 1); got != 0 {
		t.Fatalf("Value(10) = %v, want 0 beyond sampled extent", got)
	}
}

func TestAntennaBeamsInternDeduplicatesByContent(t *testing.T) {
	ab := NewAntennaBeams()
	samples := []float64{1, 0.5, 0}
	a, err := ab.Intern(samples, 1, 1.4e9, 1)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	b, err := ab.Intern(append([]float64(nil), samples...), 1, 1.4e9, 1)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if a != b {
		t.Fatal("expected identical beam content to intern to the same object")
	}
	if ab.TotalRefs() != 2 {
		t.Fatalf("TotalRefs() = %d, want 2", ab.TotalRefs())
	}
}

func TestAntennaBeamsInternRejectsTooFewSamples(t *testing.T) {
	ab := NewAntennaBeams()
	if _, err := ab.Intern([]float64{1}, 1, 1, 1); err == nil {
		t.Fatal("expected error for fewer than 2 samples")
	}
}

func TestAntennaBeamsReleaseRemovesAtZeroRefs(t *testing.T) {
	ab := NewAntennaBeams()
	vb, err := ab.Intern([]float64{1, 0.5}, 1, 1, 1)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	ab.Release(vb)
	if ab.TotalRefs() != 0 {
		t.Fatalf("TotalRefs() = %d, want 0", ab.TotalRefs())
	}
	if len(ab.beams) != 0 {
		t.Fatal("expected beam to be removed from the registry once refs reach 0")
	}
}

func TestAntennaBeamsDupIncrementsRefs(t *testing.T) {
	ab := NewAntennaBeams()
	vb, _ := ab.Intern([]float64{1, 0.5}, 1, 1, 1)
	ab.Dup(vb)
	if ab.TotalRefs() != 2 {
		t.Fatalf("TotalRefs() = %d, want 2", ab.TotalRefs())
	}
}

func TestPrimaryBeamFactorIsProductOfTheTwoVoltageBeams(t *testing.T) {
	a := &Antenna{VoltageBeam: &VoltageBeam{samples: []float64{1, 0.5}, binwidth: 1, freq: 1}}
	b := &Antenna{VoltageBeam: &VoltageBeam{samples: []float64{1, 0.25}, binwidth: 1, freq: 1}}
	got := PrimaryBeamFactor(a, b, 0, 1)
	if !closeEnough(got, 1) {
		t.Fatalf("PrimaryBeamFactor at radius 0 = %v, want 1 (1*1)", got)
	}
	got = PrimaryBeamFactor(a, b, 1, 1)
	if !closeEnough(got, 0.5*0.25) {
		t.Fatalf("PrimaryBeamFactor at radius 1 = %v, want %v", got, 0.5*0.25)
	}
}

func TestPrimaryBeamFactorDefaultsToOneWithNoVoltageBeam(t *testing.T) {
	a := &Antenna{}
	b := &Antenna{}
	if got := PrimaryBeamFactor(a, b, 0, 1); got != 1 {
		t.Fatalf("PrimaryBeamFactor with no voltage beams = %v, want 1", got)
	}
}

func newTestObservationForPrimaryBeamMean() (*Observation, func() error) {
	sub := SubArray{
		Antennas: []Antenna{
			{VoltageBeam: &VoltageBeam{samples: []float64{1, 0}, binwidth: 1, freq: 1}},
			{VoltageBeam: &VoltageBeam{samples: []float64{1, 0}, binwidth: 1, freq: 1}},
			{VoltageBeam: &VoltageBeam{samples: []float64{1, 1}, binwidth: 1, freq: 1}},
		},
		Baselines: []Baseline{
			{AntennaA: 0, AntennaB: 1, WeightSums: []float64{2}},
			{AntennaA: 0, AntennaB: 2, WeightSums: []float64{6}},
		},
	}
	o := &Observation{
		IFs:       []IFDescriptor{{Selected: NewChannelRangeSet()}},
		SubArrays: []SubArray{sub},
	}
	o.IFs[0].Selected.Add(0, 1)
	return o, nil
}

func TestObservationPrimaryBeamMeanWeightsByWeightSums(t *testing.T) {
	o, _ := newTestObservationForPrimaryBeamMean()
	// Not stale, so the pre-set WeightSums above are used directly (no
	// IFStore is configured to recompute from).
	got, err := o.ObservationPrimaryBeamMean(0, 0.5, 1)
	if err != nil {
		t.Fatalf("ObservationPrimaryBeamMean: %v", err)
	}
	// At radius 0.5 antennas 0 and 1 interpolate to 0.5 (between 1 and 0)
	// and antenna 2 to 1 (flat). baseline (0,1): factor = 0.5*0.5 = 0.25,
	// weight 2. baseline (0,2): factor = 0.5*1 = 0.5, weight 6.
	// Weighted mean = (2*0.25 + 6*0.5) / 8 = 0.4375.
	want := (2*0.25 + 6*0.5) / 8
	if !closeEnough(got, want) {
		t.Fatalf("ObservationPrimaryBeamMean = %v, want weighted mean %v", got, want)
	}
}

func TestObservationPrimaryBeamMeanNoWeightFallsBackToOne(t *testing.T) {
	o, _ := newTestObservationForPrimaryBeamMean()
	o.SubArrays[0].Baselines[0].WeightSums[0] = 0
	o.SubArrays[0].Baselines[1].WeightSums[0] = 0
	got, err := o.ObservationPrimaryBeamMean(0, 0, 1)
	if err != nil {
		t.Fatalf("ObservationPrimaryBeamMean: %v", err)
	}
	if got != 1 {
		t.Fatalf("ObservationPrimaryBeamMean = %v, want 1 when no baseline carries positive weight", got)
	}
}

func TestRecomputeWeightSumsIsNoopWhenNotStale(t *testing.T) {
	o, _ := newTestObservationForPrimaryBeamMean()
	before := o.SubArrays[0].Baselines[0].WeightSums[0]
	if err := o.recomputeWeightSums(0); err != nil {
		t.Fatalf("recomputeWeightSums: %v", err)
	}
	if o.SubArrays[0].Baselines[0].WeightSums[0] != before {
		t.Fatal("recomputeWeightSums should be a no-op when WeightsStale is false")
	}
}

func TestChecksumOfIsDeterministic(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	a := checksumOf(buf)
	b := checksumOf(append([]byte(nil), buf...))
	if a != b {
		t.Fatal("checksumOf should be deterministic over identical input")
	}
	if checksumOf([]byte{1, 2, 3}) == a {
		t.Fatal("checksumOf should differ for different input")
	}
}

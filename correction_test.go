package visengine

import "testing"

func newTestIntegrationForCorrections() *Integration {
	sub := &SubArray{
		Baselines: []Baseline{
			{AntennaA: 0, AntennaB: 1, Corrections: []BaselineCorrection{{Amp: 2, Phase: 0.5}}},
		},
	}
	integ := &Integration{
		SubArray:     sub,
		Visibilities: []Visibility{{Amp: 1, Phase: 0, Weight: 1}},
		Corrections: [][]AntennaCorrection{
			{{Amp: 2, Phase: 0.1}, {Amp: 3, Phase: 0.2}},
		},
	}
	return integ
}

func TestApplyCorrectionsScalesAmpAndWeight(t *testing.T) {
	integ := newTestIntegrationForCorrections()
	ApplyCorrections(integ, 0)

	v := integ.Visibilities[0]
	gcor := 2.0 * 3.0
	if v.Amp != gcor {
		t.Fatalf("Amp = %v, want %v", v.Amp, gcor)
	}
	if v.Weight != 1/(gcor*gcor) {
		t.Fatalf("Weight = %v, want %v", v.Weight, 1/(gcor*gcor))
	}
	wantPhase := 0.1 - 0.2
	if v.Phase != wantPhase {
		t.Fatalf("Phase = %v, want %v", v.Phase, wantPhase)
	}
}

func TestApplyCorrectionsNonPositiveGainLeavesAmpAlone(t *testing.T) {
	integ := newTestIntegrationForCorrections()
	integ.Corrections[0][0].Amp = 0
	ApplyCorrections(integ, 0)

	if integ.Visibilities[0].Amp != 1 {
		t.Fatalf("Amp = %v, want unchanged 1 when combined gain <= 0", integ.Visibilities[0].Amp)
	}
	if integ.Visibilities[0].Weight != 1 {
		t.Fatalf("Weight = %v, want unchanged 1 when combined gain <= 0", integ.Visibilities[0].Weight)
	}
}

func TestApplyCorrectionsSetsFlaggedBits(t *testing.T) {
	integ := newTestIntegrationForCorrections()
	integ.Corrections[0][0].Flagged = true
	ApplyCorrections(integ, 0)

	if integ.Visibilities[0].Bad&FlagAntennaABad == 0 {
		t.Fatal("expected FlagAntennaABad to be set")
	}
	if integ.Visibilities[0].Bad&FlagAntennaBBad != 0 {
		t.Fatal("did not expect FlagAntennaBBad to be set")
	}
}

func TestApplyThenUnapplyCorrectionsRoundTrips(t *testing.T) {
	integ := newTestIntegrationForCorrections()
	orig := integ.Visibilities[0]

	ApplyCorrections(integ, 0)
	UnapplyCorrections(integ, 0, true, true, true)

	got := integ.Visibilities[0]
	if closeEnough(got.Amp, orig.Amp) != true || closeEnough(got.Phase, orig.Phase) != true || closeEnough(got.Weight, orig.Weight) != true {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, orig)
	}
}

func closeEnough(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func TestResetCorrectionsSelectiveFields(t *testing.T) {
	corr := []AntennaCorrection{{Amp: 5, Phase: 1, Flagged: true}}
	ResetCorrections(corr, true, false, false)
	if corr[0].Amp != 1 {
		t.Fatalf("Amp = %v, want reset to 1", corr[0].Amp)
	}
	if corr[0].Phase != 1 {
		t.Fatal("Phase should not have been reset")
	}
	if !corr[0].Flagged {
		t.Fatal("Flagged should not have been reset")
	}
}

func TestApplyBaselineCorrectionsIsExactlyReversedByNegation(t *testing.T) {
	integ := newTestIntegrationForCorrections()
	orig := integ.Visibilities[0]

	ApplyBaselineCorrections(integ, 0)
	got := integ.Visibilities[0]
	if got.Amp != orig.Amp*2 {
		t.Fatalf("Amp = %v, want %v", got.Amp, orig.Amp*2)
	}
	if got.Phase != orig.Phase+0.5 {
		t.Fatalf("Phase = %v, want %v", got.Phase, orig.Phase+0.5)
	}

	negated := BaselineCorrection{Amp: 1 / integ.SubArray.Baselines[0].Corrections[0].Amp, Phase: -integ.SubArray.Baselines[0].Corrections[0].Phase}
	integ.SubArray.Baselines[0].Corrections[0] = negated
	ApplyBaselineCorrections(integ, 0)

	final := integ.Visibilities[0]
	if !closeEnough(final.Amp, orig.Amp) || !closeEnough(final.Phase, orig.Phase) {
		t.Fatalf("negated correction did not restore original: got %+v, want %+v", final, orig)
	}
}

func TestFlagBaselineWeightsSingleIF(t *testing.T) {
	o := &Observation{IFs: []IFDescriptor{{}, {}}}
	flagBaselineWeights(o, 1)
	if o.IFs[0].WeightsStale {
		t.Fatal("IF 0 should not be marked stale")
	}
	if !o.IFs[1].WeightsStale {
		t.Fatal("IF 1 should be marked stale")
	}
}

func TestFlagBaselineWeightsAllIFs(t *testing.T) {
	o := &Observation{IFs: []IFDescriptor{{}, {}}}
	flagBaselineWeights(o, -1)
	if !o.IFs[0].WeightsStale || !o.IFs[1].WeightsStale {
		t.Fatal("expected all IFs to be marked stale when cif < 0")
	}
}

func newTestObservationForCorrectionEdits() (*Observation, *SubArray) {
	sub := &SubArray{
		Antennas: []Antenna{{Number: 1}, {Number: 2}},
		Baselines: []Baseline{
			{AntennaA: 0, AntennaB: 1},
		},
		Integrations: []Integration{
			{
				Visibilities: []Visibility{{Amp: 1, Phase: 0, Weight: 1}},
				Corrections: [][]AntennaCorrection{
					{{Amp: 1}, {Amp: 1}},
				},
			},
		},
	}
	o := &Observation{
		IFs:             []IFDescriptor{{}},
		ifResidentValid: true,
		residentIF:      0,
	}
	return o, sub
}

func TestEditCorrectionFlagsVisibilitiesOnResidentIF(t *testing.T) {
	o, sub := newTestObservationForCorrectionEdits()
	if err := o.EditCorrection(sub, 0, 0, 0, true); err != nil {
		t.Fatalf("EditCorrection: %v", err)
	}
	if !sub.Integrations[0].Corrections[0][0].Flagged {
		t.Fatal("expected antenna 0's correction to be flagged")
	}
	if sub.Integrations[0].Visibilities[0].Bad&FlagAntennaABad == 0 {
		t.Fatal("expected FlagAntennaABad set on the baseline touching antenna 0")
	}
	if !o.IFs[0].WeightsStale {
		t.Fatal("expected WeightsStale to be set")
	}

	if err := o.EditCorrection(sub, 0, 0, 0, false); err != nil {
		t.Fatalf("EditCorrection (clear): %v", err)
	}
	if sub.Integrations[0].Visibilities[0].Bad&FlagAntennaABad != 0 {
		t.Fatal("expected FlagAntennaABad to be cleared")
	}
}

func TestEditCorrectionOnNonResidentIFSkipsVisibilities(t *testing.T) {
	o, sub := newTestObservationForCorrectionEdits()
	o.residentIF = 1
	if err := o.EditCorrection(sub, 0, 0, 0, true); err != nil {
		t.Fatalf("EditCorrection: %v", err)
	}
	if sub.Integrations[0].Visibilities[0].Bad != 0 {
		t.Fatal("expected no visibility change when the IF is not resident")
	}
	if !sub.Integrations[0].Corrections[0][0].Flagged {
		t.Fatal("the recorded correction should still be updated")
	}
}

func TestAdjustCorrectionScalesAmpAndPropagatesToVisibilities(t *testing.T) {
	o, sub := newTestObservationForCorrectionEdits()
	if err := o.AdjustCorrection(sub, 0, 0, 0, 2, 0.3); err != nil {
		t.Fatalf("AdjustCorrection: %v", err)
	}
	c := sub.Integrations[0].Corrections[0][0]
	if c.Amp != 2 || c.Phase != 0.3 {
		t.Fatalf("recorded correction = %+v, want Amp=2 Phase=0.3", c)
	}
	v := sub.Integrations[0].Visibilities[0]
	if !closeEnough(v.Amp, 2) {
		t.Fatalf("Amp = %v, want 2", v.Amp)
	}
	if !closeEnough(v.Phase, 0.3) {
		t.Fatalf("Phase = %v, want 0.3", v.Phase)
	}
	if !closeEnough(v.Weight, 1.0/4.0) {
		t.Fatalf("Weight = %v, want 0.25", v.Weight)
	}
}

func TestAdjustCorrectionNonPositiveAmpTreatedAsOne(t *testing.T) {
	o, sub := newTestObservationForCorrectionEdits()
	if err := o.AdjustCorrection(sub, 0, 0, 0, -5, 0.1); err != nil {
		t.Fatalf("AdjustCorrection: %v", err)
	}
	v := sub.Integrations[0].Visibilities[0]
	if !closeEnough(v.Amp, 1) {
		t.Fatalf("Amp = %v, want unchanged 1 for a non-positive amplitude factor", v.Amp)
	}
	if !closeEnough(v.Phase, 0.1) {
		t.Fatalf("Phase = %v, want 0.1", v.Phase)
	}
}

func TestClearCorrectionRemovesRecordedAdjustment(t *testing.T) {
	o, sub := newTestObservationForCorrectionEdits()
	if err := o.AdjustCorrection(sub, 0, 0, 0, 2, 0.3); err != nil {
		t.Fatalf("AdjustCorrection: %v", err)
	}
	orig := Visibility{Amp: 1, Phase: 0, Weight: 1}

	if err := o.ClearCorrection(sub, 0, 0, 0); err != nil {
		t.Fatalf("ClearCorrection: %v", err)
	}
	c := sub.Integrations[0].Corrections[0][0]
	if c.Amp != 1 || c.Phase != 0 {
		t.Fatalf("recorded correction = %+v, want reset to identity", c)
	}
	v := sub.Integrations[0].Visibilities[0]
	if !closeEnough(v.Amp, orig.Amp) || !closeEnough(v.Phase, orig.Phase) || !closeEnough(v.Weight, orig.Weight) {
		t.Fatalf("ClearCorrection did not restore original visibility: got %+v, want %+v", v, orig)
	}
}

func TestAdjustCorrectionRejectsOutOfRangeAntenna(t *testing.T) {
	o, sub := newTestObservationForCorrectionEdits()
	if err := o.AdjustCorrection(sub, 0, 0, 9, 1, 0); err == nil {
		t.Fatal("expected error for an out-of-range antenna index")
	}
}

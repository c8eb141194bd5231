package visengine

import (
	"path/filepath"
	"testing"
)

func TestRawStoreFullWindowRoundTrip(t *testing.T) {
	rs, err := OpenRawStore(filepath.Join(t.TempDir(), "raw"), 2, 2, 2, 1, ModeScratch)
	if err != nil {
		t.Fatalf("OpenRawStore: %v", err)
	}
	defer rs.Close()

	n := 2 * 2 * 2 * 1
	data := make([]ComplexVis, n)
	for i := range data {
		data[i] = ComplexVis{Re: float64(i), Weight: 1}
	}
	if err := rs.WriteIntegration(0, data); err != nil {
		t.Fatalf("WriteIntegration: %v", err)
	}
	got, err := rs.ReadIntegration(0)
	if err != nil {
		t.Fatalf("ReadIntegration: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("got[%d] = %+v, want %+v", i, got[i], data[i])
		}
	}
}

func TestRawStoreAtAddressesWindowedElement(t *testing.T) {
	rs, err := OpenRawStore(filepath.Join(t.TempDir(), "raw"), 2, 2, 1, 1, ModeScratch)
	if err != nil {
		t.Fatalf("OpenRawStore: %v", err)
	}
	defer rs.Close()

	data := make([]ComplexVis, 4)
	for i := range data {
		data[i] = ComplexVis{Re: float64(i), Weight: 1}
	}
	// layout is (cif,channel,baseline,pol); for nIF=1,nPol=1 the flat index
	// is channel*nBaseline + baseline.
	got := rs.At(data, 1, 1, 0, 0)
	if got.Re != 3 {
		t.Fatalf("At(baseline=1,channel=1) = %+v, want Re=3", got)
	}
}

func TestRawStoreSetWindowNarrowsAddressableRange(t *testing.T) {
	rs, err := OpenRawStore(filepath.Join(t.TempDir(), "raw"), 2, 4, 1, 1, ModeScratch)
	if err != nil {
		t.Fatalf("OpenRawStore: %v", err)
	}
	defer rs.Close()
	rs.SetWindow(RawWindow{ChannelFirst: 1, ChannelLast: 2, IFLast: 0, PolLast: 0, BaselineLast: 1})
	w := rs.Window()
	if w.nbuff != 2*2 {
		t.Fatalf("nbuff = %d, want 4 (2 baselines x 2 channels)", w.nbuff)
	}
}

func TestRawStoreWriteIntegrationRejectsWrongLength(t *testing.T) {
	rs, err := OpenRawStore(filepath.Join(t.TempDir(), "raw"), 1, 1, 1, 1, ModeScratch)
	if err != nil {
		t.Fatalf("OpenRawStore: %v", err)
	}
	defer rs.Close()
	if err := rs.WriteIntegration(0, make([]ComplexVis, 2)); err == nil {
		t.Fatal("expected error for a data slice that doesn't match the window size")
	}
}

func TestIFStoreBaselineRangeRoundTrip(t *testing.T) {
	s, err := OpenIFStore(filepath.Join(t.TempDir(), "ifstore"), 3, 2, ModeScratch)
	if err != nil {
		t.Fatalf("OpenIFStore: %v", err)
	}
	defer s.Close()

	data := []PolarVis{{Amp: 1, Phase: 0.1, Weight: 1}, {Amp: 2, Phase: 0.2, Weight: 1}}
	if err := s.WriteBaselineRange(0, 1, 1, data); err != nil {
		t.Fatalf("WriteBaselineRange: %v", err)
	}
	got, err := s.ReadBaselineRange(0, 1, 1, 2)
	if err != nil {
		t.Fatalf("ReadBaselineRange: %v", err)
	}
	for i := range data {
		if !closeEnough(got[i].Amp, data[i].Amp) || !closeEnough(got[i].Phase, data[i].Phase) {
			t.Fatalf("got[%d] = %+v, want %+v", i, got[i], data[i])
		}
	}
}

func TestModelStoreIntegrationRoundTrip(t *testing.T) {
	s, err := OpenModelStore(filepath.Join(t.TempDir(), "model"), 2, 3, ModeScratch)
	if err != nil {
		t.Fatalf("OpenModelStore: %v", err)
	}
	defer s.Close()

	data := []PolarVis{{Amp: 5, Phase: 1}, {Amp: 6, Phase: 2}}
	if err := s.WriteIntegration(0, 1, data); err != nil {
		t.Fatalf("WriteIntegration: %v", err)
	}
	got, err := s.ReadIntegration(0, 1)
	if err != nil {
		t.Fatalf("ReadIntegration: %v", err)
	}
	for i := range data {
		if !closeEnough(got[i].Amp, data[i].Amp) {
			t.Fatalf("got[%d].Amp = %v, want %v", i, got[i].Amp, data[i].Amp)
		}
	}
}

func TestModelStoreWriteIntegrationRejectsWrongBaselineCount(t *testing.T) {
	s, err := OpenModelStore(filepath.Join(t.TempDir(), "model"), 2, 1, ModeScratch)
	if err != nil {
		t.Fatalf("OpenModelStore: %v", err)
	}
	defer s.Close()
	if err := s.WriteIntegration(0, 0, make([]PolarVis, 1)); err == nil {
		t.Fatal("expected error for a data slice shorter than nBaseline")
	}
}

func TestModelStoreClearIFZeroesAllIntegrations(t *testing.T) {
	s, err := OpenModelStore(filepath.Join(t.TempDir(), "model"), 2, 2, ModeScratch)
	if err != nil {
		t.Fatalf("OpenModelStore: %v", err)
	}
	defer s.Close()

	nonzero := []PolarVis{{Amp: 1, Phase: 1}, {Amp: 2, Phase: 2}}
	if err := s.WriteIntegration(0, 0, nonzero); err != nil {
		t.Fatalf("WriteIntegration: %v", err)
	}
	if err := s.WriteIntegration(0, 1, nonzero); err != nil {
		t.Fatalf("WriteIntegration: %v", err)
	}
	if err := s.ClearIF(0); err != nil {
		t.Fatalf("ClearIF: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := s.ReadIntegration(0, i)
		if err != nil {
			t.Fatalf("ReadIntegration: %v", err)
		}
		for _, v := range got {
			if v.Amp != 0 || v.Phase != 0 {
				t.Fatalf("integration %d not cleared: %+v", i, v)
			}
		}
	}
}

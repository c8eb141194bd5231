package visengine

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// FileIngester and FileExporter are a minimal concrete implementation of
// the Ingester/Exporter boundary (ingest.go), reading and writing a small
// self-contained JSON interchange format rather than FITS — FITS decoding
// itself is the external collaborator's job (spec.md §1 Non-goals), but
// cmd/uvengine and cmd/uvbatch need *some* real collaborator to drive, the
// same way the teacher's cmd/main.go pairs its CLI directly with its own
// gsf.OpenGSF decoder rather than leaving it abstract.
type FileIngester struct {
	Path string
}

type visJSON struct {
	Re, Im, Weight float64
}

type uvwJSON struct {
	U, V, W float64
}

type ifJSON struct {
	FirstChannelFreqHz float64 `json:"first_channel_freq_hz"`
	ChannelWidthHz     float64 `json:"channel_width_hz"`
	BandwidthHz        float64 `json:"bandwidth_hz"`
	NChannel           int     `json:"n_channel"`
}

type antennaJSON struct {
	Name   string  `json:"name"`
	Number int     `json:"number"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

type integrationJSON struct {
	StartTime float64 `json:"start_time"`
	// Visibilities is indexed [baseline][channel][if][pol].
	Visibilities [][][][]visJSON `json:"visibilities"`
	// UVW is indexed [baseline]; light-seconds, independent of channel/IF/pol.
	UVW []uvwJSON `json:"uvw"`
}

type subArrayJSON struct {
	Antennas     []antennaJSON     `json:"antennas"`
	Integrations []integrationJSON `json:"integrations"`
}

type obsDescriptor struct {
	SourceName     string         `json:"source_name"`
	RAJ2000Deg     float64        `json:"ra_j2000_deg"`
	DecJ2000Deg    float64        `json:"dec_j2000_deg"`
	ReferenceEpoch string         `json:"reference_epoch"` // RFC3339
	Polarizations  []string       `json:"polarizations"`
	IFs            []ifJSON       `json:"ifs"`
	SubArrays      []subArrayJSON `json:"sub_arrays"`
}

const degToRadian = math.Pi / 180

// Ingest reads the descriptor at i.Path and populates o: sub-arrays,
// antennas, baselines, integrations, and a scratch-backed RawStore loaded
// from the descriptor's embedded visibility arrays.
func (i *FileIngester) Ingest(o *Observation) error {
	raw, err := os.ReadFile(i.Path)
	if err != nil {
		return err
	}
	var desc obsDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArg, err)
	}
	if len(desc.IFs) == 0 || len(desc.Polarizations) == 0 || len(desc.SubArrays) == 0 {
		return fmt.Errorf("%w: descriptor names no IFs, polarizations, or sub-arrays", ErrBadArg)
	}

	epoch := time.Now().UTC()
	if desc.ReferenceEpoch != "" {
		epoch, err = time.Parse(time.RFC3339, desc.ReferenceEpoch)
		if err != nil {
			return fmt.Errorf("%w: reference_epoch: %v", ErrBadArg, err)
		}
	}
	o.RefDate = ComputeRefDate(epoch, 0)
	o.Source = Source{
		Name: desc.SourceName,
		RA:   desc.RAJ2000Deg * degToRadian,
		Dec:  desc.DecJ2000Deg * degToRadian,
	}
	o.Pols = desc.Polarizations

	nChannel := desc.IFs[0].NChannel
	offset := 0
	o.IFs = make([]IFDescriptor, len(desc.IFs))
	for ci, jif := range desc.IFs {
		o.IFs[ci] = IFDescriptor{
			FirstChannelFreqHz: jif.FirstChannelFreqHz,
			ChannelWidthHz:     jif.ChannelWidthHz,
			BandwidthHz:        jif.BandwidthHz,
			ChannelOffset:      offset,
			NChannel:           jif.NChannel,
		}
		offset += jif.NChannel
	}

	o.SubArrays = make([]SubArray, len(desc.SubArrays))
	nBaselineMax := 0
	for si, jsub := range desc.SubArrays {
		sub := &o.SubArrays[si]
		sub.NIF = len(desc.IFs)
		sub.Antennas = make([]Antenna, len(jsub.Antennas))
		for ai, ja := range jsub.Antennas {
			sub.Antennas[ai] = Antenna{
				Name: ja.Name, Number: ja.Number,
				X: ja.X, Y: ja.Y, Z: ja.Z,
				SelfCalWeight: 1,
			}
		}
		for a := 0; a < len(sub.Antennas); a++ {
			for b := a + 1; b < len(sub.Antennas); b++ {
				sub.Baselines = append(sub.Baselines, Baseline{
					AntennaA:    a,
					AntennaB:    b,
					Corrections: make([]BaselineCorrection, len(desc.IFs)),
					WeightSums:  make([]float64, len(desc.IFs)),
				})
			}
		}
		if n := sub.NBaseline(); n > nBaselineMax {
			nBaselineMax = n
		}

		sub.Integrations = make([]Integration, len(jsub.Integrations))
		for ii, jinteg := range jsub.Integrations {
			integ := &sub.Integrations[ii]
			integ.StartTime = jinteg.StartTime
			nBase := len(sub.Baselines)
			integ.UVW = make([]UVWTriple, nBase)
			for bi := 0; bi < nBase && bi < len(jinteg.UVW); bi++ {
				integ.UVW[bi] = UVWTriple{U: jinteg.UVW[bi].U, V: jinteg.UVW[bi].V, W: jinteg.UVW[bi].W}
			}
			integ.Corrections = make([][]AntennaCorrection, len(desc.IFs))
			for cif := range integ.Corrections {
				integ.Corrections[cif] = make([]AntennaCorrection, len(sub.Antennas))
				for ai := range integ.Corrections[cif] {
					integ.Corrections[cif][ai] = AntennaCorrection{Amp: 1}
				}
			}
		}
	}

	assignRecordIndices(o.SubArrays)

	scratchBasis := i.Path + ".raw"
	rawStore, err := OpenRawStore(scratchBasis, nBaselineMax, nChannel, len(desc.IFs), len(desc.Polarizations), ModeScratch)
	if err != nil {
		return err
	}
	o.Raw = rawStore

	for si, jsub := range desc.SubArrays {
		sub := &o.SubArrays[si]
		nBase := sub.NBaseline()
		rawStore.SetWindow(RawWindow{
			ChannelLast: nChannel - 1, IFLast: len(desc.IFs) - 1,
			PolLast: len(desc.Polarizations) - 1, BaselineLast: nBase - 1,
		})
		for ii, jinteg := range jsub.Integrations {
			integ := &sub.Integrations[ii]
			data := make([]ComplexVis, 0, nBase*nChannel*len(desc.IFs)*len(desc.Polarizations))
			for cif := 0; cif < len(desc.IFs); cif++ {
				for ch := 0; ch < nChannel; ch++ {
					for bi := 0; bi < nBase; bi++ {
						for pi := 0; pi < len(desc.Polarizations); pi++ {
							v := visJSON{Weight: 1}
							if bi < len(jinteg.Visibilities) && ch < len(jinteg.Visibilities[bi]) &&
								cif < len(jinteg.Visibilities[bi][ch]) && pi < len(jinteg.Visibilities[bi][ch][cif]) {
								v = jinteg.Visibilities[bi][ch][cif][pi]
							}
							data = append(data, ComplexVis{Re: v.Re, Im: v.Im, Weight: v.Weight})
						}
					}
				}
			}
			if err := rawStore.WriteIntegration(integ.RecordIndex, data); err != nil {
				return err
			}
		}
	}

	return nil
}

// assignRecordIndices replicates index.go's BuildIndex merge to precompute
// each integration's eventual global-order position, since the Ingester
// contract requires RecordIndex to already match that order before
// BuildIndex validates it.
func assignRecordIndices(subs []SubArray) {
	cursors := make([]*subArrayCursor, 0, len(subs))
	for i := range subs {
		if len(subs[i].Integrations) > 0 {
			cursors = append(cursors, &subArrayCursor{sub: &subs[i]})
		}
	}
	next := 0
	for len(cursors) > 0 {
		best := 0
		for i := 1; i < len(cursors); i++ {
			if cursors[i].peekTime() < cursors[best].peekTime() {
				best = i
			}
		}
		c := cursors[best]
		c.sub.Integrations[c.next].RecordIndex = next
		next++
		c.next++
		if c.exhausted() {
			cursors = append(cursors[:best], cursors[best+1:]...)
		}
	}
}

// FileExporter writes a JSON summary of a finished Observation (source
// name, reference MJD, polarizations, integration count, unshifted flag;
// no visibility data) plus its established model as model text, a
// stand-in for the real FITS-writing collaborator (ingest.go Exporter).
type FileExporter struct {
	Path string
}

type exportSummary struct {
	SourceName    string   `json:"source_name"`
	ReferenceMJD  float64  `json:"reference_mjd"`
	Polarizations []string `json:"polarizations"`
	NIntegration  int      `json:"n_integration"`
	Unshifted     bool     `json:"unshifted"`
}

func (e *FileExporter) Export(o *Observation, unshifted bool) error {
	summary := exportSummary{
		SourceName:    o.Source.Name,
		ReferenceMJD:  o.RefDate.ReferenceMJD,
		Polarizations: o.Pols,
		NIntegration:  len(o.TimeIndex),
		Unshifted:     unshifted,
	}
	buf, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.Path, buf, 0644); err != nil {
		return err
	}

	f, err := os.Create(e.Path + ".model.txt")
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteModelText(f, o.Established)
}

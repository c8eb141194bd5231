package visengine

import "math"

// crcTable is the Ethernet-polynomial (0x04C11DB7), non-reflected,
// MSB-first CRC-32 lookup table, grounded on difmap's cksum.c new_CheckSum.
var crcTable = buildCRCTable()

func buildCRCTable() [256]uint32 {
	var table [256]uint32
	for i := 0; i < 256; i++ {
		mask := uint32(i) << 24
		for j := 0; j < 8; j++ {
			msb := mask & 0x80000000
			mask <<= 1
			if msb != 0 {
				mask ^= 0x04C11DB7
			}
		}
		table[i] = mask
	}
	return table
}

// checksumOf reproduces difmap's checksum_of_object: an MSB-first,
// non-reflected CRC-32 over buf using crcTable.
func checksumOf(buf []byte) uint32 {
	var sum uint32
	for _, b := range buf {
		msb := (sum >> 24) & 0xFF
		sum = (sum << 8) ^ crcTable[msb^uint32(b)]
	}
	return sum
}

// VoltageBeam is the circularly-symmetric voltage response of a single
// antenna as a function of angular radius, grounded on difmap's pb.c
// VoltageBeam. Interning by content means two antennas configured with
// identical sample arrays share one VoltageBeam instance.
type VoltageBeam struct {
	samples   []float64
	binwidth  float64 // radians per sample
	freq      float64 // reference frequency, Hz
	checksum  uint32
	nref      int
}

// NSample returns the number of radial samples.
func (vb *VoltageBeam) NSample() int { return len(vb.samples) }

// Value interpolates the beam at the given radius (radians) and frequency
// (Hz), grounded on difmap's pb.c voltage_beam: linear interpolation
// between bracketing samples, scaled by freq/refFreq; returns the first
// sample for radii below the sampled range (negative bin position) and 0
// beyond the sampled extent.
func (vb *VoltageBeam) Value(radius, freq float64) float64 {
	fbin := radius / vb.binwidth * (freq / vb.freq)
	ia := int(math.Floor(fbin))
	ib := int(math.Ceil(fbin))
	switch {
	case ia < 0:
		return vb.samples[0]
	case ib >= len(vb.samples):
		return 0
	case ia == ib:
		return vb.samples[ia]
	default:
		return vb.samples[ia] + (fbin-float64(ia))/float64(ib-ia)*(vb.samples[ib]-vb.samples[ia])
	}
}

// AntennaBeams is the registry of interned VoltageBeam objects for one
// Observation, grounded on difmap's pb.c AntennaBeams.
type AntennaBeams struct {
	beams     []*VoltageBeam
	totalNref int
}

// NewAntennaBeams returns an empty registry.
func NewAntennaBeams() *AntennaBeams {
	return &AntennaBeams{}
}

// Intern records samples as a voltage beam, returning a shared VoltageBeam
// if an identical one (by checksum, sample count, bin width, and reference
// frequency) is already registered, incrementing its reference count by
// addRef; otherwise a new beam is added to the registry with reference
// count addRef.
func (ab *AntennaBeams) Intern(samples []float64, binwidth, freq float64, addRef int) (*VoltageBeam, error) {
	if len(samples) < 2 || binwidth <= 0 {
		return nil, ErrBadArg
	}
	buf := make([]byte, len(samples)*8)
	for i, s := range samples {
		encodeFloat64Into(buf[i*8:(i+1)*8], s)
	}
	sum := checksumOf(buf)

	for _, vb := range ab.beams {
		if vb.checksum == sum && len(vb.samples) == len(samples) &&
			vb.binwidth == binwidth && vb.freq == freq {
			vb.nref += addRef
			ab.totalNref += addRef
			return vb, nil
		}
	}

	vb := &VoltageBeam{
		samples:  append([]float64(nil), samples...),
		binwidth: binwidth,
		freq:     freq,
		checksum: sum,
		nref:     addRef,
	}
	ab.beams = append(ab.beams, vb)
	ab.totalNref += addRef
	return vb, nil
}

// Release decrements vb's reference count, removing it from the registry
// once it reaches zero.
func (ab *AntennaBeams) Release(vb *VoltageBeam) {
	if vb == nil || vb.nref == 0 {
		return
	}
	vb.nref--
	ab.totalNref--
	if vb.nref == 0 {
		for i, b := range ab.beams {
			if b == vb {
				ab.beams = append(ab.beams[:i], ab.beams[i+1:]...)
				break
			}
		}
	}
}

// Dup returns vb with its reference count incremented, the registry's
// analogue of difmap's dup_VoltageBeam.
func (ab *AntennaBeams) Dup(vb *VoltageBeam) *VoltageBeam {
	if vb != nil {
		vb.nref++
		ab.totalNref++
	}
	return vb
}

// TotalRefs returns the sum of every interned beam's reference count.
func (ab *AntennaBeams) TotalRefs() int { return ab.totalNref }

func encodeFloat64Into(dst []byte, f float64) {
	bits := math.Float64bits(f)
	for i := 0; i < 8; i++ {
		dst[7-i] = byte(bits)
		bits >>= 8
	}
}

// PrimaryBeamFactor computes a baseline's primary-beam factor at (radius,
// freq): the product of its two antennas' voltage-beam values (1.0 for an
// antenna with no recorded beam), per spec.md §4.11.
func PrimaryBeamFactor(a, b *Antenna, radius, freq float64) float64 {
	va, vb := 1.0, 1.0
	if a.VoltageBeam != nil {
		va = a.VoltageBeam.Value(radius, freq)
	}
	if b.VoltageBeam != nil {
		vb = b.VoltageBeam.Value(radius, freq)
	}
	return va * vb
}

// recomputeWeightSums recomputes every baseline's weight sum for IF cif
// from IFStore (the sum of |weight| over every non-deleted integration),
// then clears the staleness flag, grounded on difmap's telcor.c
// flag_baseline_weights and the weighted primary-beam combination of pb.c
// that consumes the result. A no-op when cif isn't marked stale.
func (o *Observation) recomputeWeightSums(cif int) error {
	if !o.IFs[cif].WeightsStale {
		return nil
	}
	if o.IFSt != nil && o.IFs[cif].Selected != nil {
		for si := range o.SubArrays {
			sub := &o.SubArrays[si]
			nBase := sub.NBaseline()
			if nBase == 0 {
				continue
			}
			sums := make([]float64, nBase)
			for ii := range sub.Integrations {
				integ := &sub.Integrations[ii]
				data, err := o.IFSt.ReadBaselineRange(cif, integ.RecordIndex, 0, nBase-1)
				if err != nil {
					return err
				}
				for bi, pv := range data {
					if !pv.Deleted() {
						sums[bi] += math.Abs(pv.Weight)
					}
				}
			}
			for bi := range sub.Baselines {
				if cif < len(sub.Baselines[bi].WeightSums) {
					sub.Baselines[bi].WeightSums[cif] = sums[bi]
				}
			}
		}
	}
	o.IFs[cif].WeightsStale = false
	return nil
}

// ObservationPrimaryBeamMean computes the observation-wide primary-beam
// response at (radius, freq) for IF cif: every baseline's PrimaryBeamFactor
// weighted by that baseline's per-IF visibility-weight sum, recomputed
// lazily via recomputeWeightSums, per spec.md §4.11. Returns 1 (no
// attenuation) if no baseline carries positive weight for cif.
func (o *Observation) ObservationPrimaryBeamMean(cif int, radius, freq float64) (float64, error) {
	if err := o.recomputeWeightSums(cif); err != nil {
		return 0, err
	}
	var sumWF, sumW float64
	for si := range o.SubArrays {
		sub := &o.SubArrays[si]
		for bi := range sub.Baselines {
			b := &sub.Baselines[bi]
			if cif >= len(b.WeightSums) || b.WeightSums[cif] <= 0 {
				continue
			}
			w := b.WeightSums[cif]
			factor := PrimaryBeamFactor(&sub.Antennas[b.AntennaA], &sub.Antennas[b.AntennaB], radius, freq)
			sumWF += w * factor
			sumW += w
		}
	}
	if sumW == 0 {
		return 1, nil
	}
	return sumWF / sumW, nil
}

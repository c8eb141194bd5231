package visengine

import "fmt"

// FixBinaryAntennaTable compacts the sub-array's antenna list and its
// binary AN-table block to keep only the antennas flagged true in keep,
// preserving relative order, and drops any baseline that referenced a
// removed antenna, remapping the survivors' indices. Grounded on difmap's
// binan.c fix_Binan, which compacts a binary AN table's per-station arrays
// (calpar, orbpar, Bintel) in lockstep against a caller-supplied keep mask;
// this restores the same compaction for the antenna array the distilled
// spec names but never operates on (SPEC_FULL.md §4, DESIGN.md Open
// Question 3).
func (s *SubArray) FixBinaryAntennaTable(keep []bool) error {
	if len(keep) != len(s.Antennas) {
		return fmt.Errorf("%w: keep has %d entries, sub-array has %d antennas", ErrBadArg, len(keep), len(s.Antennas))
	}

	remap := make([]int, len(s.Antennas))
	newAntennas := make([]Antenna, 0, len(s.Antennas))
	for i, a := range s.Antennas {
		if keep[i] {
			remap[i] = len(newAntennas)
			newAntennas = append(newAntennas, a)
		} else {
			remap[i] = -1
		}
	}

	if s.BinaryANTable != nil && s.BinaryANTable.Stride > 0 {
		stride := s.BinaryANTable.Stride
		compact := make([]byte, 0, len(newAntennas)*stride)
		for i, k := range keep {
			if k {
				off := i * stride
				if off+stride > len(s.BinaryANTable.Raw) {
					return fmt.Errorf("%w: binary AN table shorter than antenna count implies", ErrBadArg)
				}
				compact = append(compact, s.BinaryANTable.Raw[off:off+stride]...)
			}
		}
		s.BinaryANTable.Raw = compact
	}

	newBaselines := make([]Baseline, 0, len(s.Baselines))
	for _, b := range s.Baselines {
		na, nb := remap[b.AntennaA], remap[b.AntennaB]
		if na < 0 || nb < 0 {
			continue
		}
		b.AntennaA, b.AntennaB = na, nb
		newBaselines = append(newBaselines, b)
	}

	s.Antennas = newAntennas
	s.Baselines = newBaselines
	return nil
}

package visengine

import "fmt"

// ObsState is the state machine from spec.md §4.3: exactly one state is
// current at any time, and higher states imply all lower invariants hold.
type ObsState int

const (
	Allocated ObsState = iota
	DataLoaded
	Indexed
	Selected
	RawIFResident
	IFResident
)

func (s ObsState) String() string {
	switch s {
	case Allocated:
		return "Allocated"
	case DataLoaded:
		return "DataLoaded"
	case Indexed:
		return "Indexed"
	case Selected:
		return "Selected"
	case RawIFResident:
		return "RawIFResident"
	case IFResident:
		return "IFResident"
	default:
		return fmt.Sprintf("ObsState(%d)", int(s))
	}
}

// Projection is the spherical-to-planar sky projection used to interpret
// (u, v, w).
type Projection int

const (
	ProjectionSIN Projection = iota
	ProjectionNCP
)

// VisFlag is the in-memory visibility flag bitset (spec.md §3).
type VisFlag uint8

const (
	FlagDeleted VisFlag = 1 << iota
	FlagFlagged
	FlagAntennaABad
	FlagAntennaBBad
)

// ComplexVis is one RawStore record element: a complex visibility sample.
// Weight sign encodes flag state: w>0 good, w<0 flagged, w=0 deleted.
type ComplexVis struct {
	Re, Im float64
	Weight float64
}

// Flagged reports whether the stored weight sign marks this sample flagged.
func (c ComplexVis) Flagged() bool { return c.Weight < 0 }

// Deleted reports whether the stored weight marks this sample deleted.
func (c ComplexVis) Deleted() bool { return c.Weight == 0 }

// PolarVis is one IFStore/ModelStore record element, using the same
// weight-sign convention as ComplexVis.
type PolarVis struct {
	Amp, Phase float64
	Weight     float64
}

func (p PolarVis) Flagged() bool { return p.Weight < 0 }
func (p PolarVis) Deleted() bool { return p.Weight == 0 }

// Visibility is the in-memory, IF-resident representation of one baseline's
// sample for the current integration: calibrated amplitude/phase, the
// model's matching amplitude/phase, a UVW triple, and a flag bitset.
type Visibility struct {
	Amp       float64
	ModelAmp  float64
	Phase     float64
	ModelPhase float64
	Weight    float64
	U, V, W   float64 // light-seconds as stored; scaled to wavelengths on use
	IntegrationTime float64
	Bad       VisFlag
}

// UVWavelengths scales the stored light-second UVW to wavelengths for the
// IF whose frequency (Hz) is given.
func (v Visibility) UVWavelengths(frequencyHz float64) (u, v2, w float64) {
	return v.U * frequencyHz, v.V * frequencyHz, v.W * frequencyHz
}

// AntennaCorrection is one (amplitude factor, phase offset, flagged) tuple
// recorded per antenna, per IF, per integration (spec.md §3 Integration).
type AntennaCorrection struct {
	Amp     float64
	Phase   float64
	Flagged bool
}

// BaselineCorrection is the per-IF amplitude/phase correction recorded on a
// Baseline (spec.md §3).
type BaselineCorrection struct {
	Amp   float64
	Phase float64
}

// Antenna is one antenna within a SubArray.
type Antenna struct {
	Name         string // <= 16 chars
	Number       int
	FixedGain    bool
	SelfCalWeight float64
	// Ground position in meters, used when Orbital is false.
	X, Y, Z float64
	Orbital bool
	// OrbitalElements holds the orbital parameterization when Orbital is
	// true; left empty (nil) for ground antennas.
	OrbitalElements []float64
	VoltageBeam     *VoltageBeam
}

// Baseline is an ordered pair of antennas (indices into the parent
// SubArray's antenna array) with a<b, plus per-IF corrections and weight
// sums.
type Baseline struct {
	AntennaA, AntennaB int // indices into SubArray.Antennas; AntennaA < AntennaB
	HourAngleOffset    float64
	XY, Z              float64 // meters
	Corrections        []BaselineCorrection // len == NIF
	WeightSums         []float64            // len == NIF
}

// Integration is one time sample across all baselines of one SubArray.
type Integration struct {
	StartTime   float64 // seconds into the reference year
	RecordIndex int     // sequential index into the global time index
	SubArray    *SubArray
	Visibilities []Visibility // len == NBaseline, valid when the owning IF is resident
	// UVW holds each baseline's (u,v,w) in light-seconds as provided by the
	// ingest collaborator. Unlike Visibilities, it is channel/IF-independent
	// and persists across IF swaps; readIFStoreSlice copies it into the
	// resident Visibilities' U/V/W fields whenever that slice is rebuilt.
	UVW []UVWTriple
	// Corrections[cif][iant] is the per-antenna correction for IF cif.
	Corrections [][]AntennaCorrection
	PendingEdits *editList
}

// UVWTriple is a baseline's (u,v,w) coordinate in light-seconds.
type UVWTriple struct {
	U, V, W float64
}

// BinaryANRecord is an opaque pass-through of the ingest collaborator's
// binary antenna-table block (spec.md §3 SubArray): Raw is Stride bytes per
// antenna, one station per slot, in antenna order. The core never
// interprets a station's contents beyond the compaction done by
// SubArray.FixBinaryAntennaTable in antable.go.
type BinaryANRecord struct {
	Raw    []byte
	Stride int
}

// PolRefCorrection records the R-L phase differences per IF for the
// optional polarization reference antenna of a SubArray.
type PolRefCorrection struct {
	ReferenceAntenna int
	RLPhase          []float64 // len == NIF
}

// SubArray is a subset of antennas observed as one instrument.
type SubArray struct {
	ScanGapSeconds   float64
	DataMinusUTC     float64
	NIF              int
	Antennas         []Antenna
	Baselines        []Baseline
	BinaryANTable    *BinaryANRecord
	PolRef           *PolRefCorrection
	Integrations     []Integration
}

// NAntenna and NBaseline report the current counts.
func (s *SubArray) NAntenna() int  { return len(s.Antennas) }
func (s *SubArray) NBaseline() int { return len(s.Baselines) }

// IFDescriptor describes one intermediate-frequency band.
type IFDescriptor struct {
	FirstChannelFreqHz float64
	ChannelWidthHz     float64 // signed
	BandwidthHz        float64
	ChannelOffset      int // offset of channel 0 within the global channel index space
	NChannel           int
	Selected           *ChannelRangeSet // nil => unsampled in the current stream
	WeightsStale       bool
}

// Source describes the observed source direction.
type Source struct {
	Name             string
	RA, Dec          float64 // radians, mean
	ApparentRA, Dec2 float64 // radians, apparent
	PointingRA, PointingDec float64
}

// RefDate holds the Observation's reference date/time fields (spec.md §3).
type RefDate struct {
	Year                  int
	ReferenceMJD          float64
	SecondsIntoYearAtFirst float64
	ApparentSiderealTimeAtRef float64 // radians
}

// Observation is the root aggregate of the visibility data engine.
type Observation struct {
	RefDate    RefDate
	Projection Projection
	Source     Source
	Pols       []string // recorded polarization labels, e.g. "RR","LL","RL","LR"
	IFs        []IFDescriptor
	SubArrays  []SubArray
	TimeIndex  []*Integration // flat time-ordered merge across sub-arrays

	Raw   *RawStore
	IFSt  *IFStore
	Model *ModelStore

	Established     *Model
	Tentative       *Model
	EstContinuum    *Model
	TentContinuum   *Model
	ModelTable      *ModelTable
	Edits           *editEngine
	Beams           *AntennaBeams

	// ModelEval computes a component's UV visibility contribution; required
	// by AddModel/WindowModel whenever they touch the established list.
	ModelEval ModelEvaluator

	state ObsState

	// Current stream selection.
	SelectedChannels *ChannelRangeSet // global channel domain
	SelectedPol      PolDescriptor
	residentIF       int
	ifResidentValid  bool

	// Recorded geometry/weight-scale totals, re-applied on every IF swap
	// (spec.md §4.8).
	ShiftEast, ShiftNorth float64
	RotationRadians       float64
	WeightScale           float64

	zeroSpacingModelAmp float64

	// averagerScatter records whether the in-flight Average call uses
	// scatter-based output weights, consulted by averageOneBin.
	averagerScatter bool
}

// NewObservation returns an Observation in the Allocated state with empty
// model lists, a fresh model table, edit engine, and beam registry.
func NewObservation() *Observation {
	return &Observation{
		Established:   NewModel(),
		Tentative:     NewModel(),
		EstContinuum:  NewModel(),
		TentContinuum: NewModel(),
		ModelTable:    NewModelTable(),
		Edits:         newEditEngine(),
		Beams:         NewAntennaBeams(),
		WeightScale:   1.0,
		state:         Allocated,
	}
}

// SetModelEvaluator configures the external model-visibility evaluator used
// by AddModel/WindowModel to compute established components' UV
// contribution.
func (o *Observation) SetModelEvaluator(e ModelEvaluator) { o.ModelEval = e }

// State returns the Observation's current state.
func (o *Observation) State() ObsState { return o.state }

// requireState returns ErrBadState if the Observation is below min.
func (o *Observation) requireState(min ObsState, op string) error {
	if o.state < min {
		return fmt.Errorf("%w: %s requires state >= %s, have %s", ErrBadState, op, min, o.state)
	}
	return nil
}

// NIF returns the number of IFs.
func (o *Observation) NIF() int { return len(o.IFs) }

// HasModel reports whether model visibilities currently exist in either
// ModelStore or the in-memory arrays (spec.md §3 invariant).
func (o *Observation) HasModel() bool {
	if o.Established.Count() > 0 && !o.Established.IsZeroFlux() {
		return true
	}
	if o.zeroSpacingModelAmp != 0 {
		return true
	}
	for _, sub := range o.SubArrays {
		for i := range sub.Integrations {
			for _, v := range sub.Integrations[i].Visibilities {
				if v.ModelAmp != 0 {
					return true
				}
			}
		}
	}
	return false
}

// setState downgrades or upgrades the recorded state; callers are
// responsible for only calling this once invariants for the new state hold
// (or, on failure paths, to return to the highest self-consistent level).
func (o *Observation) setState(s ObsState) { o.state = s }

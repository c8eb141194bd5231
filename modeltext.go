package visengine

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	stgpsr "github.com/yuin/stagparser"
)

const masToRad = math.Pi / (180 * 3600 * 1000)
const degToRad = math.Pi / 180

// modelTextFields names, in column order, the model-component text line's
// positional numeric fields (spec.md §6 "Model text format"), tagging each
// with which free-parameter bit its trailing v/V marks and which unit it is
// stored in: the "describe a column with a struct tag, pull it back out
// with stagparser" pattern, applied here to a positional text line.
type modelTextFields struct {
	Flux          float64 `mtext:"bit=flux"`
	Radius        float64 `mtext:"bit=center,unit=mas"`
	Theta         float64 `mtext:"bit=center,unit=deg"`
	Major         float64 `mtext:"bit=major,unit=mas"`
	AxialRatio    float64 `mtext:"bit=ratio"`
	Phi           float64 `mtext:"bit=phi,unit=deg"`
	SpectralIndex float64 `mtext:"bit=spectralindex"`
}

var mtextOrder = []string{"Flux", "Radius", "Theta", "Major", "AxialRatio", "Phi", "SpectralIndex"}

type mtextFieldMeta struct {
	bit  FreeParam
	unit float64
}

func mtextBitFromName(name string) FreeParam {
	switch name {
	case "flux":
		return FreeFlux
	case "center":
		return FreeCenter
	case "major":
		return FreeMajor
	case "ratio":
		return FreeRatio
	case "phi":
		return FreePhi
	case "spectralindex":
		return FreeSpectralIndex
	}
	return 0
}

func loadMtextMeta() (map[string]mtextFieldMeta, error) {
	defs, err := stgpsr.ParseStruct(&modelTextFields{}, "mtext")
	if err != nil {
		return nil, err
	}
	meta := make(map[string]mtextFieldMeta, len(mtextOrder))
	for _, name := range mtextOrder {
		fm := mtextFieldMeta{unit: 1}
		for _, d := range defs[name] {
			switch d.Name() {
			case "bit":
				if v, ok := d.Attribute("bit"); ok {
					fm.bit = mtextBitFromName(v)
				}
			case "unit":
				if v, ok := d.Attribute("unit"); ok {
					switch v {
					case "mas":
						fm.unit = masToRad
					case "deg":
						fm.unit = degToRad
					}
				}
			}
		}
		meta[name] = fm
	}
	return meta, nil
}

func parseShapeName(tok string) (ComponentShape, bool) {
	switch strings.ToLower(tok) {
	case "delta":
		return ShapeDelta, true
	case "gaussian":
		return ShapeGaussian, true
	case "disk", "uniformdisk":
		return ShapeUniformDisk, true
	case "shell":
		return ShapeShell, true
	case "ring":
		return ShapeRing, true
	case "rectangle":
		return ShapeRectangle, true
	case "sz":
		return ShapeSZ, true
	}
	return 0, false
}

func shapeName(s ComponentShape) string {
	switch s {
	case ShapeDelta:
		return "delta"
	case ShapeGaussian:
		return "gaussian"
	case ShapeUniformDisk:
		return "disk"
	case ShapeShell:
		return "shell"
	case ShapeRing:
		return "ring"
	case ShapeRectangle:
		return "rectangle"
	case ShapeSZ:
		return "sz"
	}
	return "gaussian"
}

// ParseModelComponentLine decodes one whitespace-separated model-component
// text line (spec.md §6): flux, radius(mas), theta(deg), major(mas),
// axial_ratio, phi(deg), type, freq0(Hz), spectral_index — each numeric
// field optionally postfixed with v/V to mark it free. Omitted trailing
// fields take the spec's documented defaults.
func ParseModelComponentLine(line string) (*ModelComponent, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty model line", ErrBadArg)
	}
	meta, err := loadMtextMeta()
	if err != nil {
		return nil, err
	}

	var free FreeParam
	num := func(i int, field string) (float64, bool, error) {
		if i >= len(tokens) {
			return 0, false, nil
		}
		tok := tokens[i]
		last := tok[len(tok)-1]
		if last == 'v' || last == 'V' {
			free |= meta[field].bit
			tok = tok[:len(tok)-1]
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: field %d (%s): %v", ErrBadArg, i, field, err)
		}
		unit := meta[field].unit
		if unit == 0 {
			unit = 1 // a field with no mtext tag (freq0) is stored as written
		}
		return v * unit, true, nil
	}

	flux, ok, err := num(0, "Flux")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: model line missing flux", ErrBadArg)
	}
	radiusRad, _, err := num(1, "Radius")
	if err != nil {
		return nil, err
	}
	thetaRad, _, err := num(2, "Theta")
	if err != nil {
		return nil, err
	}
	majorRad, hasMajor, err := num(3, "Major")
	if err != nil {
		return nil, err
	}
	axialRatio, hasRatio, err := num(4, "AxialRatio")
	if err != nil {
		return nil, err
	}
	if !hasRatio {
		axialRatio = 1
	}
	phiRad, _, err := num(5, "Phi")
	if err != nil {
		return nil, err
	}

	shape := ShapeGaussian
	nextIdx := 6
	typeGiven := false
	if nextIdx < len(tokens) {
		if s, ok := parseShapeName(tokens[nextIdx]); ok {
			shape, typeGiven = s, true
			nextIdx++
		}
	}
	if !typeGiven {
		if len(tokens) <= 3 || (hasMajor && majorRad == 0) {
			shape = ShapeDelta
		} else {
			shape = ShapeGaussian
		}
	}

	freq0, _, err := num(nextIdx, "")
	if err != nil {
		return nil, err
	}
	spectralIndex, _, err := num(nextIdx+1, "SpectralIndex")
	if err != nil {
		return nil, err
	}

	return &ModelComponent{
		Shape:         shape,
		Free:          free,
		Flux:          flux,
		X:             radiusRad * math.Sin(thetaRad),
		Y:             radiusRad * math.Cos(thetaRad),
		Major:         majorRad,
		AxialRatio:    axialRatio,
		PositionAngle: phiRad,
		RefFreqHz:     freq0,
		SpectralIndex: spectralIndex,
	}, nil
}

// WriteModelComponentLine serializes c back into the spec.md §6 text line
// form, the exact inverse of ParseModelComponentLine.
func WriteModelComponentLine(c *ModelComponent) (string, error) {
	meta, err := loadMtextMeta()
	if err != nil {
		return "", err
	}
	radius := math.Hypot(c.X, c.Y)
	theta := math.Atan2(c.X, c.Y)

	format := func(v float64, field string) string {
		native := v
		if meta[field].unit != 0 {
			native = v / meta[field].unit
		}
		s := strconv.FormatFloat(native, 'g', -1, 64)
		if c.HasFreeParam(meta[field].bit) && meta[field].bit != 0 {
			s += "v"
		}
		return s
	}

	fields := []string{
		format(c.Flux, "Flux"),
		format(radius, "Radius"),
		format(theta, "Theta"),
		format(c.Major, "Major"),
		format(c.AxialRatio, "AxialRatio"),
		format(c.PositionAngle, "Phi"),
		shapeName(c.Shape),
		strconv.FormatFloat(c.RefFreqHz, 'g', -1, 64),
		format(c.SpectralIndex, "SpectralIndex"),
	}
	return strings.Join(fields, " "), nil
}

// readModelTextLines tokenizes a model text stream into logical lines:
// blank lines pass through as "" separators, "!"-prefixed lines are
// dropped, and a trailing backslash continues onto the next physical line
// (spec.md §6).
func readModelTextLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	var cont strings.Builder
	for scanner.Scan() {
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			lines = append(lines, "")
			continue
		}
		if strings.HasPrefix(trimmed, "!") {
			continue
		}
		if strings.HasSuffix(raw, "\\") {
			cont.WriteString(strings.TrimSuffix(raw, "\\"))
			cont.WriteString(" ")
			continue
		}
		cont.WriteString(raw)
		lines = append(lines, cont.String())
		cont.Reset()
	}
	if cont.Len() > 0 {
		lines = append(lines, cont.String())
	}
	return lines, scanner.Err()
}

// ParseModelText reads a single (not multi-selection) model text stream
// into a fresh Model.
func ParseModelText(r io.Reader) (*Model, error) {
	lines, err := readModelTextLines(r)
	if err != nil {
		return nil, err
	}
	m := NewModel()
	for _, line := range lines {
		if line == "" {
			continue
		}
		c, err := ParseModelComponentLine(line)
		if err != nil {
			return nil, err
		}
		m.Add(c, false, false)
	}
	return m, nil
}

// WriteModelText serializes m, one component per line.
func WriteModelText(w io.Writer, m *Model) error {
	for _, c := range m.Components() {
		line, err := WriteModelComponentLine(c)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// ModelTextSelection is one entry of a multi-model save: an optional
// (polarization, channel-range) header and the model it introduces.
type ModelTextSelection struct {
	Pol      string
	Channels *ChannelRangeSet
	Model    *Model
}

// parseSelectHeader recognizes a "select <pol>, <channel-ranges>" header
// line, returning ok=false (not an error) if line isn't one.
func parseSelectHeader(line string) (pol string, channels *ChannelRangeSet, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return "", nil, false, nil
	}
	rest := strings.TrimSpace(trimmed[len("select"):])
	idx := strings.Index(rest, ",")
	if idx < 0 {
		return "", nil, false, fmt.Errorf("%w: malformed select header %q", ErrBadArg, line)
	}
	pol = strings.TrimSpace(rest[:idx])
	cl, err := ParseChannelRangeSet(strings.TrimSpace(rest[idx+1:]))
	if err != nil {
		return "", nil, false, err
	}
	return pol, cl, true, nil
}

// ParseMultiModelText reads the multi-model save form of spec.md §6: a
// sequence of entries each headed by "select <pol>, <channel-ranges>" on
// its own line, then that selection's model, blank-line separated.
func ParseMultiModelText(r io.Reader) ([]ModelTextSelection, error) {
	lines, err := readModelTextLines(r)
	if err != nil {
		return nil, err
	}

	var selections []ModelTextSelection
	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		sel := ModelTextSelection{Model: NewModel()}
		start := 0
		if pol, cl, ok, perr := parseSelectHeader(block[0]); perr != nil {
			return perr
		} else if ok {
			sel.Pol, sel.Channels = pol, cl
			start = 1
		}
		for _, line := range block[start:] {
			c, cerr := ParseModelComponentLine(line)
			if cerr != nil {
				return cerr
			}
			sel.Model.Add(c, false, false)
		}
		selections = append(selections, sel)
		block = nil
		return nil
	}

	for _, line := range lines {
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return selections, nil
}

// WriteMultiModelText serializes selections in the multi-model save form.
func WriteMultiModelText(w io.Writer, selections []ModelTextSelection) error {
	for i, sel := range selections {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if sel.Channels != nil {
			if _, err := fmt.Fprintf(w, "select %s, %s\n", sel.Pol, sel.Channels.String()); err != nil {
				return err
			}
		}
		if err := WriteModelText(w, sel.Model); err != nil {
			return err
		}
	}
	return nil
}

package visengine

// Ingester is implemented by the external FITS-reading collaborator: given
// an Allocated Observation, it populates the data model (sub-arrays,
// antennas, baselines, integrations, RawStore) and leaves the Observation in
// the DataLoaded state. FITS parsing itself is out of core scope (spec.md
// §1 Non-goals); the core only depends on this narrow boundary.
type Ingester interface {
	Ingest(o *Observation) error
}

// ModelEvaluator is implemented by the external model-visibility evaluator
// (Bessel-function/analytic model-visibility formulas are out of core
// scope). AddComponentToModelVis fills out with one component's UV
// contribution for every baseline of the integration currently being
// processed by the caller.
type ModelEvaluator interface {
	AddComponentToModelVis(o *Observation, c *ModelComponent, out *[]PolarVis) error
}

// Exporter is implemented by the external FITS-writing collaborator.
// Export's unshifted argument asks for data written as if no phase shift
// had ever been applied: the core temporarily undoes the Observation's
// recorded phase shift, hands off to exporter, then reapplies it, rather
// than leaving the undo to the collaborator (spec.md §6).
type Exporter interface {
	Export(o *Observation, unshifted bool) error
}

// LoadObservation drives ing over a freshly Allocated Observation and
// builds its time index, taking it from Allocated through DataLoaded to
// Indexed in one call — the shape of the teacher's cmd/main.go "decode then
// build index" sequence.
func LoadObservation(ing Ingester) (*Observation, error) {
	if ing == nil {
		return nil, ErrNoIngester
	}
	o := NewObservation()
	if err := ing.Ingest(o); err != nil {
		return nil, err
	}
	o.setState(DataLoaded)
	if err := o.BuildIndex(); err != nil {
		return nil, err
	}
	return o, nil
}

// ExportObservation hands o to exp, honoring the unshifted convention: the
// Observation's cumulative phase shift is undone before export and
// reapplied afterwards, regardless of whether exp.Export itself succeeds.
func ExportObservation(o *Observation, exp Exporter, unshifted bool) error {
	if exp == nil {
		return ErrNoExporter
	}
	if !unshifted || (o.ShiftEast == 0 && o.ShiftNorth == 0) {
		return exp.Export(o, unshifted)
	}

	east, north := o.ShiftEast, o.ShiftNorth
	if err := o.Shift(-east, -north); err != nil {
		return err
	}
	exportErr := exp.Export(o, unshifted)
	if err := o.Shift(east, north); err != nil {
		if exportErr == nil {
			return err
		}
	}
	return exportErr
}

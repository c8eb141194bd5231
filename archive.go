package visengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// OpenArchiveContext builds a TileDB context from configURI, falling back to
// a generic default config when configURI is empty, mirroring the ingest
// collaborator's own config-uri flag handling in cmd/main.go.
func OpenArchiveContext(configURI string) (*tiledb.Context, error) {
	var config *tiledb.Config
	var err error
	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, err
	}
	defer config.Free()

	return tiledb.NewContext(config)
}

// ArchiveObservation writes a finished/averaged Observation's IF-resident
// visibilities and summary metadata to a TileDB group at groupURI: one
// dense array per IF keyed by (integration, baseline), plus a group-level
// metadata blob, directly modeled on the ingest collaborator's
// tiledb.go/cmd/main.go group-and-array construction (NewGroup, AddMember,
// PutMetadata). This is an additive export path to an analytics-friendly
// columnar store; it does not replace the scratch-file paged stores used by
// the live engine.
func ArchiveObservation(o *Observation, groupURI string, ctx *tiledb.Context) error {
	if o.IFSt == nil {
		return errors.New("observation has no IFStore to archive")
	}

	grp, err := tiledb.NewGroup(ctx, groupURI)
	if err != nil {
		return errors.Join(ErrCreateArchiveGroup, err)
	}
	defer grp.Free()

	if err := grp.Create(); err != nil {
		return errors.Join(ErrCreateArchiveGroup, err)
	}
	if err := grp.Open(tiledb.TILEDB_WRITE); err != nil {
		return errors.Join(ErrOpenArchiveGroup, err)
	}
	defer grp.Close()

	jsn, err := json.Marshal(archiveSummary(o))
	if err != nil {
		return errors.Join(ErrArchiveMetadata, err)
	}
	if err := grp.PutMetadata("Observation-Summary", jsn); err != nil {
		return errors.Join(ErrArchiveMetadata, err)
	}

	for cif := range o.IFs {
		if o.IFs[cif].Selected == nil {
			continue
		}
		name := fmt.Sprintf("IF%02d.tiledb", cif)
		uri := filepath.Join(groupURI, name)
		if err := writeIFArray(o, cif, uri, ctx); err != nil {
			return err
		}
		if err := grp.AddMember(name, fmt.Sprintf("IF%d", cif), true); err != nil {
			return errors.Join(ErrArchiveMetadata, err)
		}
	}
	return nil
}

type archiveObservationSummary struct {
	NIF          int      `json:"nif"`
	Polarizations []string `json:"polarizations"`
	SourceName   string   `json:"source_name"`
	ReferenceMJD float64  `json:"reference_mjd"`
}

func archiveSummary(o *Observation) archiveObservationSummary {
	return archiveObservationSummary{
		NIF:           o.NIF(),
		Polarizations: o.Pols,
		SourceName:    o.Source.Name,
		ReferenceMJD:  o.RefDate.ReferenceMJD,
	}
}

// writeIFArray creates (if necessary) and writes one IF's dense array: rows
// are integrations, columns are baselines, attributes are amplitude, phase,
// and weight.
func writeIFArray(o *Observation, cif int, uri string, ctx *tiledb.Context) error {
	nInteg := len(o.TimeIndex)
	nBase := 0
	for i := range o.SubArrays {
		if n := o.SubArrays[i].NBaseline(); n > nBase {
			nBase = n
		}
	}
	if nInteg == 0 || nBase == 0 {
		return nil
	}

	if err := createIFArraySchema(ctx, uri, nInteg, nBase); err != nil {
		return errors.Join(ErrCreateArchiveArray, err)
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	defer array.Free()
	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	defer array.Close()

	amp := make([]float64, nInteg*nBase)
	phase := make([]float64, nInteg*nBase)
	weight := make([]float64, nInteg*nBase)
	for _, integ := range o.TimeIndex {
		n := integ.SubArray.NBaseline()
		data, err := o.IFSt.ReadBaselineRange(cif, integ.RecordIndex, 0, n-1)
		if err != nil {
			return errors.Join(ErrWriteArchiveArray, err)
		}
		base := integ.RecordIndex * nBase
		for bi, pv := range data {
			amp[base+bi] = pv.Amp
			phase[base+bi] = pv.Phase
			weight[base+bi] = pv.Weight
		}
		for bi := n; bi < nBase; bi++ {
			weight[base+bi] = math.NaN()
		}
	}

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	if _, err := query.SetDataBuffer("Amplitude", amp); err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	if _, err := query.SetDataBuffer("Phase", phase); err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	if _, err := query.SetDataBuffer("Weight", weight); err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteArchiveArray, err)
	}
	return query.Finalize()
}

func createIFArraySchema(ctx *tiledb.Context, uri string, nInteg, nBase int) error {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return err
	}
	defer domain.Free()

	rowTile := uint64(math.Min(float64(nInteg), 10000))
	colTile := uint64(math.Min(float64(nBase), 10000))

	rowDim, err := tiledb.NewDimension(ctx, "Integration", tiledb.TILEDB_UINT64, []uint64{0, uint64(nInteg - 1)}, rowTile)
	if err != nil {
		return err
	}
	defer rowDim.Free()
	colDim, err := tiledb.NewDimension(ctx, "Baseline", tiledb.TILEDB_UINT64, []uint64{0, uint64(nBase - 1)}, colTile)
	if err != nil {
		return err
	}
	defer colDim.Free()

	if err := domain.AddDimensions(rowDim, colDim); err != nil {
		return err
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return err
	}
	defer schema.Free()
	if err := schema.SetDomain(domain); err != nil {
		return err
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return err
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return err
	}

	for _, attrName := range []string{"Amplitude", "Phase", "Weight"} {
		attr, err := tiledb.NewAttribute(ctx, attrName, tiledb.TILEDB_FLOAT64)
		if err != nil {
			return err
		}
		if err := schema.AddAttributes(attr); err != nil {
			attr.Free()
			return err
		}
		attr.Free()
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return err
	}
	defer array.Free()
	return array.Create(schema)
}

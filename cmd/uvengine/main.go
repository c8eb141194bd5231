// Command uvengine is a small CLI front end driving the visibility engine
// end to end — select, swap, flag, average — in the shape of the teacher's
// cmd/main.go command tree (one cli.Command per workflow, each Action
// decoding flags and calling straight into the library). The interactive
// command language itself (a full REPL) stays out of core scope; this is
// just enough plumbing to exercise the engine from a shell.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	visengine "github.com/sixy6e/go-visengine"
)

// prepareObservation ingests descUri through a FileIngester, opens a
// scratch IFStore sized for it, and runs SelectStream, leaving the
// Observation in the Selected (or, for single-IF observations, IFResident)
// state, per spec.md §4.4.
func prepareObservation(descUri, channelsSpec, pol, scratchDir string) (*visengine.Observation, error) {
	ing := &visengine.FileIngester{Path: descUri}
	o, err := visengine.LoadObservation(ing)
	if err != nil {
		return nil, err
	}

	nBaselineMax := 0
	for i := range o.SubArrays {
		if n := o.SubArrays[i].NBaseline(); n > nBaselineMax {
			nBaselineMax = n
		}
	}
	ifSt, err := visengine.OpenIFStore(scratchDir+"/ifstore", nBaselineMax, len(o.TimeIndex), visengine.ModeScratch)
	if err != nil {
		return nil, err
	}
	o.IFSt = ifSt

	var chans *visengine.ChannelRangeSet
	if channelsSpec != "" {
		chans, err = visengine.ParseChannelRangeSet(channelsSpec)
		if err != nil {
			return nil, err
		}
	}
	if err := o.SelectStream(chans, pol, false); err != nil {
		return nil, err
	}
	return o, nil
}

func exportResult(o *visengine.Observation, outUri string) error {
	exp := &visengine.FileExporter{Path: outUri}
	return visengine.ExportObservation(o, exp, false)
}

func doSelect(cCtx *cli.Context) error {
	log.Println("Ingesting:", cCtx.String("input"))
	o, err := prepareObservation(cCtx.String("input"), cCtx.String("channels"), cCtx.String("pol"), cCtx.String("scratch-dir"))
	if err != nil {
		return err
	}
	log.Println("Stream selected; state:", o.State())
	return exportResult(o, cCtx.String("output"))
}

func doSwap(cCtx *cli.Context) error {
	log.Println("Ingesting:", cCtx.String("input"))
	o, err := prepareObservation(cCtx.String("input"), cCtx.String("channels"), cCtx.String("pol"), cCtx.String("scratch-dir"))
	if err != nil {
		return err
	}
	cif := cCtx.Int("if")
	log.Println("Swapping in IF", cif)
	if err := o.SwapIF(cif); err != nil {
		return err
	}
	log.Println("IF resident; state:", o.State())
	return exportResult(o, cCtx.String("output"))
}

func doFlag(cCtx *cli.Context) error {
	log.Println("Ingesting:", cCtx.String("input"))
	o, err := prepareObservation(cCtx.String("input"), cCtx.String("channels"), cCtx.String("pol"), cCtx.String("scratch-dir"))
	if err != nil {
		return err
	}

	action := visengine.EditFlag
	if cCtx.String("action") == "unflag" {
		action = visengine.EditUnflag
	}
	kind := visengine.EditBaseline
	switch cCtx.String("kind") {
	case "antenna":
		kind = visengine.EditAntenna
	case "subarray":
		kind = visengine.EditAllBaselinesOfSubArray
	}
	ed := visengine.Edit{
		IF:          cCtx.Int("if"),
		AllIFs:      cCtx.Int("if") < 0,
		TargetIndex: cCtx.Int("target"),
		TargetKind:  kind,
		AllChannels: cCtx.Bool("all-channels"),
		Action:      action,
	}

	log.Println("Queuing edit across", len(o.TimeIndex), "integrations")
	for _, integ := range o.TimeIndex {
		if err := o.QueueEdit(integ, ed); err != nil {
			return err
		}
	}
	if err := o.FlushEdits(); err != nil {
		return err
	}
	log.Println("Edits flushed")
	return exportResult(o, cCtx.String("output"))
}

func doAverage(cCtx *cli.Context) error {
	log.Println("Ingesting:", cCtx.String("input"))
	o, err := prepareObservation(cCtx.String("input"), cCtx.String("channels"), cCtx.String("pol"), cCtx.String("scratch-dir"))
	if err != nil {
		return err
	}

	opts := visengine.AverageOptions{
		BinWidthSeconds: cCtx.Float64("bin-width"),
		Scatter:         cCtx.Bool("scatter"),
	}
	log.Println("Averaging into", opts.BinWidthSeconds, "second bins")
	if err := o.Average(cCtx.String("scratch-dir")+"/averaged-raw", opts); err != nil {
		return err
	}
	log.Println("Averaged; state:", o.State())
	return exportResult(o, cCtx.String("output"))
}

// commonFlags are shared by every subcommand.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "input", Usage: "URI or pathname to an observation descriptor JSON file.", Required: true},
		&cli.StringFlag{Name: "output", Usage: "URI or pathname for the exported summary.", Required: true},
		&cli.StringFlag{Name: "scratch-dir", Usage: "Directory for scratch-mode paged stores.", Value: os.TempDir()},
		&cli.StringFlag{Name: "channels", Usage: "Global channel-range spec, 1-based \"a, b\" pairs, e.g. \"1, 64, 129, 192\". Empty keeps the full band."},
		&cli.StringFlag{Name: "pol", Usage: "Polarization to select: a recorded label, I, Q, U, V, PI, or empty for NO_POL."},
	}
}

func main() {
	app := &cli.App{
		Name:  "uvengine",
		Usage: "drive the visibility engine's stream selection, IF swap, flagging, and averaging from a shell",
		Commands: []*cli.Command{
			{
				Name:   "select",
				Usage:  "ingest an observation and run stream selection",
				Flags:  commonFlags(),
				Action: doSelect,
			},
			{
				Name:  "swap",
				Usage: "ingest, select, and swap in one IF",
				Flags: append(commonFlags(),
					&cli.IntFlag{Name: "if", Usage: "IF index to make resident.", Value: 0},
				),
				Action: doSwap,
			},
			{
				Name:  "flag",
				Usage: "ingest, select, and queue a flag/unflag edit across every integration",
				Flags: append(commonFlags(),
					&cli.IntFlag{Name: "if", Usage: "Target IF index, or -1 for all IFs.", Value: -1},
					&cli.IntFlag{Name: "target", Usage: "Target baseline or antenna index.", Required: true},
					&cli.StringFlag{Name: "kind", Usage: "baseline, antenna, or subarray.", Value: "baseline"},
					&cli.StringFlag{Name: "action", Usage: "flag or unflag.", Value: "flag"},
					&cli.BoolFlag{Name: "all-channels", Usage: "Apply to all channels, not just the currently selected ones."},
				),
				Action: doFlag,
			},
			{
				Name:  "average",
				Usage: "ingest, select, and time-average into fixed-width bins",
				Flags: append(commonFlags(),
					&cli.Float64Flag{Name: "bin-width", Usage: "Output bin width, in seconds.", Required: true},
					&cli.BoolFlag{Name: "scatter", Usage: "Derive output weights from sample scatter instead of input weights."},
				),
				Action: doAverage,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

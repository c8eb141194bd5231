// Command uvbatch fans a directory of observation descriptors out across a
// fixed worker pool, each worker driving one Observation independently
// through ingest, stream selection, and averaging — grounded on the
// teacher's convert_gsf_list/pool.Submit pattern in cmd/main.go. Each pool
// worker owns a distinct Observation, so this stays above the single-
// Observation cooperative-concurrency boundary (spec.md §5).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	visengine "github.com/sixy6e/go-visengine"
	"github.com/sixy6e/go-visengine/search"
)

// processOne drives one observation descriptor through ingest, stream
// selection, and (if binWidth > 0) averaging, writing a summary alongside
// it in outdirUri.
func processOne(descUri, outdirUri, channelsSpec, pol, scratchDir string, binWidth float64) error {
	log.Println("Processing:", descUri)
	ing := &visengine.FileIngester{Path: descUri}
	o, err := visengine.LoadObservation(ing)
	if err != nil {
		return err
	}

	nBaselineMax := 0
	for i := range o.SubArrays {
		if n := o.SubArrays[i].NBaseline(); n > nBaselineMax {
			nBaselineMax = n
		}
	}
	_, file := filepath.Split(descUri)
	ifSt, err := visengine.OpenIFStore(filepath.Join(scratchDir, file+".ifstore"), nBaselineMax, len(o.TimeIndex), visengine.ModeScratch)
	if err != nil {
		return err
	}
	o.IFSt = ifSt

	var chans *visengine.ChannelRangeSet
	if channelsSpec != "" {
		chans, err = visengine.ParseChannelRangeSet(channelsSpec)
		if err != nil {
			return err
		}
	}
	if err := o.SelectStream(chans, pol, false); err != nil {
		return err
	}

	if binWidth > 0 {
		if err := o.Average(filepath.Join(scratchDir, file+".avg-raw"), visengine.AverageOptions{BinWidthSeconds: binWidth}); err != nil {
			return err
		}
	}

	outUri := filepath.Join(outdirUri, file+"-summary.json")
	exp := &visengine.FileExporter{Path: outUri}
	return visengine.ExportObservation(o, exp, false)
}

func runBatch(uri, configUri, outdirUri, scratchDir, channelsSpec, pol string, binWidth float64) error {
	log.Println("Searching uri:", uri)
	items, err := search.FindDescriptors(uri, configUri)
	if err != nil {
		return err
	}
	log.Println("Number of observations to process:", len(items))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	for _, name := range items {
		itemUri := name
		pool.Submit(func() {
			if err := processOne(itemUri, outdirUri, channelsSpec, pol, scratchDir, binWidth); err != nil {
				log.Println("Error processing", itemUri, ":", err)
			}
		})
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:  "uvbatch",
		Usage: "batch-process a directory of observation descriptors across a fixed worker pool",
		Commands: []*cli.Command{
			{
				Name: "run",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to a directory containing observation descriptors.", Required: true},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
					&cli.StringFlag{Name: "outdir-uri", Usage: "URI or pathname to an output directory.", Required: true},
					&cli.StringFlag{Name: "scratch-dir", Usage: "Directory for scratch-mode paged stores.", Value: os.TempDir()},
					&cli.StringFlag{Name: "channels", Usage: "Global channel-range spec, 1-based \"a, b\" pairs, e.g. \"1, 64, 129, 192\". Empty keeps the full band."},
					&cli.StringFlag{Name: "pol", Usage: "Polarization to select: a recorded label, I, Q, U, V, PI, or empty for NO_POL."},
					&cli.Float64Flag{Name: "bin-width", Usage: "Average into bins of this many seconds; 0 skips averaging."},
				},
				Action: func(cCtx *cli.Context) error {
					return runBatch(
						cCtx.String("uri"), cCtx.String("config-uri"), cCtx.String("outdir-uri"),
						cCtx.String("scratch-dir"), cCtx.String("channels"), cCtx.String("pol"),
						cCtx.Float64("bin-width"),
					)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// Package main runs a Monte-Carlo relative pose evaluation sweep: for
// each configured pixel noise level it generates synthetic refractive
// two-view correspondences, estimates the relative pose with the
// calibrated and the refractive estimator, and writes the aggregated
// accuracy table plus optional PNG/HTML charts and a sqlite results
// database.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MDSKiel/colmap-underwater/internal/eval"
	"github.com/MDSKiel/colmap-underwater/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "JSON experiment config (defaults to the canonical flat-port sweep)")
		outPath     = flag.String("out", "", "report table output path (default stdout)")
		dbPath      = flag.String("db", "", "optional sqlite results database")
		plotPath    = flag.String("plot", "", "optional PNG plot output path")
		chartPath   = flag.String("chart", "", "optional HTML chart output path")
		seed        = flag.Int64("seed", 0, "override the config seed (0 keeps the config value)")
		quiet       = flag.Bool("quiet", false, "suppress per-level progress logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := eval.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = eval.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	runner, err := eval.NewRunner(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	runner.Verbose = !*quiet

	log.Printf("releval: running %d noise levels, %d trials x %d points",
		len(cfg.NoiseLevels), cfg.NumTrials, cfg.NumPoints)
	sweep, err := runner.Run()
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	if *outPath != "" {
		if err := eval.WriteReportFile(*outPath, sweep); err != nil {
			log.Fatalf("write report: %v", err)
		}
		log.Printf("releval: report written to %s", *outPath)
	} else {
		if err := eval.WriteReport(os.Stdout, sweep); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}

	if *plotPath != "" {
		if err := eval.WritePlot(*plotPath, sweep); err != nil {
			log.Fatalf("write plot: %v", err)
		}
		log.Printf("releval: plot written to %s", *plotPath)
	}

	if *chartPath != "" {
		if err := eval.WriteChart(*chartPath, sweep); err != nil {
			log.Fatalf("write chart: %v", err)
		}
		log.Printf("releval: chart written to %s", *chartPath)
	}

	if *dbPath != "" {
		store, err := eval.OpenStore(*dbPath)
		if err != nil {
			log.Fatalf("open results db: %v", err)
		}
		defer store.Close()
		if err := store.SaveSweep(sweep); err != nil {
			log.Fatalf("save sweep: %v", err)
		}
		log.Printf("releval: sweep %s saved to %s", sweep.RunID, *dbPath)
	}
}

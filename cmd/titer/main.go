// Command titer runs an experiment headless and writes tables, summary and plot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"titerscope/internal/logger"
	"titerscope/internal/pipeline"
	"titerscope/internal/project"
	"titerscope/internal/version"

	"github.com/rs/zerolog"
)

func main() {
	projectPath := flag.String("project", "", "Path to experiment file (.titer.json)")
	discover := flag.String("discover", "", "Pair images found in this directory into a new experiment")
	nucSuffix := flag.String("nuc", "_dapi.tif", "Nuclear image suffix used with -discover")
	targetSuffix := flag.String("target", "_gfp.tif", "Target image suffix used with -discover")
	jsonLogs := flag.Bool("json", false, "Log JSON to stderr")
	debug := flag.Bool("debug", false, "Log every stage")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *projectPath == "" {
		fmt.Println("Usage: titer -project <file.titer.json> [-discover <dir> -nuc _dapi.tif -target _gfp.tif] [-json] [-debug]")
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	var log logger.Logger
	if *jsonLogs {
		log = logger.NewZerolog(os.Stderr, level)
	} else {
		log = logger.NewConsoleLogger(level)
	}

	var proj *project.File
	if *discover != "" {
		pairs, orphans, err := project.Discover(*discover, *nucSuffix, *targetSuffix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", err)
			os.Exit(1)
		}
		for _, o := range orphans {
			log.Warning("discover", "nuclear image without target", map[string]interface{}{"path": o})
		}
		name := filepath.Base(*projectPath)
		proj = project.New(name, filepath.Dir(*projectPath))
		for _, p := range pairs {
			proj.AddPair(p)
		}
		if err := proj.Save(*projectPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save experiment: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Discovered %d image pairs, experiment written to %s\n", len(pairs), *projectPath)
		fmt.Println("Add doses to the pairs (or tally.dose) and run again without -discover.")
		return
	}

	proj, err := project.Load(*projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load experiment: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("=== %s: %d image pairs ===\n", proj.Name, len(proj.Pairs))
	res, err := pipeline.Run(ctx, proj, log)
	if err != nil {
		log.Error("titer", err, nil)
		os.Exit(1)
	}

	fmt.Printf("\n%-12s %10s %8s %8s %8s\n", res.Aggregate.GroupKey, "Dose", "Pos", "Neg", "Frac")
	for _, row := range res.Aggregate.Rows {
		dose := "NA"
		if row.HasX {
			dose = fmt.Sprintf("%g", row.X)
		}
		fmt.Printf("%-12s %10s %8d %8d %8.3f\n", row.Group, dose, row.Pos, row.Neg, row.Y)
	}

	t := res.Titer
	conf := proj.Fit.Confidence * 100
	fmt.Printf("\n=== Titer ===\n")
	fmt.Printf("Dose at %.1f%% positive: %.4g\n", t.Target*100, t.Dose)
	fmt.Printf("%.0f%% CI: [%.4g, %.4g]\n", conf, t.Lower, t.Upper)
	if !res.Fit.Converged() {
		fmt.Printf("Warning: fit did not converge after %d iterations\n", res.Fit.Iterations())
	}
	for _, path := range res.Outputs {
		fmt.Printf("Wrote %s\n", path)
	}
}

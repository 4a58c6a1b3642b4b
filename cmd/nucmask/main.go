// Command nucmask segments a nuclear-stain image and prints per-object statistics.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"titerscope/internal/classify"
	tsimage "titerscope/internal/image"
	"titerscope/internal/logger"
	"titerscope/internal/segment"

	"github.com/rs/zerolog"
)

func main() {
	imagePath := flag.String("image", "", "Path to nuclear image (TIFF, PNG, or JPEG)")
	targetPath := flag.String("target", "", "Optional target-channel image to measure")
	defaults := segment.DefaultParams()
	width := flag.Int("width", defaults.Width, "Expected maximal nuclear width in pixels")
	offset := flag.Float64("offset", defaults.Offset, "Adaptive threshold offset (normalised units)")
	gamma := flag.Float64("gamma", defaults.Gamma, "Gamma correction exponent")
	sigma := flag.Float64("sigma", defaults.Sigma, "Smoothing radius (0 disables)")
	tolerance := flag.Float64("tolerance", defaults.Tolerance, "Watershed merge tolerance in pixels")
	ext := flag.Int("ext", defaults.Ext, "Watershed neighbourhood radius")
	overlayPath := flag.String("overlay", "", "Write an overlay PNG to this path")
	labelsPath := flag.String("labels", "", "Write a 16-bit label PNG to this path")
	debug := flag.Bool("debug", false, "Log every stage")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: nucmask -image <path> [-target <path>] [-width 50] [-offset 0.05] [-gamma 1] [-sigma 2] [-overlay out.png] [-labels labels.png]")
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := logger.NewConsoleLogger(level)

	nuc, err := tsimage.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded image: %dx%d pixels\n", nuc.Width, nuc.Height)

	params := defaults.WithWidth(*width).WithOffset(*offset).WithGamma(*gamma).
		WithSigma(*sigma).WithWatershed(*tolerance, *ext)
	fmt.Printf("\nSegmentation parameters:\n")
	fmt.Printf("  Width: %d px (window %d px)\n", params.Width, segment.WindowDiameter(params.Width))
	fmt.Printf("  Offset: %.4f\n", params.Offset)
	fmt.Printf("  Gamma: %.2f  Sigma: %.2f\n", params.Gamma, params.Sigma)
	fmt.Printf("  Watershed: tolerance=%.2f ext=%d\n", params.Tolerance, params.Ext)

	labels, err := segment.NucMask(nuc, params, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segmentation failed: %v\n", err)
		os.Exit(1)
	}
	if labels.Degenerate != segment.NotDegenerate {
		fmt.Printf("\nDegenerate mask (%s)\n", labels.Degenerate)
	}

	target := nuc
	if *targetPath != "" {
		target, err = tsimage.Load(*targetPath)
		if err == nil {
			err = tsimage.CheckPair(nuc, target)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load target: %v\n", err)
			os.Exit(1)
		}
	}

	objs, err := classify.Measure(labels, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Measurement failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nSegmented %d nuclei:\n", len(objs))
	fmt.Printf("%-8s %8s %10s %10s %12s %12s\n", "Label", "Area", "X", "Y", "Mean", "SD")
	fmt.Println(strings.Repeat("-", 64))
	total := 0
	for _, o := range objs {
		total += o.Area
		fmt.Printf("%-8d %8d %10.1f %10.1f %12.4f %12.4f\n",
			o.Label, o.Area, o.Centroid.X, o.Centroid.Y, o.Mean, o.SD)
	}
	if len(objs) > 0 {
		fmt.Printf("\nMean area: %.1f px\n", float64(total)/float64(len(objs)))
	}

	if *overlayPath != "" {
		opts := tsimage.DefaultOverlayOptions()
		opts.Numbers = true
		if err := tsimage.SavePNG(*overlayPath, tsimage.Overlay(nuc, labels, opts)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write overlay: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Overlay written to %s\n", *overlayPath)
	}
	if *labelsPath != "" {
		if err := tsimage.SavePNG(*labelsPath, tsimage.LabelsImage(labels)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write labels: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Labels written to %s\n", *labelsPath)
	}
}

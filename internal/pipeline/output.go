package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"titerscope/internal/doseresponse"
	tsimage "titerscope/internal/image"
	"titerscope/internal/logger"
	"titerscope/internal/plot"
	"titerscope/internal/project"
	"titerscope/internal/version"
)

// Output file names inside the output directory.
const (
	ClassificationFile = "classification.csv"
	AggregateFile      = "aggregate.csv"
	SummaryFile        = "summary.json"
	PlotFile           = "fit.png"
	OverlayDir         = "overlays"
)

// Summary is the JSON record of a run.
type Summary struct {
	Experiment string               `json:"experiment"`
	Version    string               `json:"version"`
	Created    time.Time            `json:"created"`
	GroupKey   string               `json:"group_key"`
	DoseSource string               `json:"dose_source"`
	Images     int                  `json:"images"`
	Objects    int                  `json:"objects"`
	Titer      float64              `json:"titer"`
	Lower      float64              `json:"lower"`
	Upper      float64              `json:"upper"`
	Target     float64              `json:"target"`
	Fit        doseresponse.Summary `json:"fit"`
}

// NewSummary builds the run summary.
func NewSummary(proj *project.File, res *Result) (Summary, error) {
	fs, err := res.Fit.Summary()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Experiment: proj.Name,
		Version:    version.Version,
		Created:    time.Now(),
		GroupKey:   res.Aggregate.GroupKey,
		DoseSource: res.Aggregate.DoseSource,
		Images:     len(res.Images),
		Objects:    res.Classification.Len(),
		Titer:      res.Titer.Dose,
		Lower:      res.Titer.Lower,
		Upper:      res.Titer.Upper,
		Target:     res.Titer.Target,
		Fit:        fs,
	}, nil
}

func writeOutputs(dir string, proj *project.File, res *Result, log logger.Logger) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	out := proj.Output

	if out.Tables {
		path := filepath.Join(dir, ClassificationFile)
		if err := res.Classification.WriteCSVFile(path); err != nil {
			return fmt.Errorf("failed to write classification table: %w", err)
		}
		res.Outputs = append(res.Outputs, path)

		path = filepath.Join(dir, AggregateFile)
		agg, err := res.Aggregate.Table()
		if err != nil {
			return err
		}
		if err := agg.WriteCSVFile(path); err != nil {
			return fmt.Errorf("failed to write aggregate table: %w", err)
		}
		res.Outputs = append(res.Outputs, path)
	}

	if out.Summary {
		summary, err := NewSummary(proj, res)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(dir, SummaryFile)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
	}

	if out.Plot {
		path := filepath.Join(dir, PlotFile)
		if err := plot.SavePNG(path, res.Fit, proj.Plot); err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
	}

	if out.Overlays {
		opts := tsimage.DefaultOverlayOptions()
		for i, img := range res.Images {
			opts.Positive = img.PositiveLabels()
			path := filepath.Join(dir, OverlayDir, overlayName(i, img.Pair.Group))
			if err := tsimage.SavePNG(path, tsimage.Overlay(img.Nuclear, img.Labels, opts)); err != nil {
				return err
			}
			res.Outputs = append(res.Outputs, path)
		}
	}

	log.Info(component, "outputs written", map[string]interface{}{
		"dir":   dir,
		"files": len(res.Outputs),
	})
	return nil
}

func overlayName(i int, group string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, group)
	return fmt.Sprintf("%03d_%s.png", i+1, safe)
}

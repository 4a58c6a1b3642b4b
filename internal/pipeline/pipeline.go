// Package pipeline runs an experiment end to end: segmentation and
// classification per image pair, then tally, dose-response fit and outputs.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"titerscope/internal/classify"
	"titerscope/internal/doseresponse"
	tsimage "titerscope/internal/image"
	"titerscope/internal/logger"
	"titerscope/internal/project"
	"titerscope/internal/segment"
	"titerscope/internal/table"
	"titerscope/internal/tally"
)

const component = "pipeline"

// ImageResult holds the per-pair outcome of segmentation and classification.
type ImageResult struct {
	Pair     project.Pair
	Nuclear  *tsimage.Gray
	Labels   *segment.Labels
	Objects  []classify.Object
	Positive []bool
	Cutoff   float64
}

// PositiveLabels returns the labels flagged positive.
func (r *ImageResult) PositiveLabels() map[int]bool {
	out := make(map[int]bool)
	for i, o := range r.Objects {
		if r.Positive[i] {
			out[o.Label] = true
		}
	}
	return out
}

// Result is the outcome of a run.
type Result struct {
	Images         []*ImageResult
	Classification *table.Table
	Aggregate      *tally.Result
	Fit            *doseresponse.Fit
	Titer          doseresponse.Estimate
	// Outputs lists the files written.
	Outputs []string
}

// Run processes every pair of proj, fits the dose response and writes the
// outputs the experiment asks for. Images are processed concurrently; the first
// failure cancels the remaining images and is returned.
func Run(ctx context.Context, proj *project.File, log logger.Logger) (*Result, error) {
	log = logger.OrNop(log)
	if err := proj.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	images, err := processAll(ctx, proj, log)
	if err != nil {
		return nil, err
	}

	param := proj.Classification.Param
	if param == "" {
		param = proj.Tally.Param
	}
	groupColumn := proj.GroupColumn()
	tbl := classify.NewTable(groupColumn, param, proj.HasDoses())
	for _, img := range images {
		if err := classify.Append(tbl, groupColumn, img.Pair.Group, param, img.Objects, img.Positive, img.Pair.Dose); err != nil {
			return nil, err
		}
	}

	cfg := proj.Tally
	cfg.GroupBy = groupColumn
	cfg.Param = param
	cfg.Groups = proj.Groups()

	var pheno *table.Table
	if path := proj.GetPhenotypePath(); path != "" {
		pheno, err = table.ReadCSVFile(path)
		if err != nil {
			return nil, fmt.Errorf("phenotype table: %w", err)
		}
	}

	agg, err := tally.Aggregate(tbl, cfg, pheno, log)
	if err != nil {
		return nil, err
	}
	fit, err := doseresponse.FitAggregate(agg, proj.Fit, log)
	if err != nil {
		return nil, err
	}
	titer, err := fit.Titer()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Images:         images,
		Classification: tbl,
		Aggregate:      agg,
		Fit:            fit,
		Titer:          titer,
	}
	if dir := proj.GetOutputDir(); dir != "" {
		if err := writeOutputs(dir, proj, res, log); err != nil {
			return nil, err
		}
	}

	log.Info(component, "experiment complete", map[string]interface{}{
		"images":   len(images),
		"objects":  tbl.Len(),
		"groups":   len(agg.Rows),
		"titer":    titer.Dose,
		"lower":    titer.Lower,
		"upper":    titer.Upper,
		"duration": time.Since(start),
	})
	return res, nil
}

// processAll runs processImage over every pair with a bounded worker pool and
// returns the results in pair order.
func processAll(ctx context.Context, proj *project.File, log logger.Logger) ([]*ImageResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := proj.Output.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(proj.Pairs) {
		workers = len(proj.Pairs)
	}

	results := make([]*ImageResult, len(proj.Pairs))
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				res, err := processImage(proj, i, log)
				if err != nil {
					fail(fmt.Errorf("pair %d (%s): %w", i+1, proj.Pairs[i].Group, err))
					continue
				}
				results[i] = res
			}
		}()
	}

feed:
	for i := range proj.Pairs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func processImage(proj *project.File, i int, log logger.Logger) (*ImageResult, error) {
	pair := proj.Pairs[i]
	nuc, tgt, err := tsimage.ResolvePair(
		tsimage.Path(proj.NuclearPath(i)).Frame(pair.Frame),
		tsimage.Path(proj.TargetPath(i)).Frame(pair.Frame),
	)
	if err != nil {
		return nil, err
	}

	labels, err := segment.NucMask(nuc, proj.Segmentation, log)
	if err != nil {
		return nil, err
	}
	objs, err := classify.Measure(labels, tgt)
	if err != nil {
		return nil, err
	}
	cutoff, err := proj.Classification.Resolve(tgt)
	if err != nil {
		return nil, err
	}
	flags := classify.Classify(objs, cutoff)

	positive := 0
	for _, f := range flags {
		if f {
			positive++
		}
	}
	log.Debug(component, "image classified", map[string]interface{}{
		"group":    pair.Group,
		"objects":  len(objs),
		"positive": positive,
		"cutoff":   cutoff,
	})

	return &ImageResult{
		Pair:     pair,
		Nuclear:  nuc,
		Labels:   labels,
		Objects:  objs,
		Positive: flags,
		Cutoff:   cutoff,
	}, nil
}

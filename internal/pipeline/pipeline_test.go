package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"path/filepath"
	"testing"

	"titerscope/internal/classify"
	tsimage "titerscope/internal/image"
	"titerscope/internal/project"
	"titerscope/internal/tally"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	plateSize = 128
	spacing   = 32
	radius    = 8
)

// writePlate writes a 4x4 grid of nuclei and a target image in which the first
// positives nuclei are bright.
func writePlate(t *testing.T, dir, name string, positives int) (string, string) {
	t.Helper()
	nuc := image.NewGray(image.Rect(0, 0, plateSize, plateSize))
	tgt := image.NewGray(image.Rect(0, 0, plateSize, plateSize))
	n := 0
	for cy := spacing / 2; cy < plateSize; cy += spacing {
		for cx := spacing / 2; cx < plateSize; cx += spacing {
			level := uint8(20)
			if n < positives {
				level = 220
			}
			for y := cy - radius; y <= cy+radius; y++ {
				for x := cx - radius; x <= cx+radius; x++ {
					dx, dy := x-cx, y-cy
					if dx*dx+dy*dy <= radius*radius {
						nuc.SetGray(x, y, color.Gray{Y: 200})
						tgt.SetGray(x, y, color.Gray{Y: level})
					}
				}
			}
			n++
		}
	}
	nucPath := filepath.Join(dir, name+"_dapi.png")
	tgtPath := filepath.Join(dir, name+"_gfp.png")
	require.NoError(t, tsimage.SavePNG(nucPath, nuc))
	require.NoError(t, tsimage.SavePNG(tgtPath, tgt))
	return nucPath, tgtPath
}

func newExperiment(t *testing.T) *project.File {
	t.Helper()
	dir := t.TempDir()
	proj := project.New("synthetic", dir)
	proj.Classification = classify.Rule{Param: "positive", Cutoff: 0.5}
	proj.Output.Overlays = true
	proj.Output.Workers = 2

	for _, w := range []struct {
		group     string
		dose      float64
		positives int
	}{
		{"w1", 1, 1},
		{"w2", 10, 6},
		{"w3", 100, 15},
	} {
		nuc, tgt := writePlate(t, dir, w.group, w.positives)
		dose := w.dose
		proj.AddPair(project.Pair{Group: w.group, Nuclear: nuc, Target: tgt, Dose: &dose})
	}
	return proj
}

func TestRunEndToEnd(t *testing.T) {
	proj := newExperiment(t)
	res, err := Run(context.Background(), proj, nil)
	require.NoError(t, err)

	require.Len(t, res.Images, 3)
	for i, img := range res.Images {
		assert.Equal(t, proj.Pairs[i].Group, img.Pair.Group, "results keep pair order")
		assert.Equal(t, 16, img.Labels.Count)
	}

	require.Len(t, res.Aggregate.Rows, 3)
	assert.Equal(t, "file", res.Aggregate.GroupKey)
	assert.Equal(t, "moi", res.Aggregate.DoseSource)
	for i, want := range []int{1, 6, 15} {
		row := res.Aggregate.Rows[i]
		assert.Equal(t, 16, row.Total())
		assert.Equal(t, want, row.Pos, row.Group)
	}

	assert.Greater(t, res.Titer.Dose, 1.0)
	assert.Less(t, res.Titer.Dose, 100.0)

	out := proj.GetOutputDir()
	for _, name := range []string{ClassificationFile, AggregateFile, SummaryFile, PlotFile} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.FileExists(t, filepath.Join(out, OverlayDir, "001_w1.png"))
	assert.Len(t, res.Outputs, 7)
}

func TestRunCancelled(t *testing.T) {
	proj := newExperiment(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, proj, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunMissingImage(t *testing.T) {
	proj := newExperiment(t)
	proj.Pairs[1].Nuclear = "missing.png"

	_, err := Run(context.Background(), proj, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "w2")
}

func TestRunWithoutDose(t *testing.T) {
	proj := newExperiment(t)
	for i := range proj.Pairs {
		proj.Pairs[i].Dose = nil
	}
	proj.Output.Dir = ""

	_, err := Run(context.Background(), proj, nil)
	assert.True(t, errors.Is(err, tally.ErrMissingVariable))
}

func TestOverlayName(t *testing.T) {
	assert.Equal(t, "012_plate_A1.png", overlayName(11, "plate/A1"))
}

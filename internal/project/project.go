// Package project provides experiment file handling and persistence.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"titerscope/internal/classify"
	"titerscope/internal/doseresponse"
	"titerscope/internal/plot"
	"titerscope/internal/segment"
	"titerscope/internal/tally"
)

// FileVersion is the current experiment file format version.
const FileVersion = 1

// ErrNoPairs is returned when an experiment has no image pairs.
var ErrNoPairs = errors.New("no image pairs")

// File represents an experiment file (.titer.json).
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// Image pairs; paths are relative to the experiment file.
	Pairs []Pair `json:"pairs"`

	// Optional phenotype CSV joined onto the aggregated table by group.
	PhenotypePath string `json:"phenotype,omitempty"`

	Segmentation   segment.Params       `json:"segmentation"`
	Classification classify.Rule        `json:"classification"`
	Tally          tally.Config         `json:"tally"`
	Fit            doseresponse.Options `json:"fit"`
	Plot           plot.Options         `json:"plot"`
	Output         OutputSettings       `json:"output"`

	dir string
}

// Pair is one nuclear/target image pair belonging to a group.
type Pair struct {
	Group   string   `json:"group"`
	Nuclear string   `json:"nuclear"`
	Target  string   `json:"target"`
	Frame   int      `json:"frame,omitempty"`
	Dose    *float64 `json:"dose,omitempty"`
}

// OutputSettings select what a run writes and where.
type OutputSettings struct {
	// Dir is relative to the experiment file; empty disables all outputs.
	Dir      string `json:"dir,omitempty"`
	Tables   bool   `json:"tables"`
	Summary  bool   `json:"summary"`
	Plot     bool   `json:"plot"`
	Overlays bool   `json:"overlays"`
	// Workers bounds concurrent images; zero means one per CPU.
	Workers int `json:"workers,omitempty"`
}

// New creates a new experiment with default settings, rooted at dir.
func New(name, dir string) *File {
	now := time.Now()
	return &File{
		Version:        FileVersion,
		Name:           name,
		Created:        now,
		Modified:       now,
		Segmentation:   segment.DefaultParams(),
		Classification: classify.DefaultRule(),
		Tally:          tally.DefaultConfig().WithGroupBy("file"),
		Fit:            doseresponse.DefaultOptions(),
		Plot:           plot.DefaultOptions(),
		Output: OutputSettings{
			Dir:     "results",
			Tables:  true,
			Summary: true,
			Plot:    true,
		},
		dir: dir,
	}
}

// Load loads an experiment from a file. Settings missing from the file keep
// their defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	proj := New("", filepath.Dir(path))
	if err := json.Unmarshal(data, proj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if proj.Version > FileVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", path, proj.Version)
	}
	proj.dir = filepath.Dir(path)
	return proj, nil
}

// Save saves the experiment to a file, storing paths relative to it.
func (p *File) Save(path string) error {
	p.Modified = time.Now()
	dir := filepath.Dir(path)
	if dir != p.dir {
		for i := range p.Pairs {
			p.Pairs[i].Nuclear = relativeTo(dir, p.resolve(p.Pairs[i].Nuclear))
			p.Pairs[i].Target = relativeTo(dir, p.resolve(p.Pairs[i].Target))
		}
		if p.PhenotypePath != "" {
			p.PhenotypePath = relativeTo(dir, p.resolve(p.PhenotypePath))
		}
		p.dir = dir
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Dir returns the directory relative paths resolve against.
func (p *File) Dir() string {
	return p.dir
}

// AddPair appends a pair, storing its paths relative to the experiment. Relative
// pair paths are taken relative to the working directory, as Discover returns them.
func (p *File) AddPair(pair Pair) {
	pair.Nuclear = relativeTo(p.dir, pair.Nuclear)
	pair.Target = relativeTo(p.dir, pair.Target)
	p.Pairs = append(p.Pairs, pair)
	p.Modified = time.Now()
}

// NuclearPath returns the absolute path to the nuclear image of pair i.
func (p *File) NuclearPath(i int) string {
	return p.resolve(p.Pairs[i].Nuclear)
}

// TargetPath returns the absolute path to the target image of pair i. An empty
// target means the nuclear image is measured.
func (p *File) TargetPath(i int) string {
	if p.Pairs[i].Target == "" {
		return p.NuclearPath(i)
	}
	return p.resolve(p.Pairs[i].Target)
}

// GetPhenotypePath returns the absolute path to the phenotype table, or "".
func (p *File) GetPhenotypePath() string {
	return p.resolve(p.PhenotypePath)
}

// GetOutputDir returns the absolute output directory, or "" when outputs are off.
func (p *File) GetOutputDir() string {
	return p.resolve(p.Output.Dir)
}

// GroupColumn returns the column the classification table is grouped by.
func (p *File) GroupColumn() string {
	if p.Tally.GroupBy != "" {
		return p.Tally.GroupBy
	}
	return "file"
}

// Groups returns each distinct group in pair order.
func (p *File) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, pair := range p.Pairs {
		if !seen[pair.Group] {
			seen[pair.Group] = true
			out = append(out, pair.Group)
		}
	}
	return out
}

// HasDoses reports whether any pair carries its own dose.
func (p *File) HasDoses() bool {
	for _, pair := range p.Pairs {
		if pair.Dose != nil {
			return true
		}
	}
	return false
}

// Validate checks that the experiment can be run.
func (p *File) Validate() error {
	if len(p.Pairs) == 0 {
		return ErrNoPairs
	}
	for i, pair := range p.Pairs {
		if pair.Group == "" {
			return fmt.Errorf("pair %d: missing group", i+1)
		}
		if pair.Nuclear == "" {
			return fmt.Errorf("pair %d (%s): missing nuclear image", i+1, pair.Group)
		}
		if pair.Frame < 0 {
			return fmt.Errorf("pair %d (%s): negative frame", i+1, pair.Group)
		}
	}
	if err := p.Segmentation.Validate(); err != nil {
		return err
	}
	return p.Fit.Validate()
}

func (p *File) resolve(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// relativeTo rewrites path, absolute or relative to the working directory, to
// be relative to dir. Paths that cannot be expressed relative to dir are
// returned absolute.
func relativeTo(dir, path string) string {
	if path == "" || dir == "" {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return absPath
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

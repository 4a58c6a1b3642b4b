package image

import (
	"errors"
	"fmt"
)

// ErrNoFrame is returned when a Source does not hold the requested frame.
var ErrNoFrame = errors.New("frame not available")

// Source identifies an intensity image either by file path or as frames already in memory.
// It is resolved once, at the boundary of the pipeline.
type Source struct {
	path   string
	frames []*Gray
	frame  int
}

// Path returns a Source that loads the first frame of the file at path.
func Path(path string) Source {
	return Source{path: path}
}

// Loaded returns a Source over in-memory frames; frame 0 is selected.
func Loaded(frames ...*Gray) Source {
	return Source{frames: frames}
}

// Frame returns a copy of s selecting frame i.
func (s Source) Frame(i int) Source {
	s.frame = i
	return s
}

// IsPath reports whether the Source refers to a file.
func (s Source) IsPath() bool {
	return s.frames == nil && s.path != ""
}

// String describes the source for logs.
func (s Source) String() string {
	if s.IsPath() {
		return s.path
	}
	return fmt.Sprintf("memory[%d/%d]", s.frame, len(s.frames))
}

// Resolve returns the selected frame, loading it from disk for path sources.
// Decoders only expose the first page of multi-page files, so path sources accept frame 0 only.
func (s Source) Resolve() (*Gray, error) {
	if s.IsPath() {
		if s.frame != 0 {
			return nil, fmt.Errorf("%w: %s frame %d", ErrNoFrame, s.path, s.frame)
		}
		return Load(s.path)
	}
	if s.frame < 0 || s.frame >= len(s.frames) || s.frames[s.frame] == nil {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrNoFrame, s.frame, len(s.frames))
	}
	return s.frames[s.frame], nil
}

// ResolvePair resolves a nuclear and a target source and checks that their sizes match.
func ResolvePair(nuclear, target Source) (*Gray, *Gray, error) {
	nuc, err := nuclear.Resolve()
	if err != nil {
		return nil, nil, fmt.Errorf("nuclear channel: %w", err)
	}
	tgt, err := target.Resolve()
	if err != nil {
		return nil, nil, fmt.Errorf("target channel: %w", err)
	}
	if err := CheckPair(nuc, tgt); err != nil {
		return nil, nil, err
	}
	return nuc, tgt, nil
}

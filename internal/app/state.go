// Package app provides application state, events and the viewer theme.
package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"titerscope/internal/logger"
	"titerscope/internal/pipeline"
	"titerscope/internal/project"
)

// ErrBusy is returned when a run is requested while one is in progress.
var ErrBusy = errors.New("a run is already in progress")

// ErrNoProject is returned when an action needs an open experiment.
var ErrNoProject = errors.New("no experiment open")

// State holds the open experiment and the result of its last run.
type State struct {
	mu sync.RWMutex

	ProjectPath string
	Project     *project.File
	Modified    bool

	Result  *pipeline.Result
	running bool

	log       logger.Logger
	listeners map[EventType][]EventListener
}

// EventType identifies different application events.
type EventType int

const (
	EventProjectLoaded EventType = iota
	EventProjectSaved
	EventModified
	EventRunStarted
	EventRunComplete
	EventRunFailed
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a new application state with an empty experiment.
func NewState(log logger.Logger) *State {
	return &State{
		Project:   project.New("Untitled", ""),
		log:       logger.OrNop(log),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the experiment as modified and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// NewProject replaces the open experiment with an empty one.
func (s *State) NewProject() {
	s.mu.Lock()
	s.ProjectPath = ""
	s.Project = project.New("Untitled", "")
	s.Result = nil
	s.mu.Unlock()
	s.SetModified(false)
}

// LoadProject opens an experiment file.
func (s *State) LoadProject(path string) error {
	proj, err := project.Load(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ProjectPath = path
	s.Project = proj
	s.Result = nil
	s.Modified = false
	s.mu.Unlock()

	s.log.Info("app", "experiment loaded", map[string]interface{}{
		"path":  path,
		"pairs": len(proj.Pairs),
	})
	s.Emit(EventProjectLoaded, path)
	return nil
}

// SaveProject writes the open experiment to path.
func (s *State) SaveProject(path string) error {
	s.mu.Lock()
	proj := s.Project
	if proj.Name == "" || proj.Name == "Untitled" {
		proj.Name = filepath.Base(path)
	}
	err := proj.Save(path)
	if err == nil {
		s.ProjectPath = path
		s.Modified = false
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.Emit(EventProjectSaved, path)
	return nil
}

// DiscoverPairs adds image pairs found in dir to the open experiment and
// returns how many were added.
func (s *State) DiscoverPairs(dir, nucSuffix, targetSuffix string) (int, error) {
	pairs, orphans, err := project.Discover(dir, nucSuffix, targetSuffix)
	if err != nil {
		return 0, err
	}
	for _, o := range orphans {
		s.log.Warning("app", "nuclear image without target", map[string]interface{}{"path": o})
	}

	s.mu.Lock()
	for _, p := range pairs {
		s.Project.AddPair(p)
	}
	s.mu.Unlock()
	s.SetModified(true)
	return len(pairs), nil
}

// Running reports whether a run is in progress.
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Run executes the open experiment. EventRunStarted is emitted first, then
// EventRunComplete with the result or EventRunFailed with the error.
func (s *State) Run(ctx context.Context) (*pipeline.Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	proj := s.Project
	if proj == nil {
		s.mu.Unlock()
		return nil, ErrNoProject
	}
	s.running = true
	s.mu.Unlock()

	s.Emit(EventRunStarted, len(proj.Pairs))
	res, err := pipeline.Run(ctx, proj, s.log)

	s.mu.Lock()
	s.running = false
	if err == nil {
		s.Result = res
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("app", err, map[string]interface{}{"experiment": proj.Name})
		s.Emit(EventRunFailed, err)
		return nil, err
	}
	s.Emit(EventRunComplete, res)
	return res, nil
}

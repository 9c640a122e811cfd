// Package store owns the persisted sprint state: loading with strict
// validation, atomic locked updates, and timestamped backups with rotation.
//
// Every invocation is a fresh process. The store therefore never caches
// state in memory across calls; it reads, mutates under an exclusive
// filesystem lock, and atomically replaces the files.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/sprintctl/internal/config"
	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/log"
)

// State file names inside the state directory
const (
	GraphFile      = "task_graph.json"
	ProgressFile   = "progress.json"
	DeferredFile   = "deferred.json"
	GuardrailsFile = "guardrails.yaml"
	StackFile      = "approved_stack.yaml"

	backupsDirName = "backups"
	lockFileName   = ".sprintctl.lock"
)

// stateFileNames are all files included in a snapshot
var stateFileNames = []string{GraphFile, ProgressFile, DeferredFile, GuardrailsFile, StackFile}

// State is the full in-memory model handed to mutations
type State struct {
	Graph    *graph.TaskGraph
	Progress *graph.Progress
	Deferred []graph.DeferredFeature
}

// Validate re-checks every invariant: schema, acyclicity, tracker consistency
func (st *State) Validate() error {
	if err := st.Graph.Validate(); err != nil {
		return err
	}
	return st.Graph.ValidateProgress(st.Progress)
}

// Store loads, validates, and atomically persists the sprint state
type Store struct {
	dir        string
	guardrails *config.Guardrails
	logger     *log.Logger

	// writeFile is swapped in tests to simulate write failures
	writeFile func(path string, data []byte) error
}

// Open prepares a store over the given state directory and loads its
// guardrail configuration.
func Open(dir string) (*Store, error) {
	guardrails, err := config.LoadGuardrails(filepath.Join(dir, GuardrailsFile))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "load guardrails", err)
	}

	return &Store{
		dir:        dir,
		guardrails: guardrails,
		logger:     log.DefaultLogger().With("component", "store"),
		writeFile:  atomicWriteFile,
	}, nil
}

// Dir returns the state directory
func (s *Store) Dir() string { return s.dir }

// Guardrails returns the loaded guardrail configuration
func (s *Store) Guardrails() *config.Guardrails { return s.guardrails }

// Stack loads the approved technology registry
func (s *Store) Stack() (config.Stack, error) {
	return config.LoadStack(filepath.Join(s.dir, StackFile))
}

func (s *Store) backupDir() string {
	return filepath.Join(s.dir, backupsDirName)
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, lockFileName)
}

// Load parses all state files and validates referential integrity and
// acyclicity. Violations are collected and reported together.
func (s *Store) Load() (*State, error) {
	st := &State{}

	var g graph.TaskGraph
	if err := s.readStrict(GraphFile, &g); err != nil {
		return nil, err
	}
	st.Graph = &g

	var p graph.Progress
	if err := s.readStrict(ProgressFile, &p); err != nil {
		return nil, err
	}
	st.Progress = &p

	// The deferred-feature list is optional; absence means empty.
	var deferred []graph.DeferredFeature
	if err := s.readStrict(DeferredFile, &deferred); err != nil {
		if !errors.Is(err, errors.ErrCodeFileNotFound) {
			return nil, err
		}
	}
	st.Deferred = deferred

	if err := st.Validate(); err != nil {
		return nil, err
	}

	return st, nil
}

// Init seeds a fresh state directory from a validated graph. Fails if a
// sprint already exists there.
func (s *Store) Init(ctx context.Context, g *graph.TaskGraph) error {
	if err := g.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(s.dir, GraphFile)); err == nil {
		return errors.New(errors.ErrCodeFileWriteFailed,
			fmt.Sprintf("state directory %s already holds a sprint", s.dir)).
			WithSuggestions("use a fresh --state-dir or back up and remove the existing files")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "create state directory", err)
	}

	lock, err := AcquireLock(ctx, s.lockPath(), s.guardrails.LockTimeout, s.guardrails.LockStaleAfter)
	if err != nil {
		return err
	}
	defer lock.Release()

	progress := &graph.Progress{
		SprintID: g.SprintID,
		Status:   "active",
	}
	if len(g.Milestones) > 0 {
		progress.CurrentMilestoneID = g.Milestones[0].ID
	}
	progress.Recount(g)

	st := &State{Graph: g, Progress: progress}
	if err := s.writeState(st); err != nil {
		return err
	}

	// Seed editable config files so operators have something to tune.
	guardrailsPath := filepath.Join(s.dir, GuardrailsFile)
	if _, err := os.Stat(guardrailsPath); os.IsNotExist(err) {
		if err := config.SaveGuardrails(s.guardrails, guardrailsPath); err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, "seed guardrails", err)
		}
	}
	stackPath := filepath.Join(s.dir, StackFile)
	if _, err := os.Stat(stackPath); os.IsNotExist(err) {
		if err := config.SaveStack(config.Stack{}, stackPath); err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, "seed approved stack", err)
		}
	}

	s.logger.Info("sprint initialized", "sprint_id", g.SprintID, "tasks", len(g.Tasks), "milestones", len(g.Milestones))
	return nil
}

// AtomicUpdate applies mutation inside the store's transaction: exclusive
// lock, backup, mutate in memory, re-validate every invariant, then write to
// temporary paths and atomically replace the originals. A validation failure
// surfaces the precise violation; a write failure restores the just-created
// backup and reports state corruption. Partial writes are never observable
// by other readers.
func (s *Store) AtomicUpdate(ctx context.Context, mutation func(*State) error) error {
	lock, err := AcquireLock(ctx, s.lockPath(), s.guardrails.LockTimeout, s.guardrails.LockStaleAfter)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := s.Load()
	if err != nil {
		return err
	}

	snap, err := s.CreateBackup()
	if err != nil {
		return err
	}

	if err := mutation(st); err != nil {
		return err
	}

	st.Progress.Recount(st.Graph)
	if err := st.Validate(); err != nil {
		return err
	}

	if err := s.writeState(st); err != nil {
		s.logger.WithError(err).Error("state write failed, restoring backup", "backup", snap.ID)
		if rerr := s.Restore(snap.ID); rerr != nil {
			return errors.Wrap(errors.ErrCodeStateCorruption,
				fmt.Sprintf("state write failed and restoring backup %s also failed", snap.ID), rerr)
		}
		return errors.Wrap(errors.ErrCodeStateCorruption,
			fmt.Sprintf("state write failed, files restored from backup %s", snap.ID), err)
	}

	s.rotateBackups(s.guardrails.BackupsToKeep, snap.ID)
	return nil
}

// writeState persists the three JSON state files
func (s *Store) writeState(st *State) error {
	files := []struct {
		name string
		v    any
	}{
		{GraphFile, st.Graph},
		{ProgressFile, st.Progress},
		{DeferredFile, st.Deferred},
	}

	for _, f := range files {
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return errors.Wrap(errors.ErrCodeFileMarshal, fmt.Sprintf("marshal %s", f.name), err)
		}
		data = append(data, '\n')
		if err := s.writeFile(filepath.Join(s.dir, f.name), data); err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("write %s", f.name), err)
		}
	}
	return nil
}

// readStrict decodes one JSON state file, rejecting unknown fields
func (s *Store) readStrict(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeFileNotFound, fmt.Sprintf("%s not found in %s", name, s.dir)).
				WithSuggestions("run 'sprintctl init' to seed a sprint in this directory")
		}
		return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("read %s", name), err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaInvalid, fmt.Sprintf("%s is malformed", name), err)
	}
	return nil
}

// atomicWriteFile writes data to a temporary file in the target's directory
// and renames it over the destination.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

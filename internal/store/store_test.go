package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

func testGraph() *graph.TaskGraph {
	return &graph.TaskGraph{
		SprintID: "sprint-1",
		Strategy: "milestone",
		Tasks: []graph.Task{
			{ID: "task-a", Title: "Scaffold", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-b", Title: "Storage", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1", DependsOn: []string{"task-a"}},
			{ID: "task-v1", Title: "Validate m1", Type: graph.TypeValidation, Status: graph.TaskPending, MilestoneID: "m1", DependsOn: []string{"task-a", "task-b"}},
		},
		Milestones: []graph.Milestone{
			{ID: "m1", Title: "Foundation", TaskIDs: []string{"task-a", "task-b", "task-v1"}, Status: graph.MilestoneNotStarted},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background(), testGraph()))
	return s
}

func readStateFiles(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for _, name := range []string{GraphFile, ProgressFile, DeferredFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		out[name] = data
	}
	return out
}

func TestInitAndLoad(t *testing.T) {
	s := openTestStore(t)

	st, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, "sprint-1", st.Graph.SprintID)
	assert.Equal(t, "m1", st.Progress.CurrentMilestoneID)
	assert.Equal(t, 3, st.Progress.Total)
	assert.Equal(t, 0, st.Progress.Completed)
	assert.FileExists(t, filepath.Join(s.Dir(), GuardrailsFile))
	assert.FileExists(t, filepath.Join(s.Dir(), StackFile))
}

func TestInit_RefusesExistingSprint(t *testing.T) {
	s := openTestStore(t)

	err := s.Init(context.Background(), testGraph())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds a sprint")
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	s := openTestStore(t)

	path := filepath.Join(s.Dir(), GraphFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["surprise"] = true
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = s.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSchemaInvalid, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "surprise")
}

func TestLoad_MissingGraphSuggestsInit(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "sprintctl init")
}

func TestLoad_ReportsCycle(t *testing.T) {
	s := openTestStore(t)

	st, err := s.Load()
	require.NoError(t, err)
	st.Graph.Tasks[0].DependsOn = []string{"task-b"}
	data, err := json.MarshalIndent(st.Graph, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), GraphFile), data, 0o644))

	_, err = s.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCycleDetected, errors.CodeOf(err))
}

func TestAtomicUpdate_PersistsMutation(t *testing.T) {
	s := openTestStore(t)

	err := s.AtomicUpdate(context.Background(), func(st *State) error {
		task, ok := st.Graph.Task("task-a")
		require.True(t, ok)
		task.Status = graph.TaskCompleted
		st.Progress.AppendHistory(graph.EventTaskCompleted, "task-a", "m1", "")
		return nil
	})
	require.NoError(t, err)

	st, err := s.Load()
	require.NoError(t, err)
	task, _ := st.Graph.Task("task-a")
	assert.Equal(t, graph.TaskCompleted, task.Status)
	assert.Equal(t, 1, st.Progress.Completed)
	require.Len(t, st.Progress.History, 1)
	assert.NotEmpty(t, st.Progress.History[0].ID)

	// The update left a snapshot behind.
	snaps, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestAtomicUpdate_ValidationFailureLeavesFilesUntouched(t *testing.T) {
	s := openTestStore(t)
	before := readStateFiles(t, s.Dir())

	err := s.AtomicUpdate(context.Background(), func(st *State) error {
		st.Graph.Tasks[0].DependsOn = []string{"task-ghost"}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSchemaInvalid, errors.CodeOf(err))

	after := readStateFiles(t, s.Dir())
	for name, want := range before {
		assert.Equal(t, want, after[name], "file %s changed", name)
	}
}

func TestAtomicUpdate_WriteFailureRestoresBackup(t *testing.T) {
	s := openTestStore(t)
	before := readStateFiles(t, s.Dir())

	calls := 0
	s.writeFile = func(path string, data []byte) error {
		calls++
		if calls == 1 {
			// First file lands, the second write blows up mid-transaction.
			return atomicWriteFile(path, data)
		}
		return fmt.Errorf("simulated disk failure")
	}

	err := s.AtomicUpdate(context.Background(), func(st *State) error {
		task, _ := st.Graph.Task("task-a")
		task.Status = graph.TaskCompleted
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStateCorruption, errors.CodeOf(err))

	after := readStateFiles(t, s.Dir())
	for name, want := range before {
		assert.Equal(t, hashBytes(want), hashBytes(after[name]), "file %s not restored", name)
	}
}

func TestAtomicUpdate_LockContention(t *testing.T) {
	s := openTestStore(t)
	s.guardrails.LockTimeout = 200 * time.Millisecond
	s.guardrails.LockStaleAfter = time.Hour

	lock, err := AcquireLock(context.Background(), s.lockPath(), time.Second, time.Hour)
	require.NoError(t, err)
	defer lock.Release()

	err = s.AtomicUpdate(context.Background(), func(st *State) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLockContention, errors.CodeOf(err))
}

func TestAcquireLock_BreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)
	require.NoError(t, os.WriteFile(path, []byte("pid=1 acquired=long-ago\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	lock, err := AcquireLock(context.Background(), path, 500*time.Millisecond, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestTakeOverStaleLock_SingleWinner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)

	stamp := time.Now().Add(-time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, os.WriteFile(path, []byte("pid=1 acquired="+stamp+"\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.True(t, takeOverStaleLock(path, time.Minute))
	assert.NoFileExists(t, path)

	// The lock is gone; a second contender cannot claim it again.
	assert.False(t, takeOverStaleLock(path, time.Minute))
}

func TestTakeOverStaleLock_HandsBackFreshLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)

	// The file looks abandoned by mtime, but its record says the holder
	// acquired it just now: the lock must survive the takeover attempt.
	stamp := time.Now().Format(time.RFC3339Nano)
	require.NoError(t, os.WriteFile(path, []byte("pid=1 acquired="+stamp+"\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.False(t, takeOverStaleLock(path, time.Minute))
	assert.FileExists(t, path)
}

func TestAcquireLock_ReleasedOnEveryPath(t *testing.T) {
	s := openTestStore(t)

	// Even a failing mutation releases the lock for the next invocation.
	_ = s.AtomicUpdate(context.Background(), func(st *State) error {
		return fmt.Errorf("mutation rejected")
	})

	assert.NoFileExists(t, s.lockPath())
}

func TestBackupRestore_ByID(t *testing.T) {
	s := openTestStore(t)
	original := readStateFiles(t, s.Dir())

	require.NoError(t, s.AtomicUpdate(context.Background(), func(st *State) error {
		task, _ := st.Graph.Task("task-a")
		task.Status = graph.TaskCompleted
		return nil
	}))

	snaps, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	require.NoError(t, s.Restore(snaps[0].ID))

	restored := readStateFiles(t, s.Dir())
	for name, want := range original {
		assert.Equal(t, want, restored[name], "file %s differs after restore", name)
	}
}

func TestRestore_DetectsTamperedBackup(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.CreateBackup()
	require.NoError(t, err)

	tampered := filepath.Join(s.backupDir(), snap.ID, GraphFile)
	require.NoError(t, os.WriteFile(tampered, []byte("{}"), 0o644))

	err = s.Restore(snap.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBackupHashMismatch, errors.CodeOf(err))
}

func TestRestore_UnknownID(t *testing.T) {
	s := openTestStore(t)

	err := s.Restore("20000101T000000.000000000")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBackupNotFound, errors.CodeOf(err))
}

func TestBackupRotation_KeepsNewest(t *testing.T) {
	s := openTestStore(t)
	s.guardrails.BackupsToKeep = 2

	for i := 0; i < 4; i++ {
		require.NoError(t, s.AtomicUpdate(context.Background(), func(st *State) error {
			st.Progress.AppendHistory("tick", "", "", fmt.Sprintf("update %d", i))
			return nil
		}))
	}

	snaps, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

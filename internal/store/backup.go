package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
)

// snapshotIDLayout sorts lexically in creation order
const snapshotIDLayout = "20060102T150405.000000000"

// manifestName is the per-snapshot integrity manifest
const manifestName = "manifest.json"

// Snapshot is one timestamped full copy of the state files, independently
// restorable by id. Files maps relative file names to blake3 hex digests.
type Snapshot struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Files     map[string]string `json:"files"`
}

// hashBytes computes the blake3 hex digest of data
func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// CreateBackup copies every existing state file into a new timestamped
// snapshot directory and writes a manifest of blake3 digests. It is called
// immediately before any mutating operation.
func (s *Store) CreateBackup() (*Snapshot, error) {
	snap := &Snapshot{
		ID:        time.Now().UTC().Format(snapshotIDLayout),
		CreatedAt: time.Now().UTC(),
		Files:     make(map[string]string),
	}

	dir := filepath.Join(s.backupDir(), snap.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "create backup directory", err)
	}

	for _, name := range stateFileNames {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("back up %s", name), err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("back up %s", name), err)
		}
		snap.Files[name] = hashBytes(data)
	}

	manifest, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileMarshal, "marshal backup manifest", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), manifest, 0o644); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "write backup manifest", err)
	}

	return snap, nil
}

// ListBackups returns all snapshots, oldest first
func (s *Store) ListBackups() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read backups directory", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := s.readManifest(entry.Name())
		if err != nil {
			// A snapshot without a readable manifest is skipped, not fatal.
			s.logger.Warn("skipping unreadable backup", "id", entry.Name(), "error", err)
			continue
		}
		snaps = append(snaps, *snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps, nil
}

// Restore replaces the live state files with the snapshot's copies after
// verifying every file against the manifest digests.
func (s *Store) Restore(id string) error {
	snap, err := s.readManifest(id)
	if err != nil {
		return err
	}

	dir := filepath.Join(s.backupDir(), id)
	contents := make(map[string][]byte, len(snap.Files))
	for name, wantHash := range snap.Files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("read backup copy of %s", name), err)
		}
		if got := hashBytes(data); got != wantHash {
			return errors.New(errors.ErrCodeBackupHashMismatch,
				fmt.Sprintf("backup %s is corrupt", id)).
				WithDetails(fmt.Sprintf("%s: manifest records %s, file hashes to %s", name, wantHash, got))
		}
		contents[name] = data
	}

	for name, data := range contents {
		if err := atomicWriteFile(filepath.Join(s.dir, name), data); err != nil {
			return errors.Wrap(errors.ErrCodeStateCorruption, fmt.Sprintf("restore %s", name), err)
		}
	}

	return nil
}

// rotateBackups trims the snapshot directory to the newest keep entries.
// The snapshot named by exclude (the one taken by the in-flight update) is
// never deleted.
func (s *Store) rotateBackups(keep int, exclude string) {
	if keep <= 0 {
		return
	}
	snaps, err := s.ListBackups()
	if err != nil || len(snaps) <= keep {
		return
	}

	for _, snap := range snaps[:len(snaps)-keep] {
		if snap.ID == exclude {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.backupDir(), snap.ID)); err != nil {
			s.logger.Warn("rotate backup", "id", snap.ID, "error", err)
		}
	}
}

// readManifest loads one snapshot's manifest
func (s *Store) readManifest(id string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.backupDir(), id, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeBackupNotFound, fmt.Sprintf("backup %s not found", id))
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read backup manifest", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "unmarshal backup manifest", err)
	}
	return &snap, nil
}

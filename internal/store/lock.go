package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
)

// lockPollInterval is how often acquisition retries while waiting
const lockPollInterval = 100 * time.Millisecond

// Lock is an exclusive cross-process lock over a state directory. It is a
// plain lock file created with O_EXCL; no repo-resident process exists to
// hold anything longer-lived.
type Lock struct {
	path string
}

// AcquireLock obtains the lock at path, polling until timeout. A leftover
// lock older than staleAfter is treated as the residue of a crashed
// invocation and broken. Contention past the timeout fails fast with a
// LOCK-001 error instead of blocking indefinitely.
func AcquireLock(ctx context.Context, path string, timeout, staleAfter time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d acquired=%s\n", os.Getpid(), time.Now().Format(time.RFC3339Nano))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "write lock file", cerr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "create lock file", err)
		}

		// Break locks abandoned by crashed processes.
		if staleAfter > 0 && takeOverStaleLock(path, staleAfter) {
			continue
		}

		if time.Now().After(deadline) {
			holder := readLockHolder(path)
			e := errors.New(errors.ErrCodeLockContention,
				fmt.Sprintf("state directory is locked (waited %s)", timeout)).
				WithSuggestions("retry after the concurrent sprintctl invocation finishes")
			if holder != "" {
				e = e.WithDetails("held by " + holder)
			}
			return nil, e
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrCodeLockContention, "lock acquisition canceled", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "release lock", err)
	}
	return nil
}

// readLockHolder returns the recorded holder line, if readable
func readLockHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// takeOverStaleLock breaks the lock at path if it was abandoned. The claim
// is an os.Rename, so exactly one contender wins it; a plain stat-then-remove
// could delete a lock re-acquired between the two calls. The winner re-reads
// the recorded acquisition time from the claimed file and hands the lock
// back if it turns out to be live.
func takeOverStaleLock(path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) <= staleAfter {
		return false
	}

	claim := path + ".takeover"
	if err := os.Rename(path, claim); err != nil {
		// Another contender claimed it, or the holder released it.
		return false
	}

	if acquiredAt, ok := lockAcquiredAt(claim); ok && time.Since(acquiredAt) <= staleAfter {
		// Re-acquired between the staleness check and the claim. Link
		// refuses to clobber a lock created at path in the meantime.
		_ = os.Link(claim, path)
		_ = os.Remove(claim)
		return false
	}

	_ = os.Remove(claim)
	return true
}

// lockAcquiredAt parses the acquisition timestamp recorded in a lock file.
// A file without a parseable record counts as abandoned.
func lockAcquiredAt(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	for _, field := range strings.Fields(string(data)) {
		if ts, ok := strings.CutPrefix(field, "acquired="); ok {
			if at, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
				return at, true
			}
		}
	}
	return time.Time{}, false
}

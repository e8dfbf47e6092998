package fileops

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"YubiAge/internal/log"
)

// Artifacts tracks temporary files created while staging a batch: directory
// archives, recipient files and decrypt outputs awaiting their final name.
//
// Every tracked path gets exactly one removal attempt, either through Release
// (per-item artifacts) or through Cleanup (everything still outstanding at the
// end of a batch). Removal is best-effort: failures are logged, never returned.
type Artifacts struct {
	mu       sync.Mutex
	pending  []string
	attempts int
	logger   log.Logger
}

// NewArtifacts creates an empty registry. A nil logger uses the package logger.
func NewArtifacts(logger log.Logger) *Artifacts {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Artifacts{logger: logger}
}

// Track registers path for later removal. Tracking the same path twice is a no-op.
func (a *Artifacts) Track(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pending {
		if p == path {
			return
		}
	}
	a.pending = append(a.pending, path)
}

// Release removes a single tracked path now. Untracked or already released
// paths are ignored so deferred releases are safe on every exit path.
func (a *Artifacts) Release(path string) {
	a.mu.Lock()
	idx := -1
	for i, p := range a.pending {
		if p == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return
	}
	a.pending = append(a.pending[:idx], a.pending[idx+1:]...)
	a.attempts++
	a.mu.Unlock()

	a.remove(path)
}

// Keep stops tracking path without removing it; used once a staged file has
// been renamed to its final name.
func (a *Artifacts) Keep(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, p := range a.pending {
		if p == path {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return
		}
	}
}

// Cleanup removes every path still tracked, in registration order.
func (a *Artifacts) Cleanup() {
	a.mu.Lock()
	paths := a.pending
	a.pending = nil
	a.attempts += len(paths)
	a.mu.Unlock()

	for _, p := range paths {
		a.remove(p)
	}
}

// Pending returns a copy of the paths still awaiting removal.
func (a *Artifacts) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.pending))
	copy(out, a.pending)
	return out
}

// Attempts returns how many removal attempts have been made.
func (a *Artifacts) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func (a *Artifacts) remove(path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		a.logger.Debug("removed temporary file", log.String("path", path))
	case errors.Is(err, fs.ErrNotExist):
		// Already gone: the tool never produced it, or it was renamed.
	default:
		a.logger.Warn("cleanup failed", log.String("path", path), log.Err(err))
	}
}

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
)

var ErrRunLocked = errors.New("another run is in progress")

// runLock keeps runs from overlapping inside the process (cron + API) and
// across processes (serve + a manual `run`).
type runLock struct {
	busy atomic.Bool
	file *flock.Flock
}

func newRunLock(path string) *runLock {
	l := &runLock{}
	if path != "" {
		l.file = flock.New(path)
	}
	return l
}

func (l *runLock) acquire() error {
	if !l.busy.CompareAndSwap(false, true) {
		return ErrRunLocked
	}
	if l.file == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.file.Path()), 0o755); err != nil {
		l.busy.Store(false)
		return fmt.Errorf("run lock dir: %w", err)
	}
	ok, err := l.file.TryLock()
	if err != nil {
		l.busy.Store(false)
		return fmt.Errorf("run lock: %w", err)
	}
	if !ok {
		l.busy.Store(false)
		return ErrRunLocked
	}
	return nil
}

func (l *runLock) release() {
	if l.file != nil {
		_ = l.file.Unlock()
	}
	l.busy.Store(false)
}

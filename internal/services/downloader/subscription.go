package downloader

import (
	"context"
	"sync"

	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"
)

type Progress struct {
	BytesDone  int64
	BytesTotal int64
	State      runtimecache.InstallState
}

type task struct {
	versionID   string
	ctx         context.Context
	cancel      context.CancelFunc
	subscribers int // guarded by Manager.mu
	done        chan struct{}
	err         error // set before done is closed

	progressMu sync.Mutex
	bytesDone  int64
	bytesTotal int64
}

func completedTask(versionID string, err error) *task {
	t := &task{
		versionID: versionID,
		cancel:    func() {},
		done:      make(chan struct{}),
		err:       err,
	}
	close(t.done)
	return t
}

func (t *task) setProgress(done, total int64) {
	t.progressMu.Lock()
	t.bytesDone = done
	t.bytesTotal = total
	t.progressMu.Unlock()
}

func (t *task) progress() (int64, int64) {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()
	return t.bytesDone, t.bytesTotal
}

// Subscription is one caller's handle on a shared download task.
type Subscription struct {
	m    *Manager
	t    *task
	once sync.Once
}

func (s *Subscription) VersionID() string { return s.t.versionID }

// Done is closed once the shared task reaches a terminal result.
func (s *Subscription) Done() <-chan struct{} { return s.t.done }

// Err returns the shared terminal result. Only valid after Done is closed.
func (s *Subscription) Err() error { return s.t.err }

// Wait blocks until the shared task finishes or ctx is done. A ctx error
// detaches this subscriber; the underlying fetch keeps running for any
// remaining ones.
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-s.t.done:
		return s.t.err
	case <-ctx.Done():
		s.Cancel()
		return ctx.Err()
	}
}

// Cancel detaches this subscriber. The underlying fetch is aborted only
// when the last subscriber cancels.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.m.mu.Lock()
		s.t.subscribers--
		last := s.t.subscribers <= 0
		s.m.mu.Unlock()

		if last {
			select {
			case <-s.t.done:
				// already terminal, nothing to abort
			default:
				s.t.cancel()
			}
		}
	})
}

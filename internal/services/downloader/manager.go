package downloader

import (
	"context"
	"sync"

	"github.com/rheldev6-ship-it/integ/internal/registry"
	"github.com/rheldev6-ship-it/integ/internal/services/fetcher"
	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"

	"go.uber.org/zap"
)

// Manager deduplicates downloads per version id: any number of concurrent
// requests for one version share a single underlying fetch, and every
// subscriber observes the identical terminal result. The fetch itself runs
// on the manager's base context, not any single caller's, so one caller
// going away never disrupts the others.
type Manager struct {
	baseCtx context.Context
	store   *runtimecache.Store
	fetcher *fetcher.Fetcher
	logger  *zap.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

func NewManager(baseCtx context.Context, store *runtimecache.Store, f *fetcher.Fetcher, logger *zap.Logger) *Manager {
	return &Manager{
		baseCtx: baseCtx,
		store:   store,
		fetcher: f,
		logger:  logger.Named("downloader"),
		tasks:   make(map[string]*task),
	}
}

// Request attaches to the in-flight download for rel.ID, or starts one. The
// returned subscription must be waited on or cancelled.
func (m *Manager) Request(rel registry.Release) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[rel.ID]; ok {
		t.subscribers++
		m.logger.Debug("attached to existing download",
			zap.String("version_id", rel.ID),
			zap.Int("subscribers", t.subscribers),
		)
		return &Subscription{m: m, t: t}
	}

	if m.store.Has(rel.ID) == runtimecache.StateInstalled {
		return &Subscription{m: m, t: completedTask(rel.ID, nil)}
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	t := &task{
		versionID:   rel.ID,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: 1,
		done:        make(chan struct{}),
	}
	m.tasks[rel.ID] = t

	m.logger.Info("starting download", zap.String("version_id", rel.ID))
	go m.run(t, rel)

	return &Subscription{m: m, t: t}
}

func (m *Manager) run(t *task, rel registry.Release) {
	h, err := m.store.BeginInstall(rel.ID)
	if err != nil {
		m.finish(t, err)
		return
	}

	res, err := m.fetcher.Fetch(t.ctx, rel, h, t.setProgress)
	if err != nil {
		m.store.Discard(h)
		m.finish(t, err)
		return
	}

	declared := runtimecache.Checksum{Digest: rel.Digest, Size: rel.Size}
	m.finish(t, m.store.Commit(h, declared, res.Digest, res.Bytes))
}

// finish publishes the terminal result to every subscriber and retires the
// task, so a later request for the same id starts fresh.
func (m *Manager) finish(t *task, err error) {
	m.mu.Lock()
	delete(m.tasks, t.versionID)
	m.mu.Unlock()

	t.err = err
	close(t.done)
	t.cancel()

	if err != nil {
		m.logger.Warn("download finished with error",
			zap.String("version_id", t.versionID),
			zap.Error(err),
		)
	} else {
		m.logger.Info("download finished", zap.String("version_id", t.versionID))
	}
}

// Progress reports the byte counts of an in-flight download alongside the
// cache state for the id. With no task in flight the counts are zero and
// only the state is meaningful.
func (m *Manager) Progress(versionID string) Progress {
	m.mu.Lock()
	t := m.tasks[versionID]
	m.mu.Unlock()

	p := Progress{State: m.store.Has(versionID)}
	if t != nil {
		p.BytesDone, p.BytesTotal = t.progress()
	}
	return p
}

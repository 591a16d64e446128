package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rheldev6-ship-it/integ/internal/registry"
	"github.com/rheldev6-ship-it/integ/internal/services/downloader"
	"github.com/rheldev6-ship-it/integ/internal/services/fetcher"
	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRegistry struct {
	releases []registry.Release
	calls    atomic.Int32
}

func (f *fakeRegistry) ListVersions(ctx context.Context) ([]registry.Release, error) {
	f.calls.Add(1)
	return f.releases, nil
}

func (f *fakeRegistry) Find(ctx context.Context, versionID string) (registry.Release, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return registry.Release{}, err
	}
	for _, rel := range f.releases {
		if rel.ID == versionID {
			return rel, nil
		}
	}
	return registry.Release{}, fmt.Errorf("%w: %s", registry.ErrNotFound, versionID)
}

type fakeProbe struct {
	path string
}

func (f *fakeProbe) SystemRuntime() (string, bool) {
	return f.path, f.path != ""
}

type fixture struct {
	store    *runtimecache.Store
	registry *fakeRegistry
	probe    *fakeProbe
	resolver *Resolver
	assets   atomic.Int32
	srv      *httptest.Server
}

func newFixture(t *testing.T, payload []byte) *fixture {
	t.Helper()
	fx := &fixture{
		registry: &fakeRegistry{},
		probe:    &fakeProbe{},
	}

	fx.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.assets.Add(1)
		w.Write(payload)
	}))
	t.Cleanup(fx.srv.Close)

	store, err := runtimecache.NewStore(
		filepath.Join(t.TempDir(), "runtimes"),
		filepath.Join(t.TempDir(), "staging"),
		zap.NewNop(),
	)
	require.NoError(t, err)
	fx.store = store

	f := fetcher.New(zap.NewNop(), fetcher.Options{
		Retries:        1,
		InitialBackoff: time.Millisecond,
		AttemptTimeout: 10 * time.Second,
	})
	dl := downloader.NewManager(context.Background(), store, f, zap.NewNop())
	fx.resolver = New(store, fx.registry, dl, fx.probe, zap.NewNop())
	return fx
}

func (fx *fixture) addRelease(id string, size int64) {
	fx.registry.releases = append(fx.registry.releases, registry.Release{
		ID:       id,
		AssetURL: fx.srv.URL + "/" + id + ".bin",
		Size:     size,
	})
}

func installLocal(t *testing.T, store *runtimecache.Store, id string) {
	t.Helper()
	h, err := store.BeginInstall(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.Dir(), "runtime.bin"), []byte("x"), 0o644))
	require.NoError(t, store.Commit(h, runtimecache.Checksum{Size: 1}, "blake3:aa", 1))
}

func TestResolveInstalledIssuesNoNetworkCalls(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	installLocal(t, fx.store, "ge-8.26")

	res := fx.resolver.Resolve(context.Background(), "ge-8.26")
	defer res.Release()

	require.Equal(t, OutcomeRequested, res.Outcome)
	assert.Equal(t, "ge-8.26", res.VersionID)
	assert.Equal(t, int32(0), fx.registry.calls.Load())
	assert.Equal(t, int32(0), fx.assets.Load())
}

func TestResolveHappyPathInstallsAndSetsCurrent(t *testing.T) {
	payload := []byte("runtime bits")
	fx := newFixture(t, payload)
	fx.addRelease("ge-8.26", int64(len(payload)))

	res := fx.resolver.Resolve(context.Background(), "ge-8.26")
	defer res.Release()

	require.Equal(t, OutcomeRequested, res.Outcome)
	assert.DirExists(t, res.Path)

	entries := fx.store.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "ge-8.26", entries[0].VersionID)
	assert.True(t, entries[0].IsCurrent)
}

func TestResolveNotInRegistryFallsBackToSystem(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	fx.probe.path = "/usr/share/steam/compatibilitytools.d"

	res := fx.resolver.Resolve(context.Background(), "ge-8.26")

	require.Equal(t, OutcomeSystemFallback, res.Outcome)
	assert.Equal(t, fx.probe.path, res.Path)
	assert.Equal(t, int32(0), fx.assets.Load(), "no fetch attempt for a version the registry does not have")
}

func TestResolveNotInRegistryPrefersCachedAlternate(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	fx.probe.path = "/usr/share/steam/compatibilitytools.d"
	installLocal(t, fx.store, "ge-8.30")

	res := fx.resolver.Resolve(context.Background(), "ge-9.99")
	defer res.Release()

	require.Equal(t, OutcomeCachedAlternate, res.Outcome)
	assert.Equal(t, "ge-8.30", res.VersionID)
}

func TestResolveFetchFailureFallsThrough(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	fx.srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	fx.addRelease("ge-8.26", 10)
	installLocal(t, fx.store, "ge-8.30")

	res := fx.resolver.Resolve(context.Background(), "ge-8.26")
	defer res.Release()

	require.Equal(t, OutcomeCachedAlternate, res.Outcome)
	assert.Equal(t, "ge-8.30", res.VersionID)
}

func TestResolveAllTiersExhausted(t *testing.T) {
	fx := newFixture(t, []byte("unused"))

	res := fx.resolver.Resolve(context.Background(), "ge-8.26")

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Reason, ErrRuntimeUnavailable)
}

func TestResolveCancelled(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	fx.addRelease("ge-8.26", 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := fx.resolver.Resolve(ctx, "ge-8.26")
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Reason, context.Canceled)
	assert.NotEqual(t, runtimecache.StateInstalled, fx.store.Has("ge-8.26"))
}

func TestResolveSystemSentinelSkipsRegistry(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	fx.probe.path = "/opt/wine"

	res := fx.resolver.Resolve(context.Background(), RequirementSystem)

	require.Equal(t, OutcomeSystemFallback, res.Outcome)
	assert.Equal(t, int32(0), fx.registry.calls.Load())
}

func TestConcurrentResolveSharesOneFetch(t *testing.T) {
	payload := []byte("contended runtime")
	fx := newFixture(t, payload)
	fx.addRelease("ge-8.30", int64(len(payload)))

	const n = 2
	results := make([]Resolution, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fx.resolver.Resolve(context.Background(), "ge-8.30")
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.Equal(t, OutcomeRequested, res.Outcome)
		assert.Equal(t, results[0].Path, res.Path)
		res.Release()
	}
	assert.Equal(t, int32(1), fx.assets.Load(), "two concurrent resolves must share one fetch")
}

func TestResolvedVersionCannotBeEvictedUntilReleased(t *testing.T) {
	fx := newFixture(t, []byte("unused"))
	installLocal(t, fx.store, "ge-8.26")

	res := fx.resolver.Resolve(context.Background(), "ge-8.26")
	require.Equal(t, OutcomeRequested, res.Outcome)

	assert.ErrorIs(t, fx.store.Evict("ge-8.26"), runtimecache.ErrBusy)
	res.Release()
	assert.NoError(t, fx.store.Evict("ge-8.26"))
}

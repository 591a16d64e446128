package resolver

import (
	"context"
	"errors"

	"github.com/rheldev6-ship-it/integ/internal/registry"
	"github.com/rheldev6-ship-it/integ/internal/services/downloader"
	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"
	"github.com/rheldev6-ship-it/integ/internal/services/sysprobe"

	"go.uber.org/zap"
)

// ErrRuntimeUnavailable means every fallback tier was exhausted without
// producing a usable runtime path.
var ErrRuntimeUnavailable = errors.New("no usable runtime available")

type Outcome string

const (
	// OutcomeRequested: the exact requested version, from cache or freshly
	// installed.
	OutcomeRequested Outcome = "requested"
	// OutcomeCachedAlternate: a different cached version was substituted.
	OutcomeCachedAlternate Outcome = "cached_alternate"
	// OutcomeSystemFallback: an unmanaged host runtime was substituted.
	OutcomeSystemFallback Outcome = "system_fallback"
	OutcomeFailed          Outcome = "failed"
)

// Resolution is the tagged result of a resolve call. For managed versions
// the caller holds an active-user reference on the cache entry until
// Release is called; eviction is refused in between.
type Resolution struct {
	Outcome   Outcome
	VersionID string
	Path      string
	Reason    error

	release func()
}

func (r Resolution) Release() {
	if r.release != nil {
		r.release()
	}
}

// Resolver answers "give me a usable runtime for requirement R", composing
// the cache store, registry, download coordinator, and system probe behind
// the fallback policy.
type Resolver struct {
	store  *runtimecache.Store
	reg    registry.Client
	dl     *downloader.Manager
	probe  sysprobe.Probe
	policy Policy
	logger *zap.Logger
}

func New(store *runtimecache.Store, reg registry.Client, dl *downloader.Manager, probe sysprobe.Probe, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:  store,
		reg:    reg,
		dl:     dl,
		probe:  probe,
		logger: logger.Named("resolver"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, requirement string) Resolution {
	for _, tier := range r.policy.Decide(requirement) {
		if err := ctx.Err(); err != nil {
			return Resolution{Outcome: OutcomeFailed, Reason: err}
		}

		switch tier {
		case TierInstalled:
			if res, ok := r.useInstalled(requirement); ok {
				return res
			}

		case TierFetch:
			res, done := r.fetchExact(ctx, requirement)
			if done {
				return res
			}

		case TierCachedAlternate:
			if e, ok := r.store.MostRecent(requirement); ok {
				path, err := r.store.Acquire(e.VersionID)
				if err != nil {
					continue
				}
				r.logger.Warn("substituting cached runtime",
					zap.String("requested", requirement),
					zap.String("substituted", e.VersionID),
				)
				return Resolution{
					Outcome:   OutcomeCachedAlternate,
					VersionID: e.VersionID,
					Path:      path,
					release:   func() { r.store.Release(e.VersionID) },
				}
			}

		case TierSystem:
			if path, ok := r.probe.SystemRuntime(); ok {
				r.logger.Warn("falling back to system runtime",
					zap.String("requested", requirement),
					zap.String("path", path),
				)
				return Resolution{Outcome: OutcomeSystemFallback, Path: path}
			}
		}
	}

	return Resolution{Outcome: OutcomeFailed, Reason: ErrRuntimeUnavailable}
}

func (r *Resolver) useInstalled(versionID string) (Resolution, bool) {
	path, err := r.store.Acquire(versionID)
	if err != nil {
		return Resolution{}, false
	}
	return Resolution{
		Outcome:   OutcomeRequested,
		VersionID: versionID,
		Path:      path,
		release:   func() { r.store.Release(versionID) },
	}, true
}

// fetchExact tries tier 2. The boolean is true when the resolution is
// final; false means fall through to the remaining tiers. A version absent
// from the registry is never downloaded, and a cancelled context is final
// without corrupting cache state.
func (r *Resolver) fetchExact(ctx context.Context, requirement string) (Resolution, bool) {
	rel, err := r.reg.Find(ctx, requirement)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{Outcome: OutcomeFailed, Reason: ctxErr}, true
		}
		if errors.Is(err, registry.ErrNotFound) {
			r.logger.Info("requested version not in registry",
				zap.String("version_id", requirement))
		} else {
			r.logger.Warn("registry lookup failed", zap.Error(err))
		}
		return Resolution{}, false
	}

	sub := r.dl.Request(rel)
	if err := sub.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{Outcome: OutcomeFailed, Reason: ctxErr}, true
		}
		r.logger.Warn("fetch failed, trying fallbacks",
			zap.String("version_id", requirement),
			zap.Error(err),
		)
		return Resolution{}, false
	}

	path, err := r.store.Acquire(rel.ID)
	if err != nil {
		return Resolution{}, false
	}
	if err := r.store.SetCurrent(rel.ID); err != nil {
		r.logger.Warn("failed to update current pointer", zap.Error(err))
	}
	return Resolution{
		Outcome:   OutcomeRequested,
		VersionID: rel.ID,
		Path:      path,
		release:   func() { r.store.Release(rel.ID) },
	}, true
}

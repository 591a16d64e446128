package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rheldev6-ship-it/integ/internal/registry"
	"github.com/rheldev6-ship-it/integ/internal/services/runtimecache"
	"github.com/rheldev6-ship-it/integ/internal/utils/hashutil"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	// ErrAssetNotFound is terminal: the registry index pointed at an asset
	// the mirror no longer serves.
	ErrAssetNotFound = errors.New("runtime asset not found")
)

// ProgressFn receives byte counts as the stream advances. bytesTotal is -1
// when the server does not declare a length.
type ProgressFn func(bytesDone, bytesTotal int64)

type Options struct {
	Retries        int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// Result carries what the cache store needs to validate a fetched payload.
type Result struct {
	Digest string
	Bytes  int64
}

// Fetcher streams one release asset into a staging directory, hashing
// incrementally. Transient failures (connection errors, timeouts, 5xx) are
// retried with bounded exponential backoff; 404s, disk errors, and digest
// setup problems surface immediately.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
	opts   Options
}

func New(logger *zap.Logger, opts Options) *Fetcher {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Minute
	}

	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 60 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   60 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				IdleConnTimeout:       60 * time.Second,
			},
		},
		logger: logger.Named("fetcher"),
		opts:   opts,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rel registry.Release, h *runtimecache.StagingHandle, progress ProgressFn) (Result, error) {
	assetPath := filepath.Join(h.Dir(), assetName(rel))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialBackoff

	var res Result
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			f.logger.Info("retrying fetch",
				zap.String("version_id", rel.ID),
				zap.Int("attempt", attempt),
			)
		}

		var err error
		res, err = f.fetchOnce(ctx, rel, assetPath, progress)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(f.opts.Retries-1)), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}

	if err := unpackIfArchive(assetPath, h.Dir()); err != nil {
		return Result{}, fmt.Errorf("failed to unpack asset: %w", err)
	}

	return res, nil
}

// fetchOnce runs a single attempt. Any partial file from a previous attempt
// is truncated first; unverified partial data is never resumed.
func (f *Fetcher) fetchOnce(ctx context.Context, rel registry.Release, assetPath string, progress ProgressFn) (Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rel.AssetURL, nil)
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, backoff.Permanent(ctx.Err())
		}
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrAssetNotFound, rel.AssetURL))
	case resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("download failed with status %d", resp.StatusCode)
	default:
		return Result{}, backoff.Permanent(fmt.Errorf("download failed with status %d", resp.StatusCode))
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 && rel.Size > 0 {
		totalSize = rel.Size
	}

	declared := rel.Digest
	if declared == "" {
		// No declared digest; hash anyway so the install record carries one.
		declared = hashutil.AlgoBlake3 + ":"
	}
	hasher, err := hashutil.NewHasher(declared)
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}

	fd, err := os.OpenFile(assetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("failed to open staging file: %w", err))
	}
	defer fd.Close()

	var done int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := hasher.Write(buf[:n]); werr != nil {
				return Result{}, backoff.Permanent(fmt.Errorf("hash write failed: %w", werr))
			}
			if _, werr := fd.Write(buf[:n]); werr != nil {
				return Result{}, backoff.Permanent(fmt.Errorf("write failed: %w", werr))
			}
			done += int64(n)
			if progress != nil {
				progress(done, totalSize)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return Result{}, backoff.Permanent(ctx.Err())
			}
			return Result{}, fmt.Errorf("read failed: %w", rerr)
		}
	}

	if err := fd.Sync(); err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("sync failed: %w", err))
	}

	return Result{
		Digest: hashutil.FormatDigest(declared, hasher),
		Bytes:  done,
	}, nil
}

func assetName(rel registry.Release) string {
	if u, err := url.Parse(rel.AssetURL); err == nil {
		if base := filepath.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return rel.ID + ".tar.gz"
}

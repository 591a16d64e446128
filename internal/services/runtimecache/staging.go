package runtimecache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StagingHandle names the temporary directory an in-progress install writes
// into. Nothing under Dir is visible to lookups until Commit succeeds.
type StagingHandle struct {
	versionID string
	dir       string
	token     string
}

func (h *StagingHandle) VersionID() string { return h.versionID }
func (h *StagingHandle) Dir() string       { return h.dir }

// BeginInstall allocates a staging directory for a version. At most one
// staging directory exists per id; a second call while one is open fails
// with ErrAlreadyInstalling. Callers normally reach this through the
// download coordinator, which attaches to the existing task instead.
func (s *Store) BeginInstall(versionID string) (*StagingHandle, error) {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case StateStaging, StateVerifying:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInstalling, versionID)
	case StateInstalled:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInstalled, versionID)
	}

	token := uuid.NewString()
	dir := filepath.Join(s.stagingRoot, versionID+"-"+token)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	h := &StagingHandle{versionID: versionID, dir: dir, token: token}
	v.state = StateStaging
	v.staging = h

	s.logger.Debug("staging install",
		zap.String("version_id", versionID),
		zap.String("staging_dir", dir),
	)
	return h, nil
}

// Commit validates the fetched payload against the declared checksum and
// atomically renames the staging directory into place. On a mismatch the
// staging content is discarded and the version is marked Failed.
func (s *Store) Commit(h *StagingHandle, declared Checksum, gotDigest string, gotBytes int64) error {
	v := s.track(h.versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.staging != h {
		return fmt.Errorf("stale staging handle for %s", h.versionID)
	}
	v.state = StateVerifying

	if err := verify(declared, gotDigest, gotBytes); err != nil {
		s.discardLocked(v, h)
		return err
	}

	rec := record{
		VersionID:   h.versionID,
		Digest:      gotDigest,
		Size:        gotBytes,
		InstalledAt: time.Now().UTC(),
	}
	if err := writeRecord(h.dir, rec); err != nil {
		s.discardLocked(v, h)
		return fmt.Errorf("failed to write install record: %w", err)
	}

	if err := os.Rename(h.dir, s.installDir(h.versionID)); err != nil {
		s.discardLocked(v, h)
		return fmt.Errorf("failed to commit install: %w", err)
	}

	v.state = StateInstalled
	v.digest = gotDigest
	v.installedAt = rec.InstalledAt
	v.staging = nil

	s.logger.Info("installed runtime version",
		zap.String("version_id", h.versionID),
		zap.String("digest", gotDigest),
	)
	return nil
}

// Discard drops an open staging directory, leaving the version Failed. Used
// on fetch failure and on cancellation.
func (s *Store) Discard(h *StagingHandle) {
	v := s.track(h.versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.staging != h {
		return
	}
	s.discardLocked(v, h)
}

func (s *Store) discardLocked(v *version, h *StagingHandle) {
	if err := os.RemoveAll(h.dir); err != nil {
		s.logger.Warn("failed to remove staging directory",
			zap.String("version_id", h.versionID),
			zap.Error(err),
		)
	}
	v.state = StateFailed
	v.staging = nil
}

func verify(declared Checksum, gotDigest string, gotBytes int64) error {
	if declared.Digest != "" {
		if gotDigest != declared.Digest {
			return fmt.Errorf("%w: digest %s does not match declared %s",
				ErrIntegrity, gotDigest, declared.Digest)
		}
		return nil
	}
	if declared.Size > 0 && gotBytes != declared.Size {
		return fmt.Errorf("%w: size %d does not match declared %d",
			ErrIntegrity, gotBytes, declared.Size)
	}
	return nil
}

package runtimecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type InstallState string

const (
	StateMissing   InstallState = "missing"
	StateStaging   InstallState = "staging"
	StateVerifying InstallState = "verifying"
	StateInstalled InstallState = "installed"
	StateFailed    InstallState = "failed"
)

var (
	ErrAlreadyInstalling = errors.New("an install is already in progress for this version")
	ErrAlreadyInstalled  = errors.New("runtime version is already installed")
	ErrNotInstalled      = errors.New("runtime version is not installed")
	ErrIntegrity         = errors.New("integrity check failed")
	ErrBusy              = errors.New("runtime version is in use")
)

const currentFile = "current"

// Checksum is the integrity value the registry declares for a release. When
// Digest is empty the declared Size is the only check available.
type Checksum struct {
	Digest string
	Size   int64
}

// Entry is the caller-facing view of one cached version.
type Entry struct {
	VersionID   string
	Path        string
	State       InstallState
	InstalledAt time.Time
	IsCurrent   bool
}

type version struct {
	mu          sync.Mutex // serializes state transitions for this id
	state       InstallState
	digest      string
	installedAt time.Time
	refs        int
	staging     *StagingHandle
}

// Store is the on-disk registry of installed runtime versions. One
// subdirectory of root per installed version, a separate staging root for
// in-progress installs, and a "current" pointer file.
//
// All locking is in-process only; sharing the cache root between processes
// is not supported.
type Store struct {
	root        string
	stagingRoot string
	logger      *zap.Logger

	mu       sync.Mutex // guards versions map and current pointer
	versions map[string]*version
	current  string
}

func NewStore(root, stagingRoot string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}

	s := &Store{
		root:        root,
		stagingRoot: stagingRoot,
		logger:      logger.Named("runtime_cache"),
		versions:    make(map[string]*version),
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	return s, nil
}

// track returns the tracked state for an id, creating it as Missing on
// first reference.
func (s *Store) track(versionID string) *version {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[versionID]
	if !ok {
		v = &version{state: StateMissing}
		s.versions[versionID] = v
	}
	return v
}

func (s *Store) Has(versionID string) InstallState {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Path returns the installed directory for a version. Valid only in the
// Installed state.
func (s *Store) Path(versionID string) (string, error) {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateInstalled {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, versionID)
	}
	return s.installDir(versionID), nil
}

// Acquire marks a version as actively used and returns its path. Every
// Acquire must be paired with a Release; eviction is refused while the
// count is above zero.
func (s *Store) Acquire(versionID string) (string, error) {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateInstalled {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, versionID)
	}
	v.refs++
	return s.installDir(versionID), nil
}

func (s *Store) Release(versionID string) {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.refs > 0 {
		v.refs--
	}
}

func (s *Store) ActiveUsers(versionID string) int {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refs
}

// Evict removes an installed version's directory. Fails with ErrBusy while
// the version has active users, and clears the current pointer if it named
// this version.
func (s *Store) Evict(versionID string) error {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateInstalled {
		return fmt.Errorf("%w: %s", ErrNotInstalled, versionID)
	}
	if v.refs > 0 {
		return fmt.Errorf("%w: %s has %d active users", ErrBusy, versionID, v.refs)
	}

	if err := os.RemoveAll(s.installDir(versionID)); err != nil {
		return fmt.Errorf("failed to remove version directory: %w", err)
	}
	v.state = StateMissing
	v.digest = ""
	v.installedAt = time.Time{}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == versionID {
		s.current = ""
		if err := s.writeCurrent(""); err != nil {
			s.logger.Warn("failed to clear current pointer", zap.Error(err))
		}
	}

	s.logger.Info("evicted runtime version", zap.String("version_id", versionID))
	return nil
}

// SetCurrent points the cache at an installed version. The pointer is never
// allowed to name anything that is not Installed.
func (s *Store) SetCurrent(versionID string) error {
	v := s.track(versionID)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateInstalled {
		return fmt.Errorf("%w: %s", ErrNotInstalled, versionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = versionID
	if err := s.writeCurrent(versionID); err != nil {
		return fmt.Errorf("failed to persist current pointer: %w", err)
	}
	return nil
}

func (s *Store) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

// List returns all tracked versions that are installed, most recently
// installed first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	ids := make([]string, 0, len(s.versions))
	for id := range s.versions {
		ids = append(ids, id)
	}
	current := s.current
	s.mu.Unlock()

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		v := s.track(id)
		v.mu.Lock()
		if v.state == StateInstalled {
			entries = append(entries, Entry{
				VersionID:   id,
				Path:        s.installDir(id),
				State:       v.state,
				InstalledAt: v.installedAt,
				IsCurrent:   id == current,
			})
		}
		v.mu.Unlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].InstalledAt.After(entries[j].InstalledAt)
	})
	return entries
}

// MostRecent returns the most recently installed version other than the
// excluded id, preferring the current pointer when it qualifies.
func (s *Store) MostRecent(excludeID string) (Entry, bool) {
	entries := s.List()
	for _, e := range entries {
		if e.VersionID != excludeID && e.IsCurrent {
			return e, true
		}
	}
	for _, e := range entries {
		if e.VersionID != excludeID {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Store) installDir(versionID string) string {
	return filepath.Join(s.root, versionID)
}

func (s *Store) writeCurrent(versionID string) error {
	path := filepath.Join(s.root, currentFile)
	if versionID == "" {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, []byte(versionID+"\n"), 0o644)
}

// recover rebuilds in-memory state from disk at startup. Committed installs
// are trusted via their metadata record, anything in the staging root is an
// abandoned download from a prior crash and is deleted, and a current
// pointer naming a non-installed version is cleared.
func (s *Store) recover() error {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to read cache root: %w", err)
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id := d.Name()

		rec, err := readRecord(s.installDir(id))
		if err != nil {
			// No trustworthy record means the directory was never
			// committed. Remove it rather than expose partial state.
			s.logger.Warn("removing cache directory without a valid record",
				zap.String("version_id", id),
				zap.Error(err),
			)
			if rmErr := os.RemoveAll(s.installDir(id)); rmErr != nil {
				return fmt.Errorf("failed to remove invalid cache directory: %w", rmErr)
			}
			continue
		}

		s.versions[id] = &version{
			state:       StateInstalled,
			digest:      rec.Digest,
			installedAt: rec.InstalledAt,
		}
	}

	if err := s.cleanStaging(); err != nil {
		return err
	}

	raw, err := os.ReadFile(filepath.Join(s.root, currentFile))
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if v, ok := s.versions[id]; ok && v.state == StateInstalled {
			s.current = id
		} else if err := s.writeCurrent(""); err != nil {
			s.logger.Warn("failed to clear dangling current pointer", zap.Error(err))
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read current pointer: %w", err)
	}

	return nil
}

func (s *Store) cleanStaging() error {
	leftovers, err := os.ReadDir(s.stagingRoot)
	if err != nil {
		return fmt.Errorf("failed to read staging root: %w", err)
	}

	var g errgroup.Group
	for _, d := range leftovers {
		name := d.Name()
		g.Go(func() error {
			s.logger.Info("discarding abandoned staging directory", zap.String("name", name))
			return os.RemoveAll(filepath.Join(s.stagingRoot, name))
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to clean staging root: %w", err)
	}
	return nil
}

package runtimecache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const recordFile = ".integ-runtime"

// record is the small per-version metadata file written inside a version
// directory at commit time. Its presence is what lets a restart trust an
// already-installed version without re-downloading.
type record struct {
	VersionID   string    `msgpack:"version_id"`
	Digest      string    `msgpack:"digest"`
	Size        int64     `msgpack:"size"`
	InstalledAt time.Time `msgpack:"installed_at"`
}

func writeRecord(dir string, rec record) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, recordFile), data, 0o644)
}

func readRecord(dir string) (record, error) {
	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if err != nil {
		return record{}, fmt.Errorf("failed to read record: %w", err)
	}

	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("failed to decode record: %w", err)
	}

	if rec.VersionID == "" {
		return record{}, fmt.Errorf("record missing version id")
	}
	return rec, nil
}

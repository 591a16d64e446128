package sysprobe

import (
	"os"
	"path/filepath"

	"github.com/rheldev6-ship-it/integ/internal/utils/pathutil"
)

// Probe locates a pre-existing, unmanaged compatibility runtime on the host
// for the last fallback tier. It never installs anything.
type Probe interface {
	SystemRuntime() (string, bool)
}

type dirProbe struct {
	extraPaths []string
}

func New(extraPaths []string) Probe {
	return &dirProbe{extraPaths: extraPaths}
}

// SystemRuntime checks configured locations first, then the conventional
// Steam compatibility tool directories.
func (p *dirProbe) SystemRuntime() (string, bool) {
	for _, c := range p.extraPaths {
		expanded, err := pathutil.ExpandPath(c)
		if err != nil {
			continue
		}
		if pathutil.DirExists(expanded) {
			return expanded, true
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}

	candidates := []string{
		filepath.Join(home, ".local/share/Steam/compatibilitytools.d"),
		filepath.Join(home, ".steam/steam/compatibilitytools.d"),
		filepath.Join(home, ".steam/root/compatibilitytools.d"),
		filepath.Join(home, ".var/app/com.valvesoftware.Steam/data/Steam/compatibilitytools.d"),
	}
	for _, c := range candidates {
		if pathutil.DirExists(c) {
			return c, true
		}
	}

	return "", false
}

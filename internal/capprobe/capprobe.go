// Package capprobe implements the startup capability check described in
// spec §4.2: does the running kernel accept the namespace flag union the
// spawner requires.
package capprobe

import (
	"runtime"

	"github.com/lcdriver/lcdriverd/internal/platform"
)

// Probe reports whether this host can run namespace-isolated domains: it
// must be Linux and the platform's namespace primitive must accept the
// required flag union.
func Probe(p platform.Platform) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	return p.SupportsNamespaces()
}

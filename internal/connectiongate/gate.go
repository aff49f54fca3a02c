//go:build linux

// Package connectiongate implements spec §4.1: deciding whether to adopt
// the process-wide Driver singleton for a given URI and caller, with a
// "declined" outcome distinct from error so the caller can try another
// driver.
package connectiongate

import (
	"fmt"
	"net/url"
	"os"

	"github.com/lcdriver/lcdriverd/internal/capprobe"
	"github.com/lcdriver/lcdriverd/internal/driver"
	"github.com/lcdriver/lcdriverd/internal/platform"
)

// CanonicalURI returns the driver's canonical connection URI, e.g.
// "lcdriver:///".
func CanonicalURI() string {
	return driver.Tag + ":///"
}

// Probe reports the canonical URI only if this host can run the driver:
// Linux, and the kernel accepts the required namespace flags. It returns
// ("", false) otherwise — a non-fatal outcome, not an error.
func Probe(plat platform.Platform) (string, bool) {
	if !capprobe.Probe(plat) {
		return "", false
	}
	return CanonicalURI(), true
}

// Open accepts a connection request iff the caller is superuser, the
// driver singleton already exists, and uri's scheme matches the driver
// tag. Acceptance and decline are both nil-error outcomes; declined is
// reported via the second return so the dispatch layer can try another
// driver instead of surfacing a user-visible failure.
func Open(d *driver.Driver, uri string) (accepted bool, err error) {
	if os.Geteuid() != 0 {
		return false, nil
	}
	if d == nil {
		return false, nil
	}
	u, parseErr := url.Parse(uri)
	if parseErr != nil {
		return false, fmt.Errorf("parse connection uri: %w", parseErr)
	}
	if u.Scheme != driver.Tag {
		return false, nil
	}
	return true, nil
}

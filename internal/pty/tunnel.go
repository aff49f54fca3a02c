// Package pty implements the two-sided pty tunnel and its byte-forwarding
// side-car described in spec §4.3.
package pty

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/platform"
)

// Tunnel allocates and wires the host-side and container-side pty halves
// and the forwarder that copies bytes between them.
type Tunnel struct {
	plat platform.Platform
	log  hclog.Logger
}

// New returns a Tunnel backed by plat, logging through log.
func New(plat platform.Platform, log hclog.Logger) *Tunnel {
	return &Tunnel{plat: plat, log: log.Named("pty")}
}

// SetupHostSide opens def.TTYPath as the host-side master, switches it to
// raw mode, and reconciles def.TTYPath with the kernel-reported slave name.
// An empty TTYPath is not an error: it means "no host-side tunnel", and the
// returned fd is -1.
func (t *Tunnel) SetupHostSide(def *domain.Definition) (int, error) {
	if def.TTYPath == "" {
		return -1, nil
	}
	fd, slaveName, err := t.plat.OpenExistingPTY(def.TTYPath)
	if err != nil {
		return -1, fmt.Errorf("open host-side tty %s: %w", def.TTYPath, err)
	}
	if err := t.plat.SetRaw(fd); err != nil {
		t.plat.ClosePTY(fd)
		return -1, fmt.Errorf("set raw mode on host-side tty: %w", err)
	}
	if slaveName != "" && slaveName != def.TTYPath {
		t.log.Debug("reconciling tty path", "old", def.TTYPath, "new", slaveName)
		def.TTYPath = slaveName
	}
	return fd, nil
}

// SetupContainerSide allocates a fresh master/slave pty pair for the
// container, returning the master fd and a freshly owned slave pathname
// for the caller to attach to the record.
func (t *Tunnel) SetupContainerSide() (fd int, slaveName string, err error) {
	fd, slaveName, err = t.plat.AllocatePTY()
	if err != nil {
		return -1, "", fmt.Errorf("allocate container-side pty: %w", err)
	}
	return fd, slaveName, nil
}

// StartForwarder forks the byte-forwarding side-car between parentFd and
// containerFd. With no host-side master (parentFd == -1) the forwarder does
// not run and StartForwarder returns pid -1, nil, nil. The returned release
// func frees the forwarder's child stack and must only be called once the
// caller has reaped its pid.
func (t *Tunnel) StartForwarder(parentFd, containerFd int) (int, func(), error) {
	if parentFd < 0 {
		return -1, nil, nil
	}
	pid, release, err := t.plat.ForkForwarder(func() {
		runForwarder(parentFd, containerFd, t.log)
	})
	if err != nil {
		return -1, nil, fmt.Errorf("fork forwarder: %w", err)
	}
	return pid, release, nil
}

// Close releases fd if it is open (>= 0); used for rollback on start
// failure per spec §4.5.
func (t *Tunnel) Close(fd int) {
	if fd >= 0 {
		_ = t.plat.ClosePTY(fd)
	}
}

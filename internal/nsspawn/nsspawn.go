//go:build linux

// Package nsspawn is the namespace spawner component from spec §4.4: it
// invokes the platform's clone primitive with the exact flag union the
// container entry routine needs to become an isolated init.
package nsspawn

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lcdriver/lcdriverd/internal/domain"
	"github.com/lcdriver/lcdriverd/internal/platform"
)

// ContainerEntry is the external collaborator invoked as the first code in
// the namespaced child. rec is the domain record being started. On success
// it execs the container's real init and does not return; otherwise it
// returns an exit status, with which the platform ends the child process.
type ContainerEntry func(rec *domain.Record) int

// Spawner clones the namespaced child that becomes a domain's init.
type Spawner struct {
	plat platform.Platform
	log  hclog.Logger
}

// New returns a Spawner backed by plat.
func New(plat platform.Platform, log hclog.Logger) *Spawner {
	return &Spawner{plat: plat, log: log.Named("nsspawn")}
}

// Spawn clones rec's namespaced init via entry. On success it returns the
// host pid (which becomes rec.Definition.ID) and a release func that must
// be called only after the pid has been reaped, to free the child's stack.
//
// Flags: CLONE_NEWPID gives the container its own init and hides host
// processes; CLONE_NEWNS permits an independent mount table; CLONE_NEWUTS
// allows a distinct hostname; CLONE_NEWUSER isolates uid/gid mappings;
// CLONE_NEWIPC isolates SysV and POSIX IPC objects.
func (s *Spawner) Spawn(rec *domain.Record, entry ContainerEntry) (int, func(), error) {
	pid, release, err := s.plat.Spawn(func(arg interface{}) int {
		return entry(arg.(*domain.Record))
	}, rec, platform.RequiredNamespaceFlags)
	if err != nil {
		return -1, nil, fmt.Errorf("clone namespaced child: %w", err)
	}
	s.log.Debug("spawned namespaced init", "pid", pid, "domain", rec.Definition.Name)
	return pid, release, nil
}

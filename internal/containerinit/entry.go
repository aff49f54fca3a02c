//go:build linux

// Package containerinit is a minimal default implementation of the
// container entry routine collaborator spec §6 leaves external. It exists
// so the driver is runnable end to end; production embeddings are expected
// to supply their own entry that understands the full shape of
// DomainDefinition.RootAndMounts.
package containerinit

import (
	"encoding/json"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/lcdriver/lcdriverd/internal/domain"
)

// Spec is the minimal, opaque-to-the-core shape this default entry expects
// inside Definition.RootAndMounts. Anything richer is a concern for a
// production container entry routine, not this core.
type Spec struct {
	Rootfs     string   `json:"rootfs,omitempty"`
	Entrypoint []string `json:"entrypoint,omitempty"`
}

// Entry is the default nsspawn.ContainerEntry: it attaches the container's
// controlling tty, sets the container hostname, optionally chroots into
// Rootfs, and execs Entrypoint (or a bare shell if none is given). It never
// returns on success, since syscall.Exec replaces the process image.
func Entry(rec *domain.Record) int {
	if err := attachControllingTTY(rec.ContainerTTYName); err != nil {
		os.Stderr.WriteString("containerinit: attach tty: " + err.Error() + "\n")
		return 1
	}

	if err := unix.Sethostname([]byte(rec.Definition.Name)); err != nil {
		os.Stderr.WriteString("containerinit: sethostname: " + err.Error() + "\n")
		// Hostname failure is not fatal to booting the container.
	}

	spec := Spec{Entrypoint: []string{"/bin/sh"}}
	if len(rec.Definition.RootAndMounts) > 0 {
		_ = json.Unmarshal(rec.Definition.RootAndMounts, &spec)
	}
	if len(spec.Entrypoint) == 0 {
		spec.Entrypoint = []string{"/bin/sh"}
	}

	if spec.Rootfs != "" {
		if err := unix.Chroot(spec.Rootfs); err != nil {
			os.Stderr.WriteString("containerinit: chroot: " + err.Error() + "\n")
			return 1
		}
		if err := unix.Chdir("/"); err != nil {
			os.Stderr.WriteString("containerinit: chdir: " + err.Error() + "\n")
			return 1
		}
	}

	if err := syscall.Exec(spec.Entrypoint[0], spec.Entrypoint, os.Environ()); err != nil {
		os.Stderr.WriteString("containerinit: exec: " + err.Error() + "\n")
		return 1
	}
	return 0
}

// attachControllingTTY opens the container-side slave pty and makes it the
// calling process's controlling terminal, then wires it to stdin/out/err.
func attachControllingTTY(slaveName string) error {
	if slaveName == "" {
		return nil
	}
	if _, err := unix.Setsid(); err != nil {
		// Already a session leader is fine.
	}
	fd, err := unix.Open(slaveName, unix.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := unix.IoctlSetInt(fd, unix.TIOCSCTTY, 0); err != nil {
		return err
	}
	for _, std := range []int{0, 1, 2} {
		if err := unix.Dup2(fd, std); err != nil {
			return err
		}
	}
	if fd > 2 {
		unix.Close(fd)
	}
	return nil
}

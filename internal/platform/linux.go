//go:build linux

package platform

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RequiredNamespaceFlags is the union of namespace-creation flags the
// spawner requires: new PID, mount, UTS, user, and IPC namespaces (spec
// §4.4). Exported so capprobe can test against the exact set the spawner
// will later use.
const RequiredNamespaceFlags = unix.CLONE_NEWPID |
	unix.CLONE_NEWNS |
	unix.CLONE_NEWUTS |
	unix.CLONE_NEWUSER |
	unix.CLONE_NEWIPC

// childStackPages is the dedicated child stack size: four host pages.
const childStackPages = 4

// Linux is the production Platform backed by golang.org/x/sys/unix.
type Linux struct{}

// NewLinux returns the production platform shim.
func NewLinux() *Linux { return &Linux{} }

func (*Linux) SupportsNamespaces() bool {
	pid, release, err := cloneChild(func(interface{}) int { return 0 }, nil, RequiredNamespaceFlags)
	if err != nil {
		if err == unix.EINVAL {
			return false
		}
		// Any other failure reason is treated as "supported" per spec §4.2 —
		// the host may simply be out of resources right now.
		return true
	}
	defer release()
	_, _ = unix.Wait4(pid, nil, 0, nil)
	return true
}

func (*Linux) OpenExistingPTY(path string) (int, string, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_NOCTTY, 0)
	if err != nil {
		return -1, "", fmt.Errorf("open %s: %w", path, err)
	}
	if err := unlockPTY(fd); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	name, err := ptyName(fd)
	if err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	return fd, name, nil
}

func (*Linux) AllocatePTY() (int, string, error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return -1, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}
	if err := unlockPTY(fd); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	name, err := ptyName(fd)
	if err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	return fd, name, nil
}

// unlockPTY sets the kernel's pty lock to "unlocked" via TIOCSPTLCK, the
// ioctl equivalent of libc's unlockpt(3).
func unlockPTY(fd int) error {
	locked := 0
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.TIOCSPTLCK, uintptr(unsafe.Pointer(&locked))); errno != 0 {
		return fmt.Errorf("unlock pty: %w", errno)
	}
	return nil
}

// ptyName resolves the slave pathname for a ptmx-derived master fd, the
// ioctl equivalent of libc's ptsname(3).
func ptyName(fd int) (string, error) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return "", fmt.Errorf("get pty number: %w", err)
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}

func (*Linux) SetRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	// Equivalent of libc cfmakeraw(3): no echo, no canonical mode, no
	// signal generation, 8-bit clean, no input/output translation.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

func (*Linux) ClosePTY(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func (*Linux) Spawn(entry EntryFunc, arg interface{}, flags uintptr) (int, func(), error) {
	return cloneChild(entry, arg, flags)
}

func (*Linux) ForkForwarder(fn func()) (int, func(), error) {
	pid, release, err := cloneChild(func(interface{}) int { fn(); return 0 }, nil, 0)
	if err != nil {
		return -1, nil, err
	}
	// The forwarder's stack lives for the lifetime of the side-car process;
	// the caller must call release only once it has reaped pid.
	return pid, release, nil
}

func (*Linux) Signal(pid int, sig Signal) error {
	var s unix.Signal
	switch sig {
	case SigInterrupt:
		s = unix.SIGINT
	case SigKill:
		s = unix.SIGKILL
	}
	if err := unix.Kill(pid, s); err != nil {
		if err == unix.ESRCH {
			return ErrNoSuchProcess
		}
		return err
	}
	return nil
}

func (*Linux) Wait(pid int) (int, error) {
	for {
		reaped, err := unix.Wait4(pid, nil, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		return reaped, nil
	}
}

// cloneChild allocates a dedicated stack and invokes clone(2) directly,
// running entry(arg) as the very first code executed in the child. The
// calling goroutine is locked to its OS thread for the duration of the
// syscall, matching the narrow, single-threaded usage this core requires:
// entry must not spin up Go runtime machinery before handing off control
// (e.g. via exec) because only the cloning thread survives into the child.
func cloneChild(entry EntryFunc, arg interface{}, flags uintptr) (int, func(), error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stack, err := unix.Mmap(-1, 0, childStackPages*os.Getpagesize(),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_STACK)
	if err != nil {
		return -1, nil, fmt.Errorf("allocate child stack: %w", err)
	}
	release := func() { _ = unix.Munmap(stack) }

	stackTop := uintptr(unsafe.Pointer(&stack[len(stack)-1]))

	pid, _, errno := unix.RawSyscall6(unix.SYS_CLONE, flags|uintptr(unix.SIGCHLD), stackTop, 0, 0, 0, 0)
	if errno != 0 {
		release()
		return -1, nil, errno
	}
	if pid == 0 {
		// Child: run the entry routine and exit with its status. Anything
		// entry does must be safe to run on a single bare OS thread.
		os.Exit(entry(arg))
	}
	return int(pid), release, nil
}

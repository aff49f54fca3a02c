package platform

import "sync"

// Mock is an in-memory Platform used to test the lifecycle controller and
// registry invariants without a namespace-capable kernel.
type Mock struct {
	mu sync.Mutex

	NamespacesSupported bool

	nextFd  int
	nextPID int

	// Injected failures, keyed by call site, for exercising rollback paths.
	FailOpenExistingPTY bool
	FailAllocatePTY     bool
	FailSpawn           bool
	FailForkForwarder   bool

	// Alive tracks which pids are still running. Signal with SigKill, Wait,
	// and KillExternally mark a pid dead; Wait never blocks.
	Alive map[int]bool

	ClosedFds []int
}

// NewMock returns a Mock platform that reports namespace support and
// succeeds at every call unless told otherwise.
func NewMock() *Mock {
	return &Mock{
		NamespacesSupported: true,
		nextFd:              100,
		nextPID:             1000,
		Alive:               make(map[int]bool),
	}
}

func (m *Mock) SupportsNamespaces() bool { return m.NamespacesSupported }

func (m *Mock) OpenExistingPTY(path string) (int, string, error) {
	if m.FailOpenExistingPTY {
		return -1, "", &procError{"mock: open existing pty failed"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFd++
	return m.nextFd, path, nil
}

func (m *Mock) AllocatePTY() (int, string, error) {
	if m.FailAllocatePTY {
		return -1, "", &procError{"mock: allocate pty failed"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFd++
	return m.nextFd, "/dev/pts/mock", nil
}

func (m *Mock) SetRaw(fd int) error { return nil }

func (m *Mock) ClosePTY(fd int) error {
	if fd < 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClosedFds = append(m.ClosedFds, fd)
	return nil
}

func (m *Mock) Spawn(entry EntryFunc, arg interface{}, flags uintptr) (int, func(), error) {
	if m.FailSpawn {
		return -1, nil, &procError{"mock: spawn failed"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPID++
	pid := m.nextPID
	m.Alive[pid] = true
	return pid, func() {}, nil
}

func (m *Mock) ForkForwarder(fn func()) (int, func(), error) {
	if m.FailForkForwarder {
		return -1, nil, &procError{"mock: fork forwarder failed"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPID++
	pid := m.nextPID
	m.Alive[pid] = true
	return pid, func() {}, nil
}

func (m *Mock) Signal(pid int, sig Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Alive[pid] {
		return ErrNoSuchProcess
	}
	if sig == SigKill {
		m.Alive[pid] = false
	}
	return nil
}

func (m *Mock) Wait(pid int) (int, error) {
	m.mu.Lock()
	m.Alive[pid] = false
	m.mu.Unlock()
	return pid, nil
}

// KillExternally simulates a container ignoring SIGINT and exiting on its
// own, or some other out-of-band death, without going through destroy().
func (m *Mock) KillExternally(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alive[pid] = false
}

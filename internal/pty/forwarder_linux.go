//go:build linux

package pty

import (
	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
)

// forwarderBufSize is the forwarder's read/write chunk size. The source
// moves one byte at a time; this implementation keeps that choice (spec
// §9 permits enlarging it, but a single byte keeps the ordering argument
// trivial and the side-car's memory footprint nil).
const forwarderBufSize = 1

// runForwarder copies bytes between a and b until either side reports an
// unrecoverable error or a short read/write. It is the body of the
// forwarder side-car process forked by Tunnel.StartForwarder, so it never
// returns on the happy path — it runs until the process is killed.
func runForwarder(a, b int, log hclog.Logger) {
	fds := []unix.PollFd{
		{Fd: int32(a), Events: unix.POLLIN},
		{Fd: int32(b), Events: unix.POLLIN},
	}
	var buf [forwarderBufSize]byte

	for {
		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			log.Error("forwarder poll failed, exiting", "error", err)
			return
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			if !copyOneByte(a, b, buf[:], log) {
				return
			}
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			if !copyOneByte(b, a, buf[:], log) {
				return
			}
		}
	}
}

// copyOneByte reads len(buf) bytes from src and writes them to dst,
// reporting false (terminate the forwarder) on any short read/write.
func copyOneByte(src, dst int, buf []byte, log hclog.Logger) bool {
	n, err := unix.Read(src, buf)
	if err != nil || n != len(buf) {
		log.Debug("forwarder read failed or short, exiting", "error", err, "n", n)
		return false
	}
	n, err = unix.Write(dst, buf)
	if err != nil || n != len(buf) {
		log.Debug("forwarder write failed or short, exiting", "error", err, "n", n)
		return false
	}
	return true
}

//go:build !windows
// +build !windows

package main

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl returns a ListenConfig.Control hook that sets SO_RCVBUF on the
// listening socket. Accepted connections inherit the buffer size.
func socketControl(recvBuf int) func(network, address string, c syscall.RawConn) error {
	if recvBuf <= 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuf)
		})
		if err != nil {
			return err
		}
		return serr
	}
}

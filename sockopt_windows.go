//go:build windows
// +build windows

package main

import (
	"errors"
	"syscall"
)

func socketControl(recvBuf int) func(network, address string, c syscall.RawConn) error {
	if recvBuf <= 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return errors.New("--rcvbuf is not supported on windows")
	}
}

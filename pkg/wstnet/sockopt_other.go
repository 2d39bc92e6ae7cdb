//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package wstnet

import (
	"syscall"
)

// ListenControl is a no-op on platforms without SO_REUSEPORT
func ListenControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	return nil
}

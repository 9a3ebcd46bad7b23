//go:build windows

package mcast

import "syscall"

// setReuseAddr is a no-op on Windows; SO_REUSEADDR has different (and
// generally undesired) semantics there, and multicast receive sockets
// don't need it for single-listener operation.
func setReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}

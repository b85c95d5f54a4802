//go:build windows

package network

import (
	"net"
	"syscall"
)

// ReuseAddrListenConfig returns a ListenConfig that sets SO_REUSEADDR before
// bind.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: setReuseAddr}
}

func setReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

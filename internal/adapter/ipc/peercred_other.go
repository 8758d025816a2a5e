//go:build !linux

package ipc

import "net"

// checkPeer relies on the socket file mode where SO_PEERCRED is unavailable.
func checkPeer(net.Conn) error { return nil }

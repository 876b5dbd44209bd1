// Package ipc provides the local socket channel the keepsake CLI uses to
// talk to a running daemon: a Unix domain socket on Linux/macOS, a named
// pipe on Windows.
package ipc

import (
	"net"
	"os"
)

// SocketPath returns the platform-appropriate path for the IPC socket.
// $KEEPSAKE_SOCKET overrides it.
func SocketPath() string {
	if s := os.Getenv("KEEPSAKE_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a keepsake daemon appears to be listening on the
// IPC socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := Dial()
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a net.Listener on the IPC socket path.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}

// Dial connects to a listening daemon.
func Dial() (net.Conn, error) {
	return dialIPC(SocketPath())
}

package remote

import "io"

// Handle is a live remote command channel. Each handle is exclusively owned
// by the session it was opened for: exactly one goroutine reads from it, and
// input writes are serialized by the caller. Close releases the underlying
// connection and unblocks any in-flight Read.
type Handle interface {
	io.Reader
	io.Writer
	io.Closer

	// Resize adjusts the remote terminal geometry. Best effort.
	Resize(cols, rows uint16) error
}

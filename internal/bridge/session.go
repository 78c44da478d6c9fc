// Package bridge multiplexes client terminal connections onto live remote
// handles. Each session owns its remote handle exclusively and gets a
// dedicated pump goroutine forwarding remote output to the client, so one
// stalled remote can never delay another session. The shared session
// registry is the only cross-session state.
package bridge

import (
	"sync"
	"time"

	"github.com/cloudterm/console/internal/remote"
)

// State is the lifecycle state of a session. Transitions are one way:
// Connecting → Active → Closing → Closed.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// ClientNotifier delivers session events back to the owning client
// transport. Output errors indicate the client can no longer receive data
// and terminate the session.
type ClientNotifier interface {
	Output(sessionID string, data []byte) error
	Closed(sessionID, reason string)
}

// Session is one interactive remote command channel bridged to one client
// connection.
type Session struct {
	ID        string
	Target    remote.Target
	CreatedAt time.Time

	handle remote.Handle
	client ClientNotifier

	mu         sync.Mutex
	state      State
	lastActive time.Time

	// stop is closed exactly once by the lifecycle manager; the pump checks
	// it before forwarding a chunk.
	stop      chan struct{}
	closeOnce sync.Once
	// pumpClaimed guards the pump slot: Start claims it to launch the
	// pump, teardown claims it so a pump can no longer start.
	pumpClaimed bool
	// pumpDone is closed when the pump goroutine has exited, or by
	// teardown when no pump ever started.
	pumpDone chan struct{}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the most recent input, output, or state
// change.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// claimPump claims the pump slot. Only the first caller gets true.
func (s *Session) claimPump() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pumpClaimed {
		return false
	}
	s.pumpClaimed = true
	return true
}

// PumpDone returns a channel closed when the session's pump has exited.
func (s *Session) PumpDone() <-chan struct{} {
	return s.pumpDone
}

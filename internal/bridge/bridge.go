package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cloudterm/console/internal/remote"
	"github.com/google/uuid"
)

// readChunkSize bounds how much remote output is forwarded per client
// message.
const readChunkSize = 4096

// Close reasons reported to clients.
const (
	ReasonClientClose   = "closed by client"
	ReasonOperatorClose = "closed by operator"
	ReasonDisconnect    = "client disconnected"
	ReasonRemoteClosed  = "remote closed"
	ReasonIdleTimeout   = "idle timeout"
	ReasonShutdown      = "server shutting down"
	reasonClientStalled = "client write failed"
)

// Establisher opens a remote handle for a target descriptor.
type Establisher interface {
	Connect(ctx context.Context, t remote.Target) (remote.Handle, []byte, error)
}

// EventRecorder receives session open/close events for the audit trail.
type EventRecorder interface {
	Record(sessionID, event string, target remote.Target, reason string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, remote.Target, string) {}

// Bridge owns the session registry and the per-session pumps. All methods
// are safe for concurrent use.
type Bridge struct {
	establisher Establisher
	registry    *Registry
	recorder    EventRecorder
}

func New(est Establisher, rec EventRecorder) *Bridge {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Bridge{
		establisher: est,
		registry:    NewRegistry(),
		recorder:    rec,
	}
}

// Open connects to the target and registers the session. The pump is not
// running yet: the caller delivers its connect reply and the returned
// banner (shell targets only, initial remote output captured during
// connect), then calls Start, so no pumped chunk can overtake either. On
// connect failure nothing is registered.
func (b *Bridge) Open(ctx context.Context, target remote.Target, client ClientNotifier) (*Session, []byte, error) {
	s := &Session{
		ID:        uuid.New().String(),
		Target:    target,
		CreatedAt: time.Now(),
		client:    client,
		state:     StateConnecting,
		stop:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}

	handle, banner, err := b.establisher.Connect(ctx, target)
	if err != nil {
		s.setState(StateClosed)
		return nil, nil, err
	}
	s.handle = handle

	if err := b.registry.Register(s); err != nil {
		handle.Close()
		s.setState(StateClosed)
		return nil, nil, fmt.Errorf("register session %s: %w", s.ID, err)
	}
	s.setState(StateActive)
	b.recorder.Record(s.ID, "opened", target, "")
	log.Printf("[bridge] session %s opened (%s)", s.ID, target.String())

	return s, banner, nil
}

// Start launches the session's output pump. Unknown ids and repeat calls
// are no-ops, as is a session already claimed by teardown.
func (b *Bridge) Start(id string) {
	s, err := b.registry.Lookup(id)
	if err != nil {
		return
	}
	if s.claimPump() {
		go b.pump(s)
	}
}

// Input writes client bytes to the session's remote handle. An unknown id
// returns ErrSessionNotFound for the caller to report to its client. A
// write failure terminates the session and is returned.
func (b *Bridge) Input(id string, data []byte) error {
	s, err := b.registry.Lookup(id)
	if err != nil {
		return err
	}
	s.touch()
	if _, err := s.handle.Write(data); err != nil {
		b.Terminate(id, "write failed: "+err.Error())
		return fmt.Errorf("write to session %s: %w", id, err)
	}
	return nil
}

// Resize adjusts the session's remote terminal geometry. Best effort: an
// unsupported or failed resize is logged and swallowed; only an unknown
// session is an error.
func (b *Bridge) Resize(id string, rows, cols uint16) error {
	s, err := b.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := s.handle.Resize(cols, rows); err != nil {
		log.Printf("[bridge] session %s resize to %dx%d ignored: %v", id, cols, rows, err)
	}
	return nil
}

// pump forwards remote output to the client until the handle reports an
// error or the session is stopped. Exactly one pump runs per session;
// chunks reach the client in read order.
func (b *Bridge) pump(s *Session) {
	defer close(s.pumpDone)
	buf := make([]byte, readChunkSize)
	for {
		n, err := s.handle.Read(buf)
		if n > 0 {
			select {
			case <-s.stop:
				return
			default:
			}
			s.touch()
			data := make([]byte, n)
			copy(data, buf[:n])
			if werr := s.client.Output(s.ID, data); werr != nil {
				b.Terminate(s.ID, reasonClientStalled)
				return
			}
		}
		if err != nil {
			select {
			case <-s.stop:
			default:
				b.Terminate(s.ID, readReason(err))
			}
			return
		}
	}
}

func readReason(err error) string {
	if errors.Is(err, io.EOF) {
		return ReasonRemoteClosed
	}
	return "read failed: " + err.Error()
}

// Terminate tears the session down exactly once, no matter how many
// triggers race to call it: the pump is signalled to stop, the remote
// handle is closed (unblocking any in-flight read), the registry entry is
// removed, and the client is notified with the reason. Later calls, and
// calls for unknown ids, are no-ops.
func (b *Bridge) Terminate(id, reason string) {
	s, err := b.registry.Lookup(id)
	if err != nil {
		return
	}
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.stop)
		if s.claimPump() {
			// The pump never started; release its done channel so
			// nothing waits on it forever.
			close(s.pumpDone)
		}
		if err := s.handle.Close(); err != nil {
			log.Printf("[bridge] session %s close handle: %v", id, err)
		}
		b.registry.Remove(id)
		s.setState(StateClosed)
		s.client.Closed(s.ID, reason)
		b.recorder.Record(s.ID, "closed", s.Target, reason)
		log.Printf("[bridge] session %s closed: %s", id, reason)
	})
}

// TerminateAll closes every registered session. Used during shutdown.
func (b *Bridge) TerminateAll(reason string) {
	for _, s := range b.registry.List() {
		b.Terminate(s.ID, reason)
	}
}

// ReapIdle terminates sessions with no activity within the threshold.
// Returns how many were closed. A threshold of zero disables reaping.
func (b *Bridge) ReapIdle(threshold time.Duration) int {
	if threshold <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-threshold)
	reaped := 0
	for _, s := range b.registry.List() {
		if s.LastActive().Before(cutoff) {
			b.Terminate(s.ID, ReasonIdleTimeout)
			reaped++
		}
	}
	return reaped
}

// Lookup exposes registry lookup for handlers.
func (b *Bridge) Lookup(id string) (*Session, error) {
	return b.registry.Lookup(id)
}

// Sessions returns a snapshot of all live sessions.
func (b *Bridge) Sessions() []*Session {
	return b.registry.List()
}

// SessionCount returns the number of live sessions.
func (b *Bridge) SessionCount() int {
	return b.registry.Count()
}

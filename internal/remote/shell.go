package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// bannerWait bounds how long connectShell waits for the remote's initial
// output (MOTD, prompt) before handing the session to the pump. A silent
// remote is not an error.
const bannerWait = 1 * time.Second

type readResult struct {
	data []byte
	err  error
}

// shellHandle is an SSH shell session with a PTY. The first stdout read is
// started at connect time to capture the login banner; if the banner misses
// the wait window, the pending chunk is delivered through Read so no bytes
// are lost.
type shellHandle struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	// first holds the outcome of the banner read when it was not consumed
	// at connect time. Only the owning pump goroutine calls Read, so no
	// locking is needed.
	first chan readResult
	rest  []byte // remainder of an oversized first chunk
}

func (h *shellHandle) Read(p []byte) (int, error) {
	if len(h.rest) > 0 {
		n := copy(p, h.rest)
		h.rest = h.rest[n:]
		return n, nil
	}
	if ch := h.first; ch != nil {
		h.first = nil
		r := <-ch
		if len(r.data) > 0 {
			n := copy(p, r.data)
			h.rest = r.data[n:]
			return n, nil
		}
		if r.err != nil {
			return 0, r.err
		}
	}
	return h.stdout.Read(p)
}

func (h *shellHandle) Write(p []byte) (int, error) {
	return h.stdin.Write(p)
}

func (h *shellHandle) Resize(cols, rows uint16) error {
	return h.session.WindowChange(int(rows), int(cols))
}

func (h *shellHandle) Close() error {
	h.session.Close()
	return h.client.Close()
}

func (e *Establisher) connectShell(ctx context.Context, t Target) (Handle, []byte, error) {
	port := t.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(t.Host, fmt.Sprintf("%d", port))

	cfg := &ssh.ClientConfig{
		User: t.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(t.Secret),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.ConnectTimeout,
	}

	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, connectErr(classifyDialError(ctx, err), fmt.Sprintf("dial %s", addr), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, nil, connectErr(AuthenticationFailed, fmt.Sprintf("authentication failed for %s", t.String()), err)
		}
		return nil, nil, connectErr(classifyDialError(ctx, err), fmt.Sprintf("ssh handshake with %s", addr), err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, nil, connectErr(NetworkError, "create ssh session", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", DefaultTermRows, DefaultTermCols, modes); err != nil {
		session.Close()
		client.Close()
		return nil, nil, connectErr(NetworkError, "request pty", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, nil, connectErr(NetworkError, "stdin pipe", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, nil, connectErr(NetworkError, "stdout pipe", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, nil, connectErr(NetworkError, "start shell", err)
	}

	h := &shellHandle{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		first:   make(chan readResult, 1),
	}

	// Kick off the banner read and give the remote one wait window to
	// produce it. On timeout the result stays pending and is served by the
	// handle's first Read instead.
	first := h.first
	go func() {
		buf := make([]byte, 4096)
		n, err := stdout.Read(buf)
		first <- readResult{data: append([]byte(nil), buf[:n]...), err: err}
	}()

	var banner []byte
	select {
	case r := <-first:
		h.first = nil
		banner = r.data
		if r.err != nil && len(r.data) == 0 {
			session.Close()
			client.Close()
			return nil, nil, connectErr(NetworkError, "shell closed before first read", r.err)
		}
	case <-time.After(bannerWait):
	}

	return h, banner, nil
}

func classifyDialError(ctx context.Context, err error) Failure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return NetworkError
}

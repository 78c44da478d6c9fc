package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	k8sexec "k8s.io/client-go/util/exec"
)

// defaultExecCommand starts an interactive shell in the container,
// preferring bash when it is installed.
var defaultExecCommand = []string{
	"/bin/sh", "-c",
	"TERM=xterm-256color; export TERM; [ -x /bin/bash ] && exec /bin/bash || exec /bin/sh",
}

// execHandle is an interactive exec stream into a pod container. Stdout and
// stderr arrive merged on the TTY stream, matching ordinary terminal
// behavior.
type execHandle struct {
	stdin  *io.PipeWriter
	stdout *io.PipeReader

	mu     sync.Mutex
	closed bool
	sizeCh chan remotecommand.TerminalSize
}

func (h *execHandle) Read(p []byte) (int, error)  { return h.stdout.Read(p) }
func (h *execHandle) Write(p []byte) (int, error) { return h.stdin.Write(p) }

func (h *execHandle) Resize(cols, rows uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("exec stream closed")
	}
	// Drain any pending size so the new one is always delivered
	select {
	case <-h.sizeCh:
	default:
	}
	h.sizeCh <- remotecommand.TerminalSize{Width: cols, Height: rows}
	return nil
}

func (h *execHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.sizeCh)
	h.mu.Unlock()

	h.stdin.Close()
	return h.stdout.Close()
}

// termSizeQueue implements remotecommand.TerminalSizeQueue via a channel.
type termSizeQueue struct {
	ch chan remotecommand.TerminalSize
}

func (q *termSizeQueue) Next() *remotecommand.TerminalSize {
	size, ok := <-q.ch
	if !ok {
		return nil
	}
	return &size
}

func (e *Establisher) connectExec(ctx context.Context, t Target) (Handle, []byte, error) {
	clientset, restConfig, err := e.Clusters.ClusterClients(t.ClusterID)
	if err != nil {
		return nil, nil, connectErr(TargetNotFound, fmt.Sprintf("cluster %q", t.ClusterID), err)
	}

	container, err := resolveExecContainer(ctx, clientset, t)
	if err != nil {
		return nil, nil, err
	}

	command := t.Command
	if len(command) == 0 {
		command = defaultExecCommand
	}

	req := clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(t.PodName).
		Namespace(t.Namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     true,
			Stdout:    true,
			Stderr:    false,
			TTY:       true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(restConfig, "POST", req.URL())
	if err != nil {
		return nil, nil, connectErr(NetworkError, "create executor", err)
	}

	h, err := startExecStream(executor, t.Namespace, t.PodName, execStartWindow)
	if err != nil {
		return nil, nil, err
	}
	// Exec streams carry no login banner; output flows through the pump.
	return h, nil, nil
}

// resolveExecContainer verifies the pod is running and picks the container
// to exec into: the requested one if it exists, otherwise the pod's first
// container when none was requested.
func resolveExecContainer(ctx context.Context, clientset kubernetes.Interface, t Target) (string, error) {
	pod, err := clientset.CoreV1().Pods(t.Namespace).Get(ctx, t.PodName, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return "", connectErr(TargetNotFound, fmt.Sprintf("pod %s/%s not found", t.Namespace, t.PodName), err)
		}
		if ctx.Err() != nil {
			return "", connectErr(Timeout, fmt.Sprintf("pod %s/%s lookup", t.Namespace, t.PodName), err)
		}
		return "", connectErr(NetworkError, fmt.Sprintf("pod %s/%s lookup", t.Namespace, t.PodName), err)
	}

	if pod.Status.Phase != corev1.PodRunning {
		return "", connectErr(TargetNotReady,
			fmt.Sprintf("pod %s is not running (status: %s)", t.PodName, pod.Status.Phase), nil)
	}

	if len(pod.Spec.Containers) == 0 {
		return "", connectErr(TargetNotFound, fmt.Sprintf("pod %s has no containers", t.PodName), nil)
	}

	if t.ContainerName == "" {
		return pod.Spec.Containers[0].Name, nil
	}

	names := make([]string, len(pod.Spec.Containers))
	for i, c := range pod.Spec.Containers {
		names[i] = c.Name
	}
	for _, n := range names {
		if n == t.ContainerName {
			return n, nil
		}
	}
	return "", connectErr(TargetNotFound,
		fmt.Sprintf("container %s not found in pod %s (available: %s)",
			t.ContainerName, t.PodName, strings.Join(names, ", ")), nil)
}

// execStartWindow is how long startExecStream waits for the stream to die
// at birth. Inside the window a stream failure is a connect failure, e.g.
// pods/exec forbidden by RBAC or no spawnable shell in the container;
// after it, the pump sees the stream end as a remote close.
const execStartWindow = time.Second

func startExecStream(executor remotecommand.Executor, namespace, podName string, window time.Duration) (Handle, error) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	sizeCh := make(chan remotecommand.TerminalSize, 1)
	sizeCh <- remotecommand.TerminalSize{Width: DefaultTermCols, Height: DefaultTermRows}

	h := &execHandle{
		stdin:  stdinW,
		stdout: stdoutR,
		sizeCh: sizeCh,
	}

	// The stream runs for the life of the session; its own context is
	// detached from the connect deadline. Closing the handle's pipes tears
	// it down.
	streamErr := make(chan error, 1)
	go func() {
		err := executor.StreamWithContext(context.Background(), remotecommand.StreamOptions{
			Stdin:             stdinR,
			Stdout:            stdoutW,
			Tty:               true,
			TerminalSizeQueue: &termSizeQueue{ch: sizeCh},
		})
		if err != nil {
			log.Printf("exec stream for %s/%s ended: %v", namespace, podName, err)
		}
		streamErr <- err
		stdoutW.CloseWithError(io.EOF)
		stdinR.Close()
	}()

	select {
	case err := <-streamErr:
		h.Close()
		if err == nil {
			return nil, connectErr(TargetNotReady,
				fmt.Sprintf("exec into %s/%s exited immediately", namespace, podName), nil)
		}
		return nil, classifyExecError(err, namespace, podName)
	case <-time.After(window):
		return h, nil
	}
}

func classifyExecError(err error, namespace, podName string) error {
	detail := fmt.Sprintf("exec into %s/%s", namespace, podName)
	var exitErr k8sexec.CodeExitError
	switch {
	case k8serrors.IsForbidden(err) || k8serrors.IsUnauthorized(err):
		return connectErr(AuthenticationFailed, detail, err)
	case k8serrors.IsNotFound(err):
		return connectErr(TargetNotFound, detail, err)
	case errors.As(err, &exitErr):
		return connectErr(TargetNotReady, detail, err)
	default:
		return connectErr(NetworkError, detail, err)
	}
}

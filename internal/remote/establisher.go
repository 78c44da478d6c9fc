package remote

import (
	"context"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// DefaultConnectTimeout bounds how long a connect attempt may take before it
// is surfaced as a Timeout failure.
const DefaultConnectTimeout = 10 * time.Second

// Default terminal geometry requested for new sessions.
const (
	DefaultTermCols = 120
	DefaultTermRows = 30
)

// ClusterResolver supplies API clients for a named cluster. The directory
// implements this.
type ClusterResolver interface {
	ClusterClients(clusterID string) (kubernetes.Interface, *rest.Config, error)
}

// Establisher opens remote handles for target descriptors. It performs no
// session bookkeeping: a failed connect leaves no state behind anywhere.
type Establisher struct {
	Clusters       ClusterResolver
	ConnectTimeout time.Duration
}

func NewEstablisher(clusters ClusterResolver, connectTimeout time.Duration) *Establisher {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Establisher{Clusters: clusters, ConnectTimeout: connectTimeout}
}

// Connect opens a handle for the target. For shell targets the returned
// banner holds any output the remote produced within the banner wait; it is
// empty (not an error) when the remote stayed quiet. Failures are returned
// as *ConnectError.
func (e *Establisher) Connect(ctx context.Context, t Target) (Handle, []byte, error) {
	if err := t.Validate(); err != nil {
		return nil, nil, connectErr(TargetNotFound, err.Error(), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.ConnectTimeout)
	defer cancel()

	switch t.Kind {
	case TargetShell:
		return e.connectShell(ctx, t)
	case TargetExec:
		return e.connectExec(ctx, t)
	}
	return nil, nil, connectErr(TargetNotFound, "unknown target type", nil)
}

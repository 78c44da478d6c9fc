// Package remote opens live command channels to remote targets: PTY-backed
// shells over SSH and interactive exec streams into cluster pods. It wraps
// golang.org/x/crypto/ssh and k8s.io/client-go behind a single Handle
// abstraction consumed by the session bridge.
package remote

import (
	"fmt"
	"net"
)

// TargetKind discriminates the Target variants.
type TargetKind string

const (
	// TargetShell is an SSH shell on a remote host.
	TargetShell TargetKind = "shell"
	// TargetExec is an interactive exec stream into a pod container.
	TargetExec TargetKind = "exec"
)

// Target describes what a session connects to. It is immutable once a
// session has been created from it.
type Target struct {
	Kind TargetKind `json:"type" yaml:"type"`

	// Shell fields
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Secret   string `json:"secret,omitempty" yaml:"secret,omitempty"`

	// Exec fields
	ClusterID     string   `json:"cluster_id,omitempty" yaml:"cluster_id,omitempty"`
	Namespace     string   `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	PodName       string   `json:"pod_name,omitempty" yaml:"pod_name,omitempty"`
	ContainerName string   `json:"container_name,omitempty" yaml:"container_name,omitempty"`
	Command       []string `json:"command,omitempty" yaml:"command,omitempty"`
}

// Validate checks that the fields required by the target's kind are present.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetShell:
		if t.Host == "" {
			return fmt.Errorf("shell target: host is required")
		}
		if t.Username == "" {
			return fmt.Errorf("shell target: username is required")
		}
	case TargetExec:
		if t.ClusterID == "" {
			return fmt.Errorf("exec target: cluster_id is required")
		}
		if t.Namespace == "" {
			return fmt.Errorf("exec target: namespace is required")
		}
		if t.PodName == "" {
			return fmt.Errorf("exec target: pod_name is required")
		}
	default:
		return fmt.Errorf("unknown target type %q", t.Kind)
	}
	return nil
}

// String renders the target for logs and audit rows. Secrets are never
// included.
func (t Target) String() string {
	switch t.Kind {
	case TargetShell:
		port := t.Port
		if port == 0 {
			port = 22
		}
		return fmt.Sprintf("%s@%s", t.Username, net.JoinHostPort(t.Host, fmt.Sprintf("%d", port)))
	case TargetExec:
		s := fmt.Sprintf("%s/%s/%s", t.ClusterID, t.Namespace, t.PodName)
		if t.ContainerName != "" {
			s += "/" + t.ContainerName
		}
		return s
	default:
		return string(t.Kind)
	}
}

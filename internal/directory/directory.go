// Package directory is the resource directory the console connects through:
// named host profiles for SSH shells and cluster entries for pod exec. The
// directory file is YAML; host secrets may be stored fernet-encrypted and
// are decrypted only when a connection is being prepared.
package directory

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/cloudterm/console/internal/remote"
	"gopkg.in/yaml.v3"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// HostProfile is one connectable SSH host.
type HostProfile struct {
	Name        string `yaml:"name" json:"name"`
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	Username    string `yaml:"username" json:"username"`
	Secret      string `yaml:"secret" json:"-"`
	Encrypted   bool   `yaml:"encrypted" json:"-"`
	Description string `yaml:"description" json:"description"`
}

// DecryptFunc decrypts a stored secret. Plaintext passthrough when nil.
type DecryptFunc func(string) (string, error)

type directoryFile struct {
	Hosts    []HostProfile  `yaml:"hosts"`
	Clusters []ClusterEntry `yaml:"clusters"`
}

// Directory holds the loaded host profiles and cluster entries. Lookups are
// safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	hosts    map[string]HostProfile
	clusters map[string]*Cluster
	decrypt  DecryptFunc
}

// Load reads the directory file. A missing file yields an empty directory
// rather than an error so a fresh install starts clean.
func Load(path string, decrypt DecryptFunc) (*Directory, error) {
	d := &Directory{
		hosts:    make(map[string]HostProfile),
		clusters: make(map[string]*Cluster),
		decrypt:  decrypt,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("read directory file: %w", err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}

	for _, h := range f.Hosts {
		if h.Name == "" || h.Host == "" {
			return nil, fmt.Errorf("host profile needs name and host (got name=%q host=%q)", h.Name, h.Host)
		}
		if h.Port == 0 {
			h.Port = 22
		}
		d.hosts[h.Name] = h
	}
	for _, c := range f.Clusters {
		if c.ID == "" {
			return nil, fmt.Errorf("cluster entry needs an id")
		}
		entry := c
		d.clusters[c.ID] = &Cluster{entry: entry}
	}

	return d, nil
}

// Hosts returns all host profiles sorted by name. Secrets are not
// serialized.
func (d *Directory) Hosts() []HostProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HostProfile, 0, len(d.hosts))
	for _, h := range d.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolveShell builds a shell target from a named host profile, decrypting
// the stored secret.
func (d *Directory) ResolveShell(name string) (remote.Target, error) {
	d.mu.RLock()
	h, ok := d.hosts[name]
	d.mu.RUnlock()
	if !ok {
		return remote.Target{}, fmt.Errorf("host profile %q not found", name)
	}

	secret := h.Secret
	if h.Encrypted && d.decrypt != nil {
		var err error
		secret, err = d.decrypt(h.Secret)
		if err != nil {
			return remote.Target{}, fmt.Errorf("decrypt secret for host %q: %w", name, err)
		}
	}

	return remote.Target{
		Kind:     remote.TargetShell,
		Host:     h.Host,
		Port:     h.Port,
		Username: h.Username,
		Secret:   secret,
	}, nil
}

// ClusterIDs returns the ids of all configured clusters, sorted.
func (d *Directory) ClusterIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.clusters))
	for id := range d.clusters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClusterClients implements remote.ClusterResolver.
func (d *Directory) ClusterClients(clusterID string) (kubernetes.Interface, *rest.Config, error) {
	d.mu.RLock()
	c, ok := d.clusters[clusterID]
	d.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("cluster %q not found", clusterID)
	}
	return c.clients()
}

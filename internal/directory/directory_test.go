package directory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudterm/console/internal/remote"
)

func writeDirectoryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write directory file: %v", err)
	}
	return path
}

func TestLoad_MissingFileYieldsEmptyDirectory(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(d.Hosts()) != 0 || len(d.ClusterIDs()) != 0 {
		t.Error("expected empty directory")
	}
}

func TestLoad_HostsAndClusters(t *testing.T) {
	path := writeDirectoryFile(t, `
hosts:
  - name: web-1
    host: 10.0.0.5
    username: ops
    secret: plain-secret
  - name: db-1
    host: 10.0.0.6
    port: 2022
    username: dba
    description: primary database host
clusters:
  - id: prod
    kubeconfig: /etc/kube/prod.yaml
  - id: staging
    in_cluster: true
`)

	d, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	hosts := d.Hosts()
	if len(hosts) != 2 {
		t.Fatalf("got %d hosts, want 2", len(hosts))
	}
	// Sorted by name.
	if hosts[0].Name != "db-1" || hosts[1].Name != "web-1" {
		t.Errorf("hosts = %q, %q, want db-1, web-1", hosts[0].Name, hosts[1].Name)
	}
	if hosts[1].Port != 22 {
		t.Errorf("default port = %d, want 22", hosts[1].Port)
	}
	if hosts[0].Port != 2022 {
		t.Errorf("port = %d, want 2022", hosts[0].Port)
	}

	clusters := d.ClusterIDs()
	if len(clusters) != 2 || clusters[0] != "prod" || clusters[1] != "staging" {
		t.Errorf("clusters = %v", clusters)
	}
}

func TestLoad_RejectsNamelessHost(t *testing.T) {
	path := writeDirectoryFile(t, `
hosts:
  - host: 10.0.0.5
    username: ops
`)
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected load to fail")
	}
}

func TestResolveShell_PlaintextSecret(t *testing.T) {
	path := writeDirectoryFile(t, `
hosts:
  - name: web-1
    host: 10.0.0.5
    username: ops
    secret: plain-secret
`)
	d, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	target, err := d.ResolveShell("web-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Kind != remote.TargetShell {
		t.Errorf("kind = %q", target.Kind)
	}
	if target.Secret != "plain-secret" {
		t.Errorf("secret = %q", target.Secret)
	}
	if target.Port != 22 {
		t.Errorf("port = %d, want 22", target.Port)
	}
}

func TestResolveShell_DecryptsEncryptedSecret(t *testing.T) {
	path := writeDirectoryFile(t, `
hosts:
  - name: web-1
    host: 10.0.0.5
    username: ops
    secret: ciphertext
    encrypted: true
`)
	decrypt := func(s string) (string, error) {
		return strings.Replace(s, "cipher", "plain", 1), nil
	}
	d, err := Load(path, decrypt)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	target, err := d.ResolveShell("web-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Secret != "plaintext" {
		t.Errorf("secret = %q, want decrypted value", target.Secret)
	}
}

func TestResolveShell_UnknownHost(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := d.ResolveShell("ghost"); err == nil {
		t.Fatal("expected resolve to fail")
	}
}

func TestClusterClients_UnknownCluster(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, _, err := d.ClusterClients("ghost"); err == nil {
		t.Fatal("expected unknown cluster error")
	}
}

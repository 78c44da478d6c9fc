package directory

import (
	"context"
	"fmt"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClusterEntry is one cluster in the directory file.
type ClusterEntry struct {
	ID         string `yaml:"id" json:"id"`
	Kubeconfig string `yaml:"kubeconfig" json:"-"`
	InCluster  bool   `yaml:"in_cluster" json:"in_cluster"`
}

// Cluster wraps a cluster entry with lazily built API clients.
type Cluster struct {
	entry ClusterEntry

	mu         sync.Mutex
	clientset  kubernetes.Interface
	restConfig *rest.Config
}

func (c *Cluster) clients() (kubernetes.Interface, *rest.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clientset != nil {
		return c.clientset, c.restConfig, nil
	}

	var cfg *rest.Config
	var err error
	if c.entry.InCluster {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("in-cluster config for %s: %w", c.entry.ID, err)
		}
	} else {
		kubeconfig := c.entry.Kubeconfig
		if kubeconfig == "" {
			kubeconfig = clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, nil, fmt.Errorf("kubeconfig for %s: %w", c.entry.ID, err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("clientset for %s: %w", c.entry.ID, err)
	}

	c.clientset = clientset
	c.restConfig = cfg
	return c.clientset, c.restConfig, nil
}

// PodInfo is a pod summary for the console's target picker.
type PodInfo struct {
	Name       string   `json:"name"`
	Namespace  string   `json:"namespace"`
	Phase      string   `json:"phase"`
	Containers []string `json:"containers"`
}

// ListPods returns pods in the namespace of the given cluster. Namespace ""
// lists all namespaces.
func (d *Directory) ListPods(ctx context.Context, clusterID, namespace string) ([]PodInfo, error) {
	clientset, _, err := d.ClusterClients(clusterID)
	if err != nil {
		return nil, err
	}

	pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods in cluster %s: %w", clusterID, err)
	}

	out := make([]PodInfo, 0, len(pods.Items))
	for _, pod := range pods.Items {
		info := PodInfo{
			Name:      pod.Name,
			Namespace: pod.Namespace,
			Phase:     string(pod.Status.Phase),
		}
		for _, c := range pod.Spec.Containers {
			info.Containers = append(info.Containers, c.Name)
		}
		out = append(out, info)
	}
	return out, nil
}

// Package secretref resolves configuration values that point at Kubernetes
// Secrets instead of carrying the secret inline.
//
// A reference has the form secret://<namespace>/<name>/<key>. The namespace
// segment may be empty (secret:///<name>/<key>), in which case the resolver's
// default namespace is used.
package secretref

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Scheme is the prefix that marks a value as a secret reference.
const Scheme = "secret://"

// Ref identifies a single key inside a Kubernetes Secret.
type Ref struct {
	Namespace string
	Name      string
	Key       string
}

// String renders the reference in its secret:// form.
func (r Ref) String() string {
	return Scheme + r.Namespace + "/" + r.Name + "/" + r.Key
}

// IsRef reports whether v uses the secret reference scheme.
func IsRef(v string) bool {
	return strings.HasPrefix(v, Scheme)
}

// Parse parses a secret reference. It fails if v does not use the scheme or
// if the name or key segment is missing.
func Parse(v string) (Ref, error) {
	if !IsRef(v) {
		return Ref{}, fmt.Errorf("not a secret reference: missing %q prefix", Scheme)
	}
	parts := strings.Split(strings.TrimPrefix(v, Scheme), "/")
	if len(parts) != 3 {
		return Ref{}, fmt.Errorf("invalid secret reference %q: want %snamespace/name/key", v, Scheme)
	}
	ref := Ref{Namespace: parts[0], Name: parts[1], Key: parts[2]}
	if ref.Name == "" || ref.Key == "" {
		return Ref{}, fmt.Errorf("invalid secret reference %q: name and key are required", v)
	}
	return ref, nil
}

// Resolver resolves secret references into their actual string values.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (string, error)
}

// K8sResolver reads secret values from Kubernetes Secrets.
type K8sResolver struct {
	client           kubernetes.Interface
	defaultNamespace string
}

// NewK8sResolver creates a Resolver backed by the Kubernetes API.
// The defaultNamespace is used when a Ref does not specify a namespace.
func NewK8sResolver(client kubernetes.Interface, defaultNamespace string) *K8sResolver {
	return &K8sResolver{
		client:           client,
		defaultNamespace: defaultNamespace,
	}
}

// NewInClusterResolver builds a K8sResolver from the pod's service account.
func NewInClusterResolver(defaultNamespace string) (*K8sResolver, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("creating in-cluster config (is the bootstrap running in a pod?): %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return NewK8sResolver(clientset, defaultNamespace), nil
}

// Resolve reads the referenced key from the Kubernetes Secret.
func (r *K8sResolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	ns := ref.Namespace
	if ns == "" {
		ns = r.defaultNamespace
	}

	secret, err := r.client.CoreV1().Secrets(ns).Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get Secret %s/%s: %w", ns, ref.Name, err)
	}

	data, ok := secret.Data[ref.Key]
	if !ok {
		return "", fmt.Errorf("key %q not found in Secret %s/%s", ref.Key, ns, ref.Name)
	}

	return string(data), nil
}

// ResolveAll replaces every value in fields that is a secret reference with
// the resolved secret data. Fields holding plain values are left untouched.
// The map keys are only used in error messages.
func ResolveAll(ctx context.Context, resolver Resolver, fields map[string]*string) error {
	for name, field := range fields {
		if field == nil || !IsRef(*field) {
			continue
		}
		ref, err := Parse(*field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		value, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolving %s from %s: %w", name, ref, err)
		}
		*field = value
	}
	return nil
}

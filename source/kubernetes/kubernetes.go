// Package kubernetes provides a document.Source backed by one key of a
// Kubernetes ConfigMap or Secret.
package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// DefaultRetryInterval is the pause before re-establishing a broken watch.
const DefaultRetryInterval = time.Second

// ResourceType specifies the type of Kubernetes resource to watch.
type ResourceType int

const (
	// ConfigMap watches a ConfigMap resource.
	ConfigMap ResourceType = iota
	// Secret watches a Secret resource.
	Secret
)

// String returns the resource kind.
func (rt ResourceType) String() string {
	if rt == Secret {
		return "secret"
	}
	return "configmap"
}

var errWatchClosed = errors.New("watch channel closed")

// Source watches a data key of a ConfigMap or Secret and writes documents
// back to it.
type Source struct {
	client       kubernetes.Interface
	namespace    string
	name         string
	key          string
	resourceType ResourceType
	retry        time.Duration
}

// Option configures a Source.
type Option func(*Source)

// WithResourceType sets the resource type to watch.
// Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(s *Source) {
		s.resourceType = rt
	}
}

// WithRetryInterval sets the pause before re-establishing a broken watch.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Source) {
		s.retry = d
	}
}

// New creates a Source for key in the named resource.
func New(client kubernetes.Interface, namespace, name, key string, opts ...Option) *Source {
	s := &Source{
		client:       client,
		namespace:    namespace,
		name:         name,
		key:          key,
		resourceType: ConfigMap,
		retry:        DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch emits the key's value now and whenever the resource changes. A
// broken watch is re-established from a fresh read.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			err := s.watchLoop(ctx, out)
			if ctx.Err() != nil || err == nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retry):
			}
		}
	}()

	return out, nil
}

func (s *Source) watchLoop(ctx context.Context, out chan<- []byte) error {
	value, resourceVersion, err := s.getValue(ctx)
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	if value != nil {
		select {
		case out <- value:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	opts := metav1.ListOptions{
		FieldSelector:   fmt.Sprintf("metadata.name=%s", s.name),
		ResourceVersion: resourceVersion,
	}

	var watcher watch.Interface
	if s.resourceType == ConfigMap {
		watcher, err = s.client.CoreV1().ConfigMaps(s.namespace).Watch(ctx, opts)
	} else {
		watcher, err = s.client.CoreV1().Secrets(s.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return errWatchClosed
			}

			switch event.Type {
			case watch.Error:
				return fmt.Errorf("watch error: %v", apierrors.FromObject(event.Object))
			case watch.Deleted:
				continue
			}

			value := s.extractValue(event.Object)
			if value == nil {
				continue
			}
			select {
			case out <- value:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Source) getValue(ctx context.Context) ([]byte, string, error) {
	if s.resourceType == ConfigMap {
		cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
		if err != nil {
			return nil, "", err
		}
		return s.extractValue(cm), cm.ResourceVersion, nil
	}

	secret, err := s.client.CoreV1().Secrets(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		return nil, "", err
	}
	return s.extractValue(secret), secret.ResourceVersion, nil
}

// extractValue returns the key's value from the watched resource, or nil
// for other objects and resources without the key.
func (s *Source) extractValue(obj any) []byte {
	if s.resourceType == ConfigMap {
		if cm, ok := obj.(*corev1.ConfigMap); ok && cm.Name == s.name {
			if v, ok := cm.Data[s.key]; ok {
				return []byte(v)
			}
		}
		return nil
	}
	if secret, ok := obj.(*corev1.Secret); ok && secret.Name == s.name {
		return secret.Data[s.key]
	}
	return nil
}

// Write stores data under the key, creating the resource when it is
// missing. Other keys are left alone.
func (s *Source) Write(ctx context.Context, data []byte) error {
	var err error
	if s.resourceType == ConfigMap {
		err = s.writeConfigMap(ctx, data)
	} else {
		err = s.writeSecret(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s, err)
	}
	return nil
}

func (s *Source) writeConfigMap(ctx context.Context, data []byte) error {
	client := s.client.CoreV1().ConfigMaps(s.namespace)
	cm, err := client.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = client.Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: s.name, Namespace: s.namespace},
			Data:       map[string]string{s.key: string(data)},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[s.key] = string(data)
	_, err = client.Update(ctx, cm, metav1.UpdateOptions{})
	return err
}

func (s *Source) writeSecret(ctx context.Context, data []byte) error {
	client := s.client.CoreV1().Secrets(s.namespace)
	secret, err := client.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = client.Create(ctx, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: s.name, Namespace: s.namespace},
			Data:       map[string][]byte{s.key: data},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if secret.Data == nil {
		secret.Data = map[string][]byte{}
	}
	secret.Data[s.key] = data
	_, err = client.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

// String names the source.
func (s *Source) String() string {
	return fmt.Sprintf("kubernetes:%s/%s/%s#%s", s.resourceType, s.namespace, s.name, s.key)
}

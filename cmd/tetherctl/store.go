package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/go-zookeeper/zk"
	consulapi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	goredis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/zoobzio/tether/document"
	"github.com/zoobzio/tether/kvo"
	"github.com/zoobzio/tether/source/consul"
	"github.com/zoobzio/tether/source/etcd"
	"github.com/zoobzio/tether/source/firestore"
	"github.com/zoobzio/tether/source/kubernetes"
	"github.com/zoobzio/tether/source/nats"
	"github.com/zoobzio/tether/source/postgres"
	"github.com/zoobzio/tether/source/redis"
	"github.com/zoobzio/tether/source/zookeeper"
)

const dialTimeout = 5 * time.Second

// store is the document the view is bound to.
type store interface {
	kvo.Observable
	// Name identifies the store in logs.
	Name() string
	// Ref is the reference bindings hold.
	Ref() kvo.Ref
	// Watch follows changes until ctx is cancelled.
	Watch(ctx context.Context) error
	Save(ctx context.Context) error
	Close()
}

// fileStore is a document backed by a local file.
type fileStore struct {
	*document.File
}

func (s fileStore) Name() string                    { return s.Path() }
func (s fileStore) Ref() kvo.Ref                    { return kvo.Weak(s.File) }
func (s fileStore) Watch(ctx context.Context) error { return s.Start(ctx) }
func (s fileStore) Save(context.Context) error      { return s.File.Save() }
func (s fileStore) Close()                          {}

// remoteStore is a document fed by a remote key. It is started on open so
// the view sees its contents before Watch.
type remoteStore struct {
	*document.Remote
	cancel  context.CancelFunc
	closers []func()
}

func (s *remoteStore) Ref() kvo.Ref {
	return kvo.Weak(s.Remote)
}

func (s *remoteStore) Watch(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *remoteStore) Close() {
	s.cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStore opens the document named by cfg.
func openStore(ctx context.Context, cfg Config) (store, error) {
	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}

	if cfg.Source == "file" {
		f, err := document.Open(cfg.File, codec)
		if err != nil {
			return nil, err
		}
		f.Debounce(cfg.Debounce)
		return fileStore{f}, nil
	}

	src, closers, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s := &remoteStore{
		Remote:  document.NewRemote(src, codec).Debounce(cfg.Debounce),
		cancel:  cancel,
		closers: closers,
	}
	if err := s.Start(watchCtx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openSource connects to the remote store named by cfg.Source. The
// returned closers release the client.
func openSource(ctx context.Context, cfg Config) (document.Source, []func(), error) {
	switch cfg.Source {
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})
		return redis.New(client, cfg.Key), []func(){func() { client.Close() }}, nil

	case "etcd":
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(cfg.Addr, ","),
			DialTimeout: dialTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect etcd: %w", err)
		}
		return etcd.New(client, cfg.Key), []func(){func() { client.Close() }}, nil

	case "consul":
		client, err := consulapi.NewClient(&consulapi.Config{Address: cfg.Addr})
		if err != nil {
			return nil, nil, fmt.Errorf("connect consul: %w", err)
		}
		return consul.New(client, cfg.Key), nil, nil

	case "nats":
		nc, err := natsgo.Connect(cfg.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		js, err := jetstream.New(nc)
		if err == nil {
			var kv jetstream.KeyValue
			kv, err = js.KeyValue(ctx, cfg.Bucket)
			if err == nil {
				return nats.New(kv, cfg.Key), []func(){nc.Close}, nil
			}
		}
		nc.Close()
		return nil, nil, fmt.Errorf("open nats bucket %s: %w", cfg.Bucket, err)

	case "zookeeper":
		conn, _, err := zk.Connect(strings.Split(cfg.Addr, ","), dialTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect zookeeper: %w", err)
		}
		return zookeeper.New(conn, cfg.Key), []func(){conn.Close}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.New(pool, cfg.Channel, cfg.Key), []func(){pool.Close}, nil

	case "kubernetes":
		namespace, name, key, err := splitKey(cfg.Key, 3)
		if err != nil {
			return nil, nil, err
		}
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = cfg.Addr
		restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("load kubeconfig: %w", err)
		}
		client, err := k8s.NewForConfig(restConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect kubernetes: %w", err)
		}
		return kubernetes.New(client, namespace, name, key), nil, nil

	case "firestore":
		collection, doc, field, err := splitKey(cfg.Key, 2)
		if err != nil {
			return nil, nil, err
		}
		client, err := gcfirestore.NewClient(ctx, cfg.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect firestore: %w", err)
		}
		var opts []firestore.Option
		if field != "" {
			opts = append(opts, firestore.WithField(field))
		}
		return firestore.New(client, collection, doc, opts...), []func(){func() { client.Close() }}, nil

	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

var errKeyFormat = errors.New("invalid TETHER_KEY")

// splitKey splits a slash-separated key into n non-empty parts. With n == 2
// an optional "#field" suffix is returned as the third part.
func splitKey(key string, n int) (string, string, string, error) {
	var field string
	if n == 2 {
		key, field, _ = strings.Cut(key, "#")
	}
	parts := strings.Split(key, "/")
	if len(parts) != n {
		return "", "", "", fmt.Errorf("%w: %q needs %d slash-separated parts", errKeyFormat, key, n)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", fmt.Errorf("%w: %q has an empty part", errKeyFormat, key)
		}
	}
	if n == 2 {
		return parts[0], parts[1], field, nil
	}
	return parts[0], parts[1], parts[2], nil
}

package dht

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// NatsKV is a KV backed by a NATS JetStream KeyValue bucket. Sub starts
// a jetstream.KeyWatcher over keyPrefix (rendered as a NATS wildcard)
// and fans its updates into Handler.OnSet/OnDel; Unsub stops it.
type NatsKV struct {
	bucket jetstream.KeyValue

	mu       sync.Mutex
	watchers map[string]jetstream.KeyWatcher
	handler  Handler
}

// NewNatsKV wires a KV to an already-bound JetStream KeyValue bucket.
func NewNatsKV(bucket jetstream.KeyValue) *NatsKV {
	return &NatsKV{bucket: bucket, watchers: make(map[string]jetstream.KeyWatcher)}
}

func (k *NatsKV) SetHandler(h Handler) { k.handler = h }

func (k *NatsKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.bucket.Put(ctx, key, value)
	return err
}

func (k *NatsKV) Del(ctx context.Context, key string) error {
	return k.bucket.Delete(ctx, key)
}

func (k *NatsKV) Sub(ctx context.Context, keyPrefix string) error {
	k.mu.Lock()
	if _, ok := k.watchers[keyPrefix]; ok {
		k.mu.Unlock()
		return nil
	}
	watcher, err := k.bucket.Watch(ctx, keyPrefix+">")
	if err != nil {
		k.mu.Unlock()
		return err
	}
	k.watchers[keyPrefix] = watcher
	k.mu.Unlock()

	go k.pump(ctx, watcher)
	return nil
}

func (k *NatsKV) pump(ctx context.Context, watcher jetstream.KeyWatcher) {
	for entry := range watcher.Updates() {
		if entry == nil {
			continue
		}
		switch entry.Operation() {
		case jetstream.KeyValuePut:
			if k.handler != nil {
				k.handler.OnSet(entry.Key(), entry.Revision(), entry.Value())
			}
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			if k.handler != nil {
				k.handler.OnDel(entry.Key(), entry.Revision())
			}
		}
	}
}

func (k *NatsKV) Unsub(ctx context.Context, keyPrefix string) error {
	k.mu.Lock()
	watcher, ok := k.watchers[keyPrefix]
	delete(k.watchers, keyPrefix)
	k.mu.Unlock()
	if !ok {
		return nil
	}
	return watcher.Stop()
}

func (k *NatsKV) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	var errs []error
	for prefix, watcher := range k.watchers {
		if err := watcher.Stop(); err != nil {
			slog.Warn("jetstream watcher stop failed", slog.String("prefix", prefix), slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	k.watchers = make(map[string]jetstream.KeyWatcher)
	return errors.Join(errs...)
}

// Package dht abstracts the cluster directory KV store used to mirror
// peer and track presence across nodes: Set/Del publish a key's value,
// Sub/Unsub register interest in a key prefix, and OnSet/OnDel deliver
// the resulting change events. The routing core treats this purely as
// an interface; the mesh overlay that actually replicates it is an
// external collaborator.
package dht

import "context"

// Handler receives directory change events for keys this node has
// subscribed to.
type Handler interface {
	OnSet(key string, version uint64, value []byte)
	OnDel(key string, version uint64)
}

// KV is the Cluster DHT KV abstraction consumed by the routing core.
type KV interface {
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Sub(ctx context.Context, keyPrefix string) error
	Unsub(ctx context.Context, keyPrefix string) error

	SetHandler(h Handler)
	Close() error
}

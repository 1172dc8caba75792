// Package pubsub abstracts the cluster-wide pub/sub substrate that
// carries channel media and feedback between nodes. The routing core
// never talks to the overlay directly; it consumes this interface,
// which is implemented here both by an in-memory bus (for tests and
// single-node deployments) and a NATS-backed one.
package pubsub

import (
	"context"

	"github.com/relaymesh/media-cluster/internal/clusterid"
)

// Handler receives events delivered on a channel this node has
// subscribed to.
type Handler interface {
	OnChannelData(channel clusterid.ChannelId, seq uint64, data []byte)
	OnChannelFeedback(channel clusterid.ChannelId, feedback []byte)
	OnChannelSubscribed(channel clusterid.ChannelId)
	OnChannelUnsubscribed(channel clusterid.ChannelId)
}

// Bus is the Cluster Pub/Sub abstraction consumed by the routing core:
// publish-side operations (PubStart/PubStop/PubData/FeedbackAuto) and
// subscribe-side operations (SubStart/SubStop), with events delivered
// to a Handler registered up front.
type Bus interface {
	PubStart(ctx context.Context, channel clusterid.ChannelId) error
	PubStop(ctx context.Context, channel clusterid.ChannelId) error
	PubData(ctx context.Context, channel clusterid.ChannelId, seq uint64, data []byte) error
	FeedbackAuto(ctx context.Context, channel clusterid.ChannelId, feedback []byte) error

	SubStart(ctx context.Context, channel clusterid.ChannelId) error
	SubStop(ctx context.Context, channel clusterid.ChannelId) error

	SetHandler(h Handler)
	Close() error
}

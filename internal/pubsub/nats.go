package pubsub

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/relaymesh/media-cluster/internal/clusterid"
)

// NatsBus is a Bus backed by NATS core pub/sub. Each channel maps to a
// pair of subjects, one for media data and one for feedback; PubData
// wire-frames the sequence number ahead of the payload since NATS
// messages carry no ordering guarantee of their own beyond per-subject
// delivery order from a single publisher.
type NatsBus struct {
	conn    *nats.Conn
	handler Handler

	subs map[clusterid.ChannelId][]*nats.Subscription
}

// NewNatsBus wires a Bus to an already-connected *nats.Conn. The caller
// owns the connection's lifecycle beyond Close, which only unsubscribes.
func NewNatsBus(conn *nats.Conn) *NatsBus {
	return &NatsBus{conn: conn, subs: make(map[clusterid.ChannelId][]*nats.Subscription)}
}

func (b *NatsBus) SetHandler(h Handler) { b.handler = h }

func dataSubject(ch clusterid.ChannelId) string {
	return fmt.Sprintf("media.channel.%d.data", uint64(ch))
}

func feedbackSubject(ch clusterid.ChannelId) string {
	return fmt.Sprintf("media.channel.%d.feedback", uint64(ch))
}

// PubStart is a no-op for NatsBus: core NATS has no explicit publisher
// registration, only subjects. The call is kept on the interface because
// the DHT-mirrored pubsub semantics the routing core expects treat
// PubStart/PubStop as channel lifecycle markers, not transport setup.
func (b *NatsBus) PubStart(ctx context.Context, channel clusterid.ChannelId) error { return nil }
func (b *NatsBus) PubStop(ctx context.Context, channel clusterid.ChannelId) error  { return nil }

func (b *NatsBus) PubData(ctx context.Context, channel clusterid.ChannelId, seq uint64, data []byte) error {
	frame := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(frame[:8], seq)
	copy(frame[8:], data)
	return b.conn.Publish(dataSubject(channel), frame)
}

func (b *NatsBus) FeedbackAuto(ctx context.Context, channel clusterid.ChannelId, feedback []byte) error {
	return b.conn.Publish(feedbackSubject(channel), feedback)
}

func (b *NatsBus) SubStart(ctx context.Context, channel clusterid.ChannelId) error {
	dataSub, err := b.conn.Subscribe(dataSubject(channel), func(msg *nats.Msg) {
		if b.handler == nil || len(msg.Data) < 8 {
			return
		}
		seq := binary.BigEndian.Uint64(msg.Data[:8])
		b.handler.OnChannelData(channel, seq, msg.Data[8:])
	})
	if err != nil {
		return err
	}
	fbSub, err := b.conn.Subscribe(feedbackSubject(channel), func(msg *nats.Msg) {
		if b.handler != nil {
			b.handler.OnChannelFeedback(channel, msg.Data)
		}
	})
	if err != nil {
		_ = dataSub.Unsubscribe()
		return err
	}
	b.subs[channel] = []*nats.Subscription{dataSub, fbSub}
	if b.handler != nil {
		b.handler.OnChannelSubscribed(channel)
	}
	return nil
}

func (b *NatsBus) SubStop(ctx context.Context, channel clusterid.ChannelId) error {
	for _, sub := range b.subs[channel] {
		if err := sub.Unsubscribe(); err != nil {
			slog.WarnContext(ctx, "nats unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	delete(b.subs, channel)
	if b.handler != nil {
		b.handler.OnChannelUnsubscribed(channel)
	}
	return nil
}

func (b *NatsBus) Close() error {
	for ch := range b.subs {
		_ = b.SubStop(context.Background(), ch)
	}
	return nil
}

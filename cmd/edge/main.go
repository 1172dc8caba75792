package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pitabwire/frame"
	frameconfig "github.com/pitabwire/frame/config"

	edgeconfig "github.com/relaymesh/media-cluster/config"
	"github.com/relaymesh/media-cluster/internal/cluster"
	"github.com/relaymesh/media-cluster/internal/connectutil"
	"github.com/relaymesh/media-cluster/internal/dht"
	"github.com/relaymesh/media-cluster/internal/pubsub"
	"github.com/relaymesh/media-cluster/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := frameconfig.LoadWithOIDC[edgeconfig.EdgeConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("media-cluster-edge"),
		frame.WithRegisterServerOauth2Client(),
	)
	defer srv.Stop(ctx)

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatalf("connecting to nats: %v", err)
	}
	defer nc.Close()

	bus := pubsub.NewNatsBus(nc)
	defer bus.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatalf("creating jetstream context: %v", err)
	}
	directoryBucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: "room-directory"})
	if err != nil {
		log.Fatalf("binding room-directory bucket: %v", err)
	}
	directory := dht.NewNatsKV(directoryBucket)
	defer directory.Close()

	udpConn, err := net.ListenUDP("udp", mustResolveUDPAddr(cfg.UDPListenAddr))
	if err != nil {
		log.Fatalf("binding udp socket: %v", err)
	}
	defer udpConn.Close()

	group, err := worker.NewGroup(udpConn, cfg.WebRTCConfig())
	if err != nil {
		log.Fatalf("creating worker group: %v", err)
	}
	engine := cluster.NewEngine[int](cfg.AudioMixerSlots)

	// bus and directory are handed to the per-room signalling adapter
	// (outside this core) which drives Engine.OnEndpointControl and
	// Engine.OnSdnEvent from their delivered events.
	_ = bus
	_ = directory

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fmt.Sprintf("rooms=%d tasks=%d", engine.RoomCount(), group.TaskCount())))
	})

	srv.Init(ctx, frame.WithHTTPHandler(connectutil.H2CHandler(mux)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

func mustResolveUDPAddr(addr string) *net.UDPAddr {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Fatalf("resolving udp listen addr %q: %v", addr, err)
	}
	return resolved
}

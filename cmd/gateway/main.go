package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	frameconfig "github.com/pitabwire/frame/config"

	gwconfig "github.com/relaymesh/media-cluster/config"
	"github.com/relaymesh/media-cluster/internal/connectutil"
	"github.com/relaymesh/media-cluster/internal/gateway"
	"github.com/relaymesh/media-cluster/internal/telemetry"
)

// httpEdgeRPCClient relays a signalling method to a node's HTTP
// address as a plain POST. A generated Connect-RPC client, once this
// repository has proto-generated service stubs, is a drop-in
// replacement for EdgeRPCClient; nothing in Dispatch depends on the
// transport being raw HTTP.
type httpEdgeRPCClient struct {
	client *http.Client
}

func (c *httpEdgeRPCClient) Forward(ctx context.Context, nodeAddr, method string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+nodeAddr+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func main() {
	ctx := context.Background()

	cfg, err := frameconfig.LoadWithOIDC[gwconfig.GatewayConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("media-cluster-gateway"),
		frame.WithRegisterServerOauth2Client(),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	routeEvents := telemetry.NewChannel[gateway.RouteEvent](cfg.TelemetryQueueSize, func(ctx context.Context, ev gateway.RouteEvent) error {
		return pool.Submit(ctx, func() {
			log.Printf("route event: kind=%d remote=%s dest=%s after_ms=%d err=%s", ev.Kind, ev.RemoteIP, ev.DestNode, ev.AfterMs, ev.Err)
		})
	})

	selector := buildSelector(&cfg)
	rpc := &httpEdgeRPCClient{client: &http.Client{}}
	dispatch := gateway.NewDispatch(nil, selector, rpc, routeEvents, time.Duration(cfg.RouteTimeoutMs)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/route/", func(w http.ResponseWriter, r *http.Request) {
		handleRoute(w, r, dispatch)
	})

	srv.Init(ctx, frame.WithHTTPHandler(connectutil.H2CHandler(mux)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

func buildSelector(cfg *gwconfig.GatewayConfig) *gateway.StaticSelector {
	pools := cfg.NodePools()
	return gateway.NewStaticSelector(map[gateway.ServiceKind][]string{
		gateway.ServiceWhip:      pools["whip"],
		gateway.ServiceWhep:      pools["whep"],
		gateway.ServiceWebrtc:    pools["webrtc"],
		gateway.ServiceRtpEngine: pools["rtp_engine"],
	})
}

// handleRoute is a transport-agnostic stand-in for the generated
// Connect-RPC service handlers this binary would otherwise register
// per signalling method; it exists so the dispatcher in this core is
// reachable over HTTP without a proto toolchain in this exercise.
func handleRoute(w http.ResponseWriter, r *http.Request, dispatch *gateway.Dispatch) {
	method := r.URL.Path[len("/route/"):]
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	remoteIP := r.Header.Get("X-Forwarded-For")
	if remoteIP == "" {
		remoteIP = r.RemoteAddr
	}

	kind, ok := parseServiceKind(method)
	if !ok {
		http.Error(w, "unknown service kind for method "+method, http.StatusBadRequest)
		return
	}

	resp, err := dispatch.Route(r.Context(), kind, remoteIP, method, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	_, _ = w.Write(resp)
}

func parseServiceKind(method string) (gateway.ServiceKind, bool) {
	switch method {
	case "whip_connect":
		return gateway.ServiceWhip, true
	case "whep_connect":
		return gateway.ServiceWhep, true
	case "webrtc_connect":
		return gateway.ServiceWebrtc, true
	case "rtp_engine_create_offer", "rtp_engine_create_answer":
		return gateway.ServiceRtpEngine, true
	default:
		return 0, false
	}
}

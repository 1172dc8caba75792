package config

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pitabwire/frame/config"
)

// EdgeConfig holds configuration for an edge node: the process that
// binds UDP sockets, terminates WebRTC transport, and runs the Room
// Cluster Engine for the rooms whose traffic lands on it.
type EdgeConfig struct {
	config.ConfigurationDefault
	NodeId              string `envDefault:""                              env:"NODE_ID"`
	STUNServers         string `envDefault:"stun:stun.l.google.com:19302" env:"STUN_SERVERS"`
	TURNServers         string `envDefault:""                              env:"TURN_SERVERS"`
	TURNUsername        string `envDefault:""                              env:"TURN_USERNAME"`
	TURNPassword        string `envDefault:""                              env:"TURN_PASSWORD"`
	UDPListenAddr       string `envDefault:"0.0.0.0:0"                     env:"UDP_LISTEN_ADDR"`
	UDPAltListenAddrs   string `envDefault:""                              env:"UDP_ALT_LISTEN_ADDRS"`
	NatsURL             string `envDefault:"nats://127.0.0.1:4222"         env:"NATS_URL"`
	MaxRoomsPerNode     int    `envDefault:"1000"                          env:"MAX_ROOMS_PER_NODE"`
	AudioMixerSlots     int    `envDefault:"3"                             env:"AUDIO_MIXER_SLOTS"`
	RTPEngineExternalIP string `envDefault:""                              env:"RTP_ENGINE_EXTERNAL_IP"`
}

// WebRTCConfig builds a webrtc.Configuration from the STUN/TURN settings.
func (c *EdgeConfig) WebRTCConfig() webrtc.Configuration {
	return buildWebRTCConfig(c.STUNServers, c.TURNServers, c.TURNUsername, c.TURNPassword)
}

// GatewayConfig holds configuration for the gateway tier: the process
// that selects an edge node per incoming signalling request and
// relays the RPC, without terminating any media itself.
type GatewayConfig struct {
	config.ConfigurationDefault
	ListenAddr         string `envDefault:"0.0.0.0:8443"     env:"GATEWAY_LISTEN_ADDR"`
	GeoIPDatabasePath  string `envDefault:""                 env:"GEOIP_DB_PATH"`
	RouteTimeoutMs     int    `envDefault:"5000"             env:"ROUTE_TIMEOUT_MS"`
	TelemetryQueueSize int    `envDefault:"100"              env:"TELEMETRY_QUEUE_SIZE"`
	TelemetryQueueRef  string `envDefault:"route-events"     env:"TELEMETRY_QUEUE_REF"`
	WhipNodes          string `envDefault:""                 env:"WHIP_NODES"`
	WhepNodes          string `envDefault:""                 env:"WHEP_NODES"`
	WebrtcNodes        string `envDefault:""                 env:"WEBRTC_NODES"`
	RtpEngineNodes     string `envDefault:""                 env:"RTP_ENGINE_NODES"`
}

// NodePools splits the comma-separated node-pool fields into the shape
// gateway.NewStaticSelector expects.
func (c *GatewayConfig) NodePools() map[string][]string {
	return map[string][]string{
		"whip":       splitNonEmpty(c.WhipNodes),
		"whep":       splitNonEmpty(c.WhepNodes),
		"webrtc":     splitNonEmpty(c.WebrtcNodes),
		"rtp_engine": splitNonEmpty(c.RtpEngineNodes),
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// buildWebRTCConfig creates a webrtc.Configuration from STUN/TURN server strings.
func buildWebRTCConfig(stunServers, turnServers, turnUsername, turnPassword string) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stunServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: strings.Split(stunServers, ","),
		})
	}
	if turnServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           strings.Split(turnServers, ","),
			Username:       turnUsername,
			Credential:     turnPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{ICEServers: iceServers}
}

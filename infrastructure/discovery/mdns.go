// Package discovery advertises the server on the local network so clients
// can find a room server without knowing its address.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ProtocolVersion is published in the TXT record.
const ProtocolVersion = "1"

// Config describes the advertised service.
type Config struct {
	Service  string
	Instance string
	Domain   string
	Port     int
	Path     string
	// IPs overrides address detection.
	IPs []net.IP
	// HostName must be fully qualified when set.
	HostName string
}

// Advertiser owns a running mDNS responder.
type Advertiser struct {
	server *mdns.Server
	logger *zap.Logger
}

// TXTRecords returns the key=value pairs published with the service.
func TXTRecords(path string) []string {
	if path == "" {
		path = "/ws"
	}
	return []string{"path=" + path, "version=" + ProtocolVersion}
}

// NewService builds the service zone for cfg.
func NewService(cfg Config) (*mdns.MDNSService, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	instance := cfg.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = "sketchroom-" + strings.Split(host, ".")[0]
	}
	ips := cfg.IPs
	if len(ips) == 0 && cfg.HostName == "" {
		ips = []net.IP{firstIPv4()}
	}

	service, err := mdns.NewMDNSService(instance, cfg.Service, cfg.Domain, cfg.HostName, cfg.Port, ips, TXTRecords(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Advertise starts answering mDNS queries for cfg.
func Advertise(cfg Config, logger *zap.Logger) (*Advertiser, error) {
	service, err := NewService(cfg)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	logger.Info("Advertising on local network",
		zap.String("instance", service.Instance),
		zap.String("service", service.Service),
		zap.Int("port", service.Port),
	)
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	a.logger.Info("Stopping mDNS advertisement")
	return a.server.Shutdown()
}

// firstIPv4 returns the first non-loopback IPv4 address that is up.
func firstIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}

package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	Instance string
	Port     int
	Model    string

	// TXT adds records beyond model and proto.
	TXT map[string]string

	// Interfaces limits announcements; nil means all.
	Interfaces []net.Interface

	// TTL in seconds; zero keeps the zeroconf default.
	TTL uint32
}

// Advertiser announces one receiver service.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// Announce starts advertising. Calling it again replaces the announcement.
func (a *Advertiser) Announce(cfg AdvertiserConfig) error {
	if cfg.Instance == "" {
		return fmt.Errorf("advertise: instance name required")
	}
	if cfg.Port <= 0 {
		return fmt.Errorf("advertise: invalid port %d", cfg.Port)
	}

	var opts []zeroconf.ServerOption
	if cfg.TTL > 0 {
		opts = append(opts, zeroconf.TTL(cfg.TTL))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownLocked()

	server, err := zeroconf.Register(cfg.Instance, ServiceType, Domain, cfg.Port,
		encodeTXT(cfg.Model, cfg.TXT), cfg.Interfaces, opts...)
	if err != nil {
		return fmt.Errorf("failed to register receiver service: %w", err)
	}
	a.server = server
	return nil
}

// Shutdown withdraws the announcement. It is safe to call repeatedly.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownLocked()
}

func (a *Advertiser) shutdownLocked() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

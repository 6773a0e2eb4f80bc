package discovery

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/rfidhub/internal/infrastructure/config"
)

// maxInstanceNameLen is the DNS label limit for the instance name.
const maxInstanceNameLen = 63

// ErrAlreadyAdvertising is returned by Start on a running advertiser.
var ErrAlreadyAdvertising = errors.New("discovery: already advertising")

// Info describes the advertised HTTP facade.
type Info struct {
	HubID   string
	Version string
	Port    int
	TLS     bool

	// Readers is the registry size at registration time.
	Readers int
}

// server is the part of *zeroconf.Server the advertiser uses.
type server interface {
	SetText(txt []string)
	Shutdown()
}

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, txt, ifaces)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Advertiser publishes the hub as a DNS-SD service over mDNS.
type Advertiser struct {
	cfg      config.DiscoveryConfig
	register registerFunc

	mu     sync.Mutex
	server server
}

// NewAdvertiser creates an advertiser for cfg. Nothing is sent until Start.
func NewAdvertiser(cfg config.DiscoveryConfig) *Advertiser {
	return &Advertiser{cfg: cfg, register: zeroconfRegister}
}

// Start registers the service on all multicast interfaces.
func (a *Advertiser) Start(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return ErrAlreadyAdvertising
	}

	srv, err := a.register(a.instanceName(info), a.cfg.Service, a.domain(), info.Port, TXTRecords(info), nil)
	if err != nil {
		return fmt.Errorf("discovery: registering %s: %w", a.cfg.Service, err)
	}
	a.server = srv
	return nil
}

// Update replaces the TXT records of the running advertisement.
func (a *Advertiser) Update(info Info) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.SetText(TXTRecords(info))
	}
}

// Stop withdraws the advertisement. Stopping a stopped advertiser is a no-op.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func (a *Advertiser) instanceName(info Info) string {
	name := a.cfg.Instance
	if name == "" {
		name = info.HubID
	}
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return name
}

func (a *Advertiser) domain() string {
	if a.cfg.Domain == "" {
		return "local."
	}
	return a.cfg.Domain
}

// TXTRecords encodes info as sorted key=value strings.
func TXTRecords(info Info) []string {
	kv := map[string]string{
		"id":      info.HubID,
		"version": info.Version,
		"path":    "/api/v1",
		"readers": fmt.Sprint(info.Readers),
	}
	if info.TLS {
		kv["tls"] = "1"
	} else {
		kv["tls"] = "0"
	}

	out := make([]string, 0, len(kv))
	for k, v := range kv {
		if v == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

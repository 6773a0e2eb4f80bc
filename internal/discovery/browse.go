package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// Hub is an rfidhub instance found on the network.
type Hub struct {
	Instance string
	Host     string
	Port     int
	Addrs    []net.IP
	TXT      map[string]string
}

// URL returns the base URL of the hub's HTTP facade.
func (h Hub) URL() string {
	scheme := "http"
	if h.TXT["tls"] == "1" {
		scheme = "https"
	}
	host := strings.TrimSuffix(h.Host, ".")
	if len(h.Addrs) > 0 {
		host = h.Addrs[0].String()
	}
	path := h.TXT["path"]
	if path == "" {
		path = "/api/v1"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(h.Port)) + path
}

// Readers returns the advertised reader count, or -1 when absent.
func (h Hub) Readers() int {
	n, err := strconv.Atoi(h.TXT["readers"])
	if err != nil {
		return -1
	}
	return n
}

// ParseTXT splits key=value records. Records without '=' map to "".
func ParseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		out[k] = v
	}
	return out
}

func hubFromEntry(e *zeroconf.ServiceEntry) Hub {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Hub{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Addrs:    addrs,
		TXT:      ParseTXT(e.Text),
	}
}

// Browse collects hubs announcing service until ctx is done. Entries
// seen on several interfaces are merged by instance name. The result
// is sorted by instance.
func Browse(ctx context.Context, service, domain string) ([]Hub, error) {
	if domain == "" {
		domain = "local."
	}
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(ctx, service, domain, entries, removed)
	}()

	found := make(map[string]Hub)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			h := hubFromEntry(e)
			if prev, seen := found[h.Instance]; seen {
				h.Addrs = append(prev.Addrs, h.Addrs...)
			}
			found[h.Instance] = h
		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			delete(found, e.Instance)
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("discovery: browsing %s: %w", service, err)
			}
			return sortHubs(found), nil
		case <-ctx.Done():
			return sortHubs(found), nil
		}
	}
}

func sortHubs(m map[string]Hub) []Hub {
	out := make([]Hub, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

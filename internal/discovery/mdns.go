// ABOUTME: mDNS discovery glue for the Resonate protocol
// ABOUTME: Advertises and browses both service types; a server supports both flows
package discovery

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

// ErrDiscovery marks failures of the mDNS layer itself (no usable interface,
// socket errors) so CLI entry points can map them to their discovery-failure
// exit code.
var ErrDiscovery = errors.New("discovery failure")

const (
	// ServiceClient is the service type a client advertises under, so a
	// server can discover and connect to it (server-initiated flow).
	ServiceClient = "_resonate._tcp"
	// ServiceServer is the service type a server advertises under, so a
	// client can discover and connect to it (client-initiated flow).
	ServiceServer = "_resonate-server._tcp"

	txtPath = "path=/resonate"
)

// Tuple is the {address, port, path} a discovered peer resolves to,
// everything needed to assemble a WebSocket URL.
type Tuple struct {
	Name    string
	Address string
	Port    int
	Path    string
}

// Manager advertises this process's own service and/or browses for peers.
// A server process is expected to call both Advertise(ServiceServer, ...)
// and Browse(ServiceClient): a server supports both discovery flows, not
// just its own advertisement.
type Manager struct {
	mu      sync.Mutex
	servers []*mdns.Server
	stopCh  []chan struct{}
}

// NewManager constructs an empty discovery Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Advertise publishes name/port under serviceType (ServiceClient or
// ServiceServer), with the fixed `path=/resonate` TXT record peers need
// to assemble a WebSocket URL.
func (m *Manager) Advertise(serviceType, name string, port int) error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("get local IPs: %w: %w", ErrDiscovery, err)
	}

	service, err := mdns.NewMDNSService(name, serviceType, "", "", port, ips, []string{txtPath})
	if err != nil {
		return fmt.Errorf("create mdns service: %w: %w", ErrDiscovery, err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("start mdns server: %w: %w", ErrDiscovery, err)
	}

	m.mu.Lock()
	m.servers = append(m.servers, server)
	m.mu.Unlock()

	return nil
}

// Browse queries for serviceType peers, sending one Tuple per discovered
// entry to the returned channel until Stop is called. Matches the
// hashicorp/mdns one-shot-query-per-round pattern, repeated on an internal
// loop so longer-running browse sessions keep discovering new peers. The
// first query round runs synchronously so setup failures surface to the
// caller; later rounds retry and log.
func (m *Manager) Browse(serviceType string) (<-chan Tuple, error) {
	out := make(chan Tuple, 16)
	stop := make(chan struct{})

	m.mu.Lock()
	m.stopCh = append(m.stopCh, stop)
	m.mu.Unlock()

	if err := queryRound(serviceType, out, stop); err != nil {
		close(out)
		return nil, fmt.Errorf("browse %s: %w: %w", serviceType, ErrDiscovery, err)
	}

	go m.browseLoop(serviceType, out, stop)
	return out, nil
}

func (m *Manager) browseLoop(serviceType string, out chan<- Tuple, stop chan struct{}) {
	defer close(out)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := queryRound(serviceType, out, stop); err != nil {
			log.Printf("discovery: query %s failed: %v", serviceType, err)
		}
	}
}

// queryRound runs one mdns query, forwarding each discovered entry as a
// Tuple until the query window closes.
func queryRound(serviceType string, out chan<- Tuple, stop chan struct{}) error {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			addr := ""
			switch {
			case entry.AddrV4 != nil:
				addr = entry.AddrV4.String()
			case entry.AddrV6 != nil:
				addr = entry.AddrV6.String()
			default:
				continue
			}
			t := Tuple{Name: entry.Name, Address: addr, Port: entry.Port, Path: "/resonate"}
			select {
			case out <- t:
			case <-stop:
				return
			}
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: serviceType,
		Domain:  "local",
		Timeout: 3 * time.Second,
		Entries: entries,
	})
	close(entries)
	<-done
	return err
}

// Stop shuts down every advertised service and browse loop started by this
// Manager.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		s.Shutdown()
	}
	m.servers = nil
	for _, ch := range m.stopCh {
		close(ch)
	}
	m.stopCh = nil
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					ips = append(ips, ip4)
				}
			}
		}
	}

	return ips, nil
}

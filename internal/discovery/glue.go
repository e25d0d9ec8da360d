// ABOUTME: Converts discovered {address, port, path} tuples into reconnect-driver calls
// ABOUTME: The thin adapter between mDNS discovery and the Connection Endpoint
package discovery

import (
	"context"
	"fmt"
	"log"
)

// Connector is the subset of internal/transport.Reconnector this glue needs:
// kick off (or signal) a reconnect task for a URL.
type Connector interface {
	Connect(ctx context.Context, url string)
}

// Glue bridges Browse results to a Connector, so a discovered peer's
// {address, port, path} becomes a WebSocket URL handed to the Connection
// Endpoint's reconnect driver.
type Glue struct {
	manager   *Manager
	connector Connector
	logger    *log.Logger
}

// NewGlue wires manager's discovered tuples into connector.
func NewGlue(manager *Manager, connector Connector, logger *log.Logger) *Glue {
	if logger == nil {
		logger = log.Default()
	}
	return &Glue{manager: manager, connector: connector, logger: logger}
}

// WatchServers browses for ServiceServer advertisements (client-initiated
// flow: this process is a client looking for servers) and connects to each
// newly discovered one. Returns an error only if browsing cannot start at
// all; a started watch runs until ctx is cancelled or the Manager stops.
func (g *Glue) WatchServers(ctx context.Context) error {
	return g.watch(ctx, ServiceServer)
}

// WatchClients browses for ServiceClient advertisements (server-initiated
// flow: this process is a server looking for clients waiting to be joined)
// and connects to each newly discovered one.
func (g *Glue) WatchClients(ctx context.Context) error {
	return g.watch(ctx, ServiceClient)
}

func (g *Glue) watch(ctx context.Context, serviceType string) error {
	tuples, err := g.manager.Browse(serviceType)
	if err != nil {
		return err
	}
	for {
		select {
		case t, ok := <-tuples:
			if !ok {
				return nil
			}
			url := fmt.Sprintf("ws://%s:%d%s", t.Address, t.Port, t.Path)
			g.logger.Printf("discovery: found %s at %s, connecting", t.Name, url)
			g.connector.Connect(ctx, url)
		case <-ctx.Done():
			return nil
		}
	}
}

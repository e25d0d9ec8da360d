// ABOUTME: Resonate reference server: WebSocket accept loop, discovery, and wiring
// ABOUTME: glues internal/transport, internal/group, internal/stream, internal/discovery together
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/resonateaudio/resonate-core/internal/audio/source"
	"github.com/resonateaudio/resonate-core/internal/discovery"
	"github.com/resonateaudio/resonate-core/internal/group"
	"github.com/resonateaudio/resonate-core/internal/protocol"
	"github.com/resonateaudio/resonate-core/internal/stream"
	"github.com/resonateaudio/resonate-core/internal/transport"
)

// ProtocolVersion is the server/hello and client/hello version field this
// build speaks.
const ProtocolVersion = 1

// DefaultGroupID is the single playback target every player/artwork/
// visualizer member joins when the server exposes exactly one room. A
// multi-room deployment calls AddGroup for each additional room before
// Start; clients still only pick a group through the controller `switch`
// command; there is no join-time group selection on the wire.
const DefaultGroupID = "default"

// Config configures a Server.
type Config struct {
	Addr       string // e.g. ":8927"
	Name       string
	AudioFile  string // path to audio file to stream; empty = test tone
	EnableMDNS bool
	Debug      bool
	Logger     *log.Logger
}

// Server is the Resonate reference server: it accepts WebSocket connections,
// runs the handshake contract, and wires each client into the Group Engine
// and Stream Scheduler.
type Server struct {
	cfg      Config
	serverID string
	logger   *log.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clockStart time.Time

	clientsMu sync.Mutex
	clients   map[string]*clientConn

	metaMu   sync.Mutex
	metadata *protocol.MetadataState // current track, sent to joining metadata-role members

	registry *group.Registry
	streams  *stream.Manager
	mdns     *discovery.Manager

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Server. Call AddGroup (optional, for multi-room setups)
// then Start.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	s := &Server{
		cfg:        cfg,
		serverID:   uuid.New().String(),
		logger:     cfg.Logger,
		mux:        http.NewServeMux(),
		clockStart: time.Now(),
		clients:    make(map[string]*clientConn),
		registry:   group.NewRegistry(),
		stopCh:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.streams = stream.NewManager(s, s.clockMicros, cfg.Logger)
	s.registry.Put(group.New(DefaultGroupID, cfg.Name, s, s.streams, allCommands{}, cfg.Logger))
	return s
}

// AddGroup registers an additional playback target, for a multi-room
// deployment. Must be called before Start.
func (s *Server) AddGroup(id, name string) {
	s.registry.Put(group.New(id, name, s, s.streams, allCommands{}, s.logger))
}

// Start opens the source audio, binds the listener, and blocks until
// ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	src, err := source.New(s.cfg.AudioFile)
	if err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}
	s.streams.SetSource(DefaultGroupID, src)
	s.setMetadata(src)

	if g, ok := s.registry.Get(DefaultGroupID); ok {
		if err := g.SetPlaybackState(group.Playing); err != nil {
			s.logger.Printf("server: start default group: %v", err)
		}
	}

	if s.cfg.EnableMDNS {
		s.mdns = discovery.NewManager()
		if err := s.mdns.Advertise(discovery.ServiceServer, s.cfg.Name, addrPort(s.cfg.Addr)); err != nil {
			return fmt.Errorf("mdns advertise: %w", err)
		}
		glue := discovery.NewGlue(s.mdns, dialConnector{server: s}, s.logger)
		go func() {
			if err := glue.WatchClients(ctx); err != nil {
				s.logger.Printf("server: client browse unavailable: %v", err)
			}
		}()
	}

	s.mux.HandleFunc("/resonate", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Printf("server: %s (id %s) listening on %s", s.cfg.Name, s.serverID, s.cfg.Addr)

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	case err := <-errCh:
		s.shutdown()
		return fmt.Errorf("http server: %w", err)
	}
	s.shutdown()
	return nil
}

// Stop requests an orderly shutdown.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Server) shutdown() {
	if s.mdns != nil {
		s.mdns.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) clockMicros() int64 {
	return time.Since(s.clockStart).Microseconds()
}

// setMetadata records the source's track metadata and fans it out to any
// metadata-role members already in the default group. Later joiners receive
// it through currentMetadata on handshake completion.
func (s *Server) setMetadata(src source.Source) {
	title, artist, album := src.Metadata()
	if title == "" && artist == "" && album == "" {
		return
	}
	md := protocol.MetadataState{Timestamp: s.clockMicros()}
	if title != "" {
		md.Title = protocol.Present(title)
	}
	if artist != "" {
		md.Artist = protocol.Present(artist)
	}
	if album != "" {
		md.Album = protocol.Present(album)
	}

	s.metaMu.Lock()
	s.metadata = &md
	s.metaMu.Unlock()

	if g, ok := s.registry.Get(DefaultGroupID); ok {
		g.PublishMetadata(md)
	}
}

// currentMetadata returns the current track metadata, or nil if none is known.
func (s *Server) currentMetadata() *protocol.MetadataState {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.metadata
}

// StatusSnapshot builds a point-in-time ServerStatus for a ServerTUI (or any
// other status consumer), joining the Group Engine's membership snapshot
// with the display names held in clientConn.
func (s *Server) StatusSnapshot() ServerStatus {
	s.clientsMu.Lock()
	names := make(map[string]string, len(s.clients))
	for id, cc := range s.clients {
		cc.mu.Lock()
		names[id] = cc.name
		cc.mu.Unlock()
	}
	s.clientsMu.Unlock()

	groupSnaps := s.registry.Snapshot()
	groups := make([]GroupStatus, 0, len(groupSnaps))
	for _, gs := range groupSnaps {
		members := make([]MemberStatus, 0, len(gs.Members))
		for _, m := range gs.Members {
			name := names[m.ClientID]
			if name == "" {
				name = m.ClientID
			}
			members = append(members, MemberStatus{
				Name:  name,
				ID:    m.ClientID,
				Roles: roleList(m.Roles),
			})
		}
		groups = append(groups, GroupStatus{
			Name:    gs.Name,
			State:   string(gs.State),
			Volume:  gs.Volume,
			Muted:   gs.Muted,
			Members: members,
		})
	}

	return ServerStatus{
		Name:   s.cfg.Name,
		Addr:   s.cfg.Addr,
		Groups: groups,
	}
}

func roleList(roles []protocol.Role) string {
	if len(roles) == 0 {
		return "none"
	}
	strs := make([]string, len(roles))
	for i, r := range roles {
		strs[i] = string(r)
	}
	return strings.Join(strs, ",")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("server: upgrade failed: %v", err)
		return
	}
	s.acceptConnection(conn)
}

// acceptConnection wraps conn in a transport.Endpoint and waits out the
// handshake asynchronously via the Handler callbacks; the clientConn handler
// owns the rest of that client's lifecycle.
func (s *Server) acceptConnection(conn *websocket.Conn) {
	cc := &clientConn{server: s, logger: s.logger}
	ep := transport.New(conn, transport.Config{
		Side:    transport.SideServer,
		Handler: cc,
		Logger:  s.logger,
	})
	cc.endpoint = ep
	ep.Start(context.Background())
}

func addrPort(addr string) int {
	var port int
	if _, err := fmt.Sscanf(addr, ":%d", &port); err == nil {
		return port
	}
	return 0
}

// dialConnector implements discovery.Connector for the server-initiated
// flow: a discovered `_resonate._tcp.local.` client advertisement is dialed
// directly. Once the WebSocket is up, the dialed peer still speaks
// client/hello first, so the resulting connection is handed to the same
// acceptConnection path used for inbound connections.
type dialConnector struct {
	server *Server
}

func (d dialConnector) Connect(ctx context.Context, url string) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		d.server.logger.Printf("server: dial %s failed: %v", url, err)
		return
	}
	d.server.acceptConnection(conn)
}

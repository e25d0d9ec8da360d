// ABOUTME: Per-connection handshake state machine and message routing
// ABOUTME: Implements transport.Handler; one clientConn per accepted Endpoint
package server

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/group"
	"github.com/resonateaudio/resonate-core/internal/protocol"
	"github.com/resonateaudio/resonate-core/internal/stream"
	"github.com/resonateaudio/resonate-core/internal/transport"
)

// clientConn is one connected Endpoint's handshake and post-handshake
// routing state. It implements transport.Handler.
type clientConn struct {
	server   *Server
	endpoint *transport.Endpoint
	logger   *log.Logger

	mu       sync.Mutex
	clientID string
	name     string
	roles    map[protocol.Role]bool
	cmds     map[string]bool // player-declared server/command verbs
	groupID  string
	goodbye  string // client/goodbye reason, if one arrived before close
}

// OnText implements transport.Handler.
func (c *clientConn) OnText(msgType string, payload json.RawMessage) {
	if msgType == protocol.TypeClientHello {
		c.handleHello(payload)
		return
	}

	c.mu.Lock()
	clientID := c.clientID
	c.mu.Unlock()
	if clientID == "" {
		c.logger.Printf("server: %s before handshake, ignoring", msgType)
		return
	}

	switch msgType {
	case protocol.TypeClientTime:
		c.handleTime(payload)
	case protocol.TypeClientState:
		c.handleState(payload)
	case protocol.TypeClientCommand:
		c.handleCommand(payload)
	case protocol.TypeStreamRequestFormat:
		c.handleRequestFormat(payload)
	case protocol.TypeClientGoodbye:
		c.handleGoodbye(payload)
	default:
		c.logger.Printf("server: unknown message type %q from %s", msgType, clientID)
	}
}

// OnBinary implements transport.Handler. Players never send binary frames
// upstream in this protocol; anything received is logged and dropped.
func (c *clientConn) OnBinary(frame protocol.Frame) {
	c.logger.Printf("server: unexpected binary frame from %s", c.clientIDLocked())
}

// OnClosed implements transport.Handler.
func (c *clientConn) OnClosed(reason error, retry bool) {
	c.mu.Lock()
	clientID, groupID, goodbye := c.clientID, c.groupID, c.goodbye
	c.mu.Unlock()
	if clientID == "" {
		return
	}

	c.server.clientsMu.Lock()
	if c.server.clients[clientID] == c {
		delete(c.server.clients, clientID)
	}
	c.server.clientsMu.Unlock()

	if g, ok := c.server.registry.Get(groupID); ok {
		g.RemoveMember(clientID)
		if g.ShouldDispose() && groupID != DefaultGroupID {
			c.server.registry.Remove(groupID)
		}
	}
	if goodbye != "" {
		c.logger.Printf("server: %s left (%s)", clientID, goodbye)
	} else {
		c.logger.Printf("server: %s disconnected (%v)", clientID, reason)
	}
}

func (c *clientConn) clientIDLocked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *clientConn) handleHello(payload json.RawMessage) {
	hello, err := protocol.DecodePayload[protocol.ClientHello](payload)
	if err != nil || hello.ClientID == "" || hello.Name == "" {
		c.logger.Printf("server: malformed client/hello: %v", err)
		_ = c.endpoint.SendText(protocol.TypeServerError, protocol.ServerError{
			Error:   "invalid_hello",
			Message: "client/hello missing client_id or name",
		})
		c.endpoint.Close(err, false)
		return
	}

	// Two active Endpoints never share a client_id; resolve the conflict by
	// closing the older one.
	c.server.clientsMu.Lock()
	if old, exists := c.server.clients[hello.ClientID]; exists {
		c.server.clientsMu.Unlock()
		old.endpoint.Close(nil, false)
		c.server.clientsMu.Lock()
	}
	c.server.clients[hello.ClientID] = c
	c.server.clientsMu.Unlock()

	// Role strings may be versioned ("player@v1"); activate the client's
	// preferred version per family and gate everything downstream on the
	// version-stripped family set.
	activeRoles := protocol.ActivateRoles(hello.SupportedRoles)
	roles := protocol.RoleFamilies(activeRoles)

	cmds := make(map[string]bool)
	if hello.PlayerSupport != nil {
		for _, cmd := range hello.PlayerSupport.SupportedCommands {
			cmds[cmd] = true
		}
	}

	c.mu.Lock()
	c.clientID = hello.ClientID
	c.name = hello.Name
	c.roles = roles
	c.cmds = cmds
	c.groupID = DefaultGroupID
	c.mu.Unlock()

	c.endpoint.SetPhase(transport.PhaseEstablished)

	if err := c.endpoint.SendText(protocol.TypeServerHello, protocol.ServerHello{
		ServerID:    c.server.serverID,
		Name:        c.server.cfg.Name,
		Version:     ProtocolVersion,
		ActiveRoles: activeRoles,
	}); err != nil {
		c.logger.Printf("server: server/hello send failed: %v", err)
		return
	}

	volume, muted := 100, false
	artworkCfg := artworkChannelConfigs(hello.ArtworkSupport)
	if hello.PlayerSupport != nil {
		format := negotiateFormat(hello.PlayerSupport.SupportFormats)
		c.server.streams.Configure(c.groupID, c.clientID, format, hello.PlayerSupport.BufferCapacity, artworkCfg)
	} else if roles[protocol.RoleArtwork] || roles[protocol.RoleVisualizer] {
		c.server.streams.Configure(c.groupID, c.clientID, audio.Format{}, 0, artworkCfg)
	}

	member := &group.Member{ClientID: c.clientID, Roles: roles, Volume: volume, Muted: muted, SupportedCommands: cmds}
	g, ok := c.server.registry.Get(c.groupID)
	if !ok {
		c.logger.Printf("server: default group %s missing", c.groupID)
		return
	}
	g.AddMember(member)

	if roles[protocol.RoleMetadata] {
		if md := c.server.currentMetadata(); md != nil {
			state := protocol.ServerState{Metadata: md}
			if err := c.endpoint.SendText(protocol.TypeServerState, state); err != nil {
				c.logger.Printf("server: metadata to %s failed: %v", c.clientID, err)
			}
		}
	}
	c.logger.Printf("server: %s (%s) joined group %s with roles %v", c.name, c.clientID, c.groupID, hello.SupportedRoles)
}

func (c *clientConn) handleTime(payload json.RawMessage) {
	serverReceived := c.server.clockMicros()
	ct, err := protocol.DecodePayload[protocol.ClientTime](payload)
	if err != nil {
		c.logger.Printf("server: malformed client/time: %v", err)
		return
	}
	resp := protocol.ServerTime{
		ClientTransmitted: ct.ClientTransmitted,
		ServerReceived:    serverReceived,
		ServerTransmitted: c.server.clockMicros(),
	}
	if err := c.endpoint.SendText(protocol.TypeServerTime, resp); err != nil {
		c.logger.Printf("server: server/time send failed: %v", err)
	}
}

func (c *clientConn) handleState(payload json.RawMessage) {
	st, err := protocol.DecodePayload[protocol.ClientState](payload)
	if err != nil || st.Player == nil {
		return
	}

	c.mu.Lock()
	groupID, clientID := c.groupID, c.clientID
	c.mu.Unlock()

	g, ok := c.server.registry.Get(groupID)
	if !ok {
		return
	}
	g.UpdateMemberVolume(clientID, st.Player.Volume, st.Player.Muted)
}

func (c *clientConn) handleCommand(payload json.RawMessage) {
	cmd, err := protocol.DecodePayload[protocol.ClientCommand](payload)
	if err != nil || cmd.Controller == nil {
		return
	}

	c.mu.Lock()
	groupID, clientID := c.groupID, c.clientID
	isController := c.roles[protocol.RoleController]
	c.mu.Unlock()
	if !isController {
		c.logger.Printf("server: client/command from non-controller %s ignored", clientID)
		return
	}

	if cmd.Controller.Command == "switch" {
		c.handleSwitch(clientID, groupID)
		return
	}

	g, ok := c.server.registry.Get(groupID)
	if !ok {
		return
	}
	if err := group.Dispatch(g, *cmd.Controller); err != nil {
		c.logger.Printf("server: command %q on %s failed: %v", cmd.Controller.Command, groupID, err)
	}
}

// handleSwitch moves clientID's controller membership to the next candidate
// group in the Registry's deterministic cycle.
func (c *clientConn) handleSwitch(clientID, currentGroupID string) {
	target, ok := c.server.registry.NextSwitchTarget(clientID, currentGroupID)
	if !ok || target == currentGroupID {
		return
	}

	oldGroup, ok := c.server.registry.Get(currentGroupID)
	if !ok {
		return
	}
	newGroup, ok := c.server.registry.Get(target)
	if !ok {
		return
	}

	c.mu.Lock()
	roles, cmds := c.roles, c.cmds
	c.mu.Unlock()

	oldGroup.RemoveMember(clientID)
	newGroup.AddMember(&group.Member{ClientID: clientID, Roles: roles, Volume: 100, SupportedCommands: cmds})

	c.mu.Lock()
	c.groupID = target
	c.mu.Unlock()
	c.logger.Printf("server: %s switched from %s to %s", clientID, currentGroupID, target)
}

// handleGoodbye records a graceful-disconnect reason. The transport close
// that follows is the authoritative event; the reason only softens its log
// line from "disconnected" to "left".
func (c *clientConn) handleGoodbye(payload json.RawMessage) {
	bye, err := protocol.DecodePayload[protocol.ClientGoodbye](payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.goodbye = bye.Reason
	c.mu.Unlock()
}

func (c *clientConn) handleRequestFormat(payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.StreamRequestFormat](payload)
	if err != nil {
		c.logger.Printf("server: malformed stream/request-format: %v", err)
		return
	}
	c.mu.Lock()
	groupID, clientID := c.groupID, c.clientID
	c.mu.Unlock()
	c.server.streams.RequestFormat(groupID, clientID, audio.Format{
		Codec:      req.Codec,
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
		BitDepth:   req.BitDepth,
	})
}

// SendText implements group.Sender and stream.Sender.
func (s *Server) SendText(clientID, msgType string, payload interface{}) error {
	s.clientsMu.Lock()
	c, ok := s.clients[clientID]
	s.clientsMu.Unlock()
	if !ok {
		return nil
	}
	return c.endpoint.SendText(msgType, payload)
}

// SendBinary implements stream.Sender.
func (s *Server) SendBinary(clientID string, frame []byte) error {
	s.clientsMu.Lock()
	c, ok := s.clients[clientID]
	s.clientsMu.Unlock()
	if !ok {
		return nil
	}
	return c.endpoint.SendBinary(frame)
}

func negotiateFormat(formats []protocol.AudioFormat) audio.Format {
	if len(formats) == 0 {
		return audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
	}
	best := formats[0]
	for _, f := range formats[1:] {
		if codecPriority(f.Codec) > codecPriority(best.Codec) {
			best = f
		}
	}
	return audio.Format{Codec: best.Codec, SampleRate: best.SampleRate, Channels: best.Channels, BitDepth: best.BitDepth}
}

// codecPriority prefers opus (bandwidth-efficient) over flac over raw pcm
// when a player declares more than one supported format.
func codecPriority(codec string) int {
	switch codec {
	case "opus":
		return 3
	case "flac":
		return 2
	case "pcm":
		return 1
	default:
		return 0
	}
}

func artworkChannelConfigs(support *protocol.ArtworkSupport) []stream.ArtworkChannelConfig {
	if support == nil {
		return nil
	}
	out := make([]stream.ArtworkChannelConfig, len(support.Channels))
	for i, ch := range support.Channels {
		out[i] = stream.ArtworkChannelConfig{Source: ch.Source, Format: ch.Format}
	}
	return out
}

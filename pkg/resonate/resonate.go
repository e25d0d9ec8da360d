// ABOUTME: Public facade for embedding a Resonate server or reference player
// ABOUTME: Thin aliases over internal packages; the only supported import surface
package resonate

import (
	"github.com/resonateaudio/resonate-core/internal/playerclient"
	"github.com/resonateaudio/resonate-core/internal/server"
)

// Server accepts WebSocket connections, runs the handshake contract, and
// drives grouped, clock-synchronous playback to every connected client.
type Server = server.Server

// ServerConfig configures a Server.
type ServerConfig = server.Config

// ServerStatus is a point-in-time snapshot of a Server's groups and members,
// as returned by Server.StatusSnapshot.
type ServerStatus = server.ServerStatus

// ServerTUI renders a live ServerStatus display on stdout.
type ServerTUI = server.ServerTUI

// NewServer constructs a Server. Call AddGroup for extra rooms, then Start.
func NewServer(cfg ServerConfig) *Server { return server.New(cfg) }

// NewServerTUI constructs a ServerTUI. Feed it with Server.StatusSnapshot.
func NewServerTUI() *ServerTUI { return server.NewServerTUI() }

// Player is one player-role connection to a Resonate server: handshake,
// clock sync, decode, and scheduled playback.
type Player = playerclient.Client

// PlayerConfig configures a Player.
type PlayerConfig = playerclient.Config

// PlayerStatus is a point-in-time snapshot of a Player's connection, clock,
// and playback state, as returned by Player.Status.
type PlayerStatus = playerclient.Status

// NewPlayer constructs a Player. Call Start to connect, or hand Start to a
// reconnect driver as its Dialer.
func NewPlayer(cfg PlayerConfig) *Player { return playerclient.New(cfg) }

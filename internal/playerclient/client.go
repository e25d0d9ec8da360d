// ABOUTME: Resonate reference player client: handshake, clock sync, decode, playback
// ABOUTME: Implements transport.Handler; one Client drives one server connection
package playerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/audio/decode"
	"github.com/resonateaudio/resonate-core/internal/audio/output"
	"github.com/resonateaudio/resonate-core/internal/clocksync"
	"github.com/resonateaudio/resonate-core/internal/protocol"
	"github.com/resonateaudio/resonate-core/internal/transport"
	"github.com/resonateaudio/resonate-core/internal/version"
)

// ProtocolVersion is the client/hello version field this build speaks.
const ProtocolVersion = 1

// Config configures a Client.
type Config struct {
	ClientID string // defaults to a new UUID
	Name     string
	BufferMs int // advertised player_support.buffer_capacity is derived from this
	Debug    bool
	Logger   *log.Logger
}

// Client is one player-role connection to a Resonate server: it performs
// the handshake, keeps a clock estimate, and schedules/decodes/plays
// incoming stream frames.
type Client struct {
	cfg      Config
	clientID string
	logger   *log.Logger

	endpoint *transport.Endpoint
	clock    *clocksync.Filter

	mu        sync.Mutex
	format    audio.Format
	decoder   decode.Decoder
	scheduler *Scheduler
	output    *output.Output
	volume    int
	muted     bool
	connected bool
	serverID  string
	serverNm  string
	metadata  Metadata

	closeReason error
	closeRetry  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Metadata is the client's accumulated view of server/state.metadata,
// merged field-by-field under the delta-merge rule rather than held as the
// wire-shaped Opt[T] struct, since nothing downstream of the TUI needs to
// distinguish "never sent" from "cleared".
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	ArtworkURL  string
	Repeat      string
	Shuffle     bool
}

// Status is a point-in-time snapshot of the client's connection, clock,
// stream, and playback state, intended for display (e.g. a TUI) rather than
// protocol decision-making. Callers poll Status rather than subscribing to
// every intermediate change.
type Status struct {
	Connected  bool
	ServerName string

	Clock clocksync.Snapshot

	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int

	Volume int
	Muted  bool

	Metadata Metadata

	Stats SchedulerStats
}

// Status reports the client's current state for display. Safe to call from
// any goroutine.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Connected:  c.connected,
		ServerName: c.serverNm,
		Clock:      c.clock.Snapshot(),
		Codec:      c.format.Codec,
		SampleRate: c.format.SampleRate,
		Channels:   c.format.Channels,
		BitDepth:   c.format.BitDepth,
		Volume:     c.volume,
		Muted:      c.muted,
		Metadata:   c.metadata,
	}
	if c.scheduler != nil {
		st.Stats = c.scheduler.Stats()
	}
	return st
}

// ClockQuality reports the clock filter's current confidence bucket, for
// display.
func (c *Client) ClockQuality() clocksync.Quality {
	return c.clock.Quality()
}

// SetVolume adjusts local playback volume (e.g. from a keyboard shortcut)
// and echoes the resulting state to the server via client/state, mirroring
// the same state-reflection path a server/command{volume} triggers.
func (c *Client) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()
	c.output.SetVolume(volume)
	c.sendState()
}

// SetMuted adjusts local mute state and echoes it via client/state.
func (c *Client) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	c.output.SetMuted(muted)
	c.sendState()
}

// New constructs a Client. Call Start to connect.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		clientID: cfg.ClientID,
		logger:   cfg.Logger,
		clock:    clocksync.New(cfg.Logger),
		output:   output.New(),
		volume:   100,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start dials url, runs the handshake, and blocks until the connection
// closes or ctx is cancelled. Its signature matches internal/transport's
// Dialer, so a fresh Client per attempt can be driven directly by a
// transport.Reconnector.
func (c *Client) Start(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	ep := transport.New(conn, transport.Config{
		Side:    transport.SideClient,
		Handler: c,
		Logger:  c.logger,
	})
	c.mu.Lock()
	c.endpoint = ep
	c.mu.Unlock()
	ep.Start(ctx)
	ep.SetPhase(transport.PhaseHelloSent)

	hello := protocol.ClientHello{
		ClientID:       c.clientID,
		Name:           c.cfg.Name,
		Version:        ProtocolVersion,
		SupportedRoles: []string{"player"},
		DeviceInfo: &protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		PlayerSupport: &protocol.PlayerSupport{
			SupportFormats: []protocol.AudioFormat{
				{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 16},
			},
			BufferCapacity:    bufferCapacityBytes(c.cfg.BufferMs),
			SupportedCommands: []string{"volume", "mute"},
		},
	}
	if err := ep.SendText(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("send client/hello: %w", err)
	}

	go c.clockSyncLoop()

	select {
	case <-ctx.Done():
		// Caller (Reconnector or shutdown) cancelled: no reconnect to drive.
		return nil
	case <-c.ctx.Done():
		// Endpoint closed on its own (transport error, buffer overrun, or an
		// explicit Stop). Surface a distinguishing error when the close
		// requested a retry, so Reconnector.run's error branch re-dials
		// instead of parking forever on a retry signal nothing will send.
		c.mu.Lock()
		retry, reason := c.closeRetry, c.closeReason
		c.mu.Unlock()
		if retry {
			return fmt.Errorf("connection closed, reconnecting: %w", reason)
		}
		return nil
	}
}

// Stop tears down the connection and audio output. A client/goodbye goes out
// first so the server logs an orderly departure rather than a dropped peer.
func (c *Client) Stop() {
	c.cancel()
	c.mu.Lock()
	ep := c.endpoint
	c.mu.Unlock()
	if ep != nil {
		_ = ep.SendText(protocol.TypeClientGoodbye, protocol.ClientGoodbye{Reason: "shutdown"})
		ep.Close(nil, false)
	}
	c.output.Close()
	c.mu.Lock()
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	c.mu.Unlock()
}

// bufferCapacityBytes estimates a byte budget from a millisecond jitter
// buffer target at a nominal 48kHz/16-bit/stereo rate — the same rate the
// negotiation prefers, refined once the server actually picks a format.
func bufferCapacityBytes(bufferMs int) int {
	if bufferMs <= 0 {
		bufferMs = 500
	}
	const bytesPerMs = 48000 * 2 * 2 / 1000
	return bufferMs * bytesPerMs
}

// OnText implements transport.Handler.
func (c *Client) OnText(msgType string, payload json.RawMessage) {
	switch msgType {
	case protocol.TypeServerHello:
		c.handleServerHello(payload)
	case protocol.TypeServerTime:
		c.handleServerTime(payload)
	case protocol.TypeServerCommand:
		c.handleServerCommand(payload)
	case protocol.TypeServerState:
		c.handleServerState(payload)
	case protocol.TypeGroupUpdate:
		c.handleGroupUpdate(payload)
	case protocol.TypeStreamStart:
		c.handleStreamStart(payload)
	case protocol.TypeStreamUpdate:
		c.handleStreamUpdate(payload)
	case protocol.TypeStreamEnd:
		c.handleStreamEnd()
	case protocol.TypeServerError:
		c.handleServerError(payload)
	default:
		c.logger.Printf("playerclient: unknown message type %q", msgType)
	}
}

// OnBinary implements transport.Handler: decode and schedule player frames,
// log anything else (this client declares no artwork/visualizer support).
func (c *Client) OnBinary(frame protocol.Frame) {
	if frame.Role != protocol.BinaryRolePlayer {
		return
	}

	c.mu.Lock()
	decoder := c.decoder
	scheduler := c.scheduler
	format := c.format
	c.mu.Unlock()
	if decoder == nil || scheduler == nil {
		return
	}

	samples, err := decoder.Decode(frame.Payload)
	if err != nil {
		c.logger.Printf("playerclient: decode error: %v", err)
		return
	}
	scheduler.Schedule(audio.Buffer{Timestamp: frame.Timestamp, Samples: samples, Format: format})
}

// OnClosed implements transport.Handler.
func (c *Client) OnClosed(reason error, retry bool) {
	c.logger.Printf("playerclient: connection closed (retry=%v): %v", retry, reason)
	c.mu.Lock()
	c.connected = false
	c.closeReason = reason
	c.closeRetry = retry
	c.mu.Unlock()
	c.cancel()
}

func (c *Client) handleServerHello(payload json.RawMessage) {
	hello, err := protocol.DecodePayload[protocol.ServerHello](payload)
	if err != nil {
		c.logger.Printf("playerclient: malformed server/hello: %v", err)
		return
	}
	c.endpoint.SetPhase(transport.PhaseEstablished)
	c.logger.Printf("playerclient: connected to %s (id %s), active roles %v", hello.Name, hello.ServerID, hello.ActiveRoles)

	c.mu.Lock()
	c.connected = true
	c.serverID = hello.ServerID
	c.serverNm = hello.Name
	c.mu.Unlock()

	c.sendState()
}

func (c *Client) sendState() {
	c.mu.Lock()
	volume, muted, ep := c.volume, c.muted, c.endpoint
	c.mu.Unlock()
	if ep == nil {
		// SetVolume/SetMuted may be called (e.g. from the TUI) before Start
		// has dialed and published an Endpoint; the new value is already
		// stored in c.volume/c.muted and will go out in the client/hello
		// follow-up sendState once connected.
		return
	}
	state := protocol.ClientState{Player: &protocol.PlayerState{
		State: "synchronized", Volume: volume, Muted: muted,
	}}
	if err := ep.SendText(protocol.TypeClientState, state); err != nil {
		c.logger.Printf("playerclient: client/state send failed: %v", err)
	}
}

func (c *Client) handleServerTime(payload json.RawMessage) {
	resp, err := protocol.DecodePayload[protocol.ServerTime](payload)
	if err != nil {
		c.logger.Printf("playerclient: malformed server/time: %v", err)
		return
	}
	t3 := time.Now().UnixMicro()
	c.clock.Update(clocksync.Sample{
		T0: resp.ClientTransmitted,
		T1: resp.ServerReceived,
		T2: resp.ServerTransmitted,
		T3: t3,
	}, t3)

	if c.clock.Diverged() {
		state := protocol.ClientState{Player: &protocol.PlayerState{State: "error"}}
		_ = c.endpoint.SendText(protocol.TypeClientState, state)
	}
}

// handleServerError surfaces the server's pre-close diagnostic; the close
// that follows carries the real consequence.
func (c *Client) handleServerError(payload json.RawMessage) {
	se, err := protocol.DecodePayload[protocol.ServerError](payload)
	if err != nil {
		return
	}
	c.logger.Printf("playerclient: server error %s: %s", se.Error, se.Message)
}

// clockSyncLoop drives client/time round trips with adaptive polling: 1s
// while the filter is still converging, decaying toward 10s once its quality
// settles, and snapping back to 1s on any excursion.
func (c *Client) clockSyncLoop() {
	interval := time.Second
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			t0 := time.Now().UnixMicro()
			if err := c.endpoint.SendText(protocol.TypeClientTime, protocol.ClientTime{ClientTransmitted: t0}); err != nil {
				c.logger.Printf("playerclient: client/time send failed: %v", err)
			}
			if c.clock.Quality() == clocksync.QualityGood {
				interval *= 2
				if interval > 10*time.Second {
					interval = 10 * time.Second
				}
			} else {
				interval = time.Second
			}
			timer.Reset(interval)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleServerCommand(payload json.RawMessage) {
	cmd, err := protocol.DecodePayload[protocol.ServerCommand](payload)
	if err != nil || cmd.Player == nil {
		return
	}
	switch cmd.Player.Command {
	case "volume":
		c.mu.Lock()
		c.volume = cmd.Player.Volume
		c.mu.Unlock()
		c.output.SetVolume(cmd.Player.Volume)
	case "mute":
		c.mu.Lock()
		c.muted = cmd.Player.Mute
		c.mu.Unlock()
		c.output.SetMuted(cmd.Player.Mute)
	}
	c.sendState()
}

func (c *Client) handleServerState(payload json.RawMessage) {
	state, err := protocol.DecodePayload[protocol.ServerState](payload)
	if err != nil {
		return
	}
	if state.Metadata != nil {
		c.mu.Lock()
		protocol.MergeString(&c.metadata.Title, state.Metadata.Title)
		protocol.MergeString(&c.metadata.Artist, state.Metadata.Artist)
		protocol.MergeString(&c.metadata.Album, state.Metadata.Album)
		protocol.MergeString(&c.metadata.ArtworkURL, state.Metadata.ArtworkURL)
		protocol.MergeString(&c.metadata.Repeat, state.Metadata.Repeat)
		if state.Metadata.Shuffle.IsPresent() {
			v, _ := state.Metadata.Shuffle.Value()
			c.metadata.Shuffle = v
		} else if state.Metadata.Shuffle.IsNull() {
			c.metadata.Shuffle = false
		}
		c.mu.Unlock()
	}
	if state.Controller != nil {
		c.logger.Printf("playerclient: controller state: %+v", state.Controller)
	}
}

func (c *Client) handleGroupUpdate(payload json.RawMessage) {
	update, err := protocol.DecodePayload[protocol.GroupUpdate](payload)
	if err != nil {
		return
	}
	c.logger.Printf("playerclient: group update: %+v", update)
}

func (c *Client) handleStreamStart(payload json.RawMessage) {
	start, err := protocol.DecodePayload[protocol.StreamStart](payload)
	if err != nil || start.Player == nil {
		c.logger.Printf("playerclient: malformed or player-less stream/start: %v", err)
		return
	}

	format := audio.Format{
		Codec:      start.Player.Codec,
		SampleRate: start.Player.SampleRate,
		Channels:   start.Player.Channels,
		BitDepth:   start.Player.BitDepth,
	}
	c.rebuildPipeline(format)
}

func (c *Client) handleStreamUpdate(payload json.RawMessage) {
	update, err := protocol.DecodePayload[protocol.StreamUpdate](payload)
	if err != nil || update.Player == nil {
		return
	}

	c.mu.Lock()
	merged := c.format
	c.mu.Unlock()

	if v, ok := update.Player.Codec.Value(); ok {
		merged.Codec = v
	}
	if v, ok := update.Player.SampleRate.Value(); ok {
		merged.SampleRate = v
	}
	if v, ok := update.Player.Channels.Value(); ok {
		merged.Channels = v
	}
	if v, ok := update.Player.BitDepth.Value(); ok {
		merged.BitDepth = v
	}
	c.rebuildPipeline(merged)
}

// rebuildPipeline tears down and recreates the decoder/output/scheduler for
// a (re)negotiated format. This mirrors the reference player's response to
// stream/start and the format-switch boundary in stream/update: no
// in-place resampling, a clean cut to the new format.
func (c *Client) rebuildPipeline(format audio.Format) {
	dec, err := decode.New(format)
	if err != nil {
		c.logger.Printf("playerclient: decoder init failed for %s: %v", format.Codec, err)
		return
	}
	if err := c.output.Initialize(format); err != nil {
		c.logger.Printf("playerclient: output init failed: %v", err)
		dec.Close()
		return
	}

	sched := NewScheduler(c.clock, c.logger)
	go sched.Run()
	go c.drainScheduler(sched)

	c.mu.Lock()
	prevDecoder, prevScheduler := c.decoder, c.scheduler
	c.format = format
	c.decoder = dec
	c.scheduler = sched
	c.mu.Unlock()

	if prevScheduler != nil {
		prevScheduler.Stop()
	}
	if prevDecoder != nil {
		prevDecoder.Close()
	}
	c.logger.Printf("playerclient: stream format %s %dHz %dch %dbit", format.Codec, format.SampleRate, format.Channels, format.BitDepth)
}

func (c *Client) drainScheduler(sched *Scheduler) {
	for buf := range sched.Output() {
		if err := c.output.Play(buf); err != nil {
			c.logger.Printf("playerclient: playback error: %v", err)
		}
	}
}

func (c *Client) handleStreamEnd() {
	c.mu.Lock()
	dec, sched := c.decoder, c.scheduler
	c.decoder, c.scheduler = nil, nil
	c.mu.Unlock()
	if sched != nil {
		sched.Stop()
	}
	if dec != nil {
		dec.Close()
	}
	c.logger.Printf("playerclient: stream ended")
}

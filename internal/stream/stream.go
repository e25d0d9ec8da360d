// ABOUTME: Stream Scheduler: per-client timestamped encoded audio and artwork frames
// ABOUTME: Implements group.StreamController, pulling raw PCM from a shared per-group source
package stream

import (
	"log"
	"sync"
	"time"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/audio/encode"
	"github.com/resonateaudio/resonate-core/internal/audio/source"
	"github.com/resonateaudio/resonate-core/internal/protocol"
)

// ClockFunc returns the current server-clock reading in microseconds.
// Production wiring is time.Since(serverStart).Microseconds(), matching the
// reference server's getClockMicros.
type ClockFunc func() int64

// Sender delivers per-client text messages and binary frames. Implemented by
// internal/server, backed by an internal/transport.Endpoint.
type Sender interface {
	SendText(clientID, msgType string, payload interface{}) error
	SendBinary(clientID string, frame []byte) error
}

const (
	chunkDuration  = 20 * time.Millisecond
	defaultLeadMs  = 500
	minJitterMicro = int64(5 * time.Millisecond / time.Microsecond)
	artworkLeadUs  = int64(20 * time.Millisecond / time.Microsecond)
)

// Manager owns every StreamSession across every group and satisfies
// group.StreamController so the Group Engine can start/end a session purely
// by (groupID, clientID) without knowing about formats or encoders.
//
// A session's format and buffer capacity must be registered via Configure
// before the Group calls StartSession (the server does this right after
// handshake, once it knows the client's declared player_support).
type Manager struct {
	mu     sync.Mutex
	groups map[string]*groupState
	sender Sender
	clock  ClockFunc
	logger *log.Logger
}

type groupState struct {
	source   source.Source
	pullRate int // source sample rate the group-level reader pulls at
	channels int
	sessions map[string]*Session // keyed by client ID
	pending  map[string]pendingConfig
	stop     chan struct{}
	running  bool
}

type pendingConfig struct {
	format         audio.Format
	bufferCapacity int
	artwork        []ArtworkChannelConfig
}

// NewManager constructs a Manager. clock defaults to a wall-clock-based
// reading from process start if nil.
func NewManager(sender Sender, clock ClockFunc, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	if clock == nil {
		start := time.Now()
		clock = func() int64 { return time.Since(start).Microseconds() }
	}
	return &Manager{
		groups: make(map[string]*groupState),
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// Configure registers the format and buffer capacity a client negotiated,
// so a subsequent StartSession (from the Group, when the client joins a group
// that is not stopped) has what it needs to build a Session.
func (m *Manager) Configure(groupID, clientID string, format audio.Format, bufferCapacity int, artwork []ArtworkChannelConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groupLocked(groupID)
	g.pending[clientID] = pendingConfig{format: format, bufferCapacity: bufferCapacity, artwork: artwork}
}

// SetSource installs the raw audio feed for a group and starts its
// group-level pull loop if not already running. Existing sessions begin
// receiving frames on the next tick.
func (m *Manager) SetSource(groupID string, src source.Source) {
	m.mu.Lock()
	g := m.groupLocked(groupID)
	g.source = src
	g.pullRate = src.SampleRate()
	g.channels = src.Channels()
	alreadyRunning := g.running
	if !alreadyRunning {
		g.running = true
		g.stop = make(chan struct{})
	}
	m.mu.Unlock()

	if !alreadyRunning {
		go m.runGroup(groupID)
	}
}

func (m *Manager) groupLocked(groupID string) *groupState {
	g, ok := m.groups[groupID]
	if !ok {
		g = &groupState{
			sessions: make(map[string]*Session),
			pending:  make(map[string]pendingConfig),
		}
		m.groups[groupID] = g
	}
	return g
}

// StartSession implements group.StreamController. The client must have been
// Configure'd first; StartSession with no prior Configure call logs and
// no-ops rather than guessing a format.
func (m *Manager) StartSession(groupID, clientID string) {
	m.mu.Lock()
	g := m.groupLocked(groupID)
	cfg, ok := g.pending[clientID]
	if !ok {
		m.mu.Unlock()
		m.logger.Printf("stream: StartSession(%s, %s) with no Configure call, skipping", groupID, clientID)
		return
	}

	sess := newSession(groupID, clientID, cfg.format, cfg.bufferCapacity, cfg.artwork, m.sender, m.clock, m.logger)
	g.sessions[clientID] = sess
	m.mu.Unlock()

	sess.sendStart()
}

// EndSession implements group.StreamController.
func (m *Manager) EndSession(groupID, clientID string) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return
	}
	sess, ok := g.sessions[clientID]
	delete(g.sessions, clientID)
	delete(g.pending, clientID)
	empty := len(g.sessions) == 0
	m.mu.Unlock()

	if ok {
		sess.sendEnd()
		sess.close()
	}
	if empty {
		m.stopGroup(groupID)
	}
}

// RequestFormat handles a client's stream/request-format ask, honoring the
// mid-stream format-switch protocol.
func (m *Manager) RequestFormat(groupID, clientID string, next audio.Format) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return
	}
	sess, ok := g.sessions[clientID]
	m.mu.Unlock()
	if ok {
		sess.requestFormat(next)
	}
}

// PublishArtwork sets or clears one of a client's artwork channels.
func (m *Manager) PublishArtwork(groupID, clientID string, channel int, payload []byte) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return
	}
	sess, ok := g.sessions[clientID]
	m.mu.Unlock()
	if ok {
		sess.publishArtwork(channel, payload)
	}
}

func (m *Manager) stopGroup(groupID string) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if ok && g.running {
		close(g.stop)
		g.running = false
	}
	delete(m.groups, groupID)
	m.mu.Unlock()
}

// runGroup is the group-level pull loop: one read from the shared source per
// tick, fanned out to every active session for that group.
func (m *Manager) runGroup(groupID string) {
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		g, ok := m.groups[groupID]
		if !ok {
			m.mu.Unlock()
			return
		}
		stop := g.stop
		m.mu.Unlock()

		select {
		case <-ticker.C:
			m.pullAndFanOut(groupID)
		case <-stop:
			return
		}
	}
}

func (m *Manager) pullAndFanOut(groupID string) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok || g.source == nil {
		m.mu.Unlock()
		return
	}
	src := g.source
	pullRate := g.pullRate
	channels := g.channels
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	frames := (pullRate * int(chunkDuration/time.Millisecond)) / 1000
	buf := make([]int32, frames*channels)
	n, err := src.Read(buf)
	if err != nil {
		m.logger.Printf("stream %s: source read error: %v", groupID, err)
		return
	}

	now := m.clock()
	for _, sess := range sessions {
		sess.handleChunk(buf[:n], pullRate, channels, now)
	}
}

// ABOUTME: Group Engine: membership, aggregate playback state, command routing, fan-out
// ABOUTME: One Group per playback target; commands and state updates are role-gated
package group

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/resonateaudio/resonate-core/internal/protocol"
)

// PlaybackState is one of the three representable playback states. Unlike
// a simplified two-value model, Stopped is never collapsed into Paused.
type PlaybackState string

const (
	Stopped PlaybackState = "stopped"
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
)

// Member is one Endpoint's membership in a Group.
type Member struct {
	ClientID string
	Roles    map[protocol.Role]bool
	Volume   int // 0..100, meaningful only for player-role members
	Muted    bool

	// SupportedCommands holds the player-declared server/command verbs
	// (volume, mute). The server must never send a command outside this set.
	SupportedCommands map[string]bool
}

func (m *Member) hasRole(r protocol.Role) bool { return m.Roles[r] }

func (m *Member) supportsCommand(cmd string) bool { return m.SupportedCommands[cmd] }

// Sender delivers a text message to one member. Implementations live in
// internal/server, backed by an internal/transport.Endpoint.
type Sender interface {
	SendText(clientID string, msgType string, payload interface{}) error
}

// StreamController starts, updates, or stops the per-client StreamSession
// backing a newly added, resumed, or departing player/artwork/visualizer
// member. Implemented by internal/stream.
type StreamController interface {
	StartSession(groupID, clientID string)
	EndSession(groupID, clientID string)
}

// CapabilityProvider reports which controller commands the application can
// actually service right now, independent of playback state. supported_commands
// is the intersection of this set and what the current playback state allows.
type CapabilityProvider interface {
	AvailableCommands() []string
}

// Group owns one playback target: its members, aggregate state, and
// command routing. All public methods are goroutine-safe.
type Group struct {
	mu sync.Mutex

	ID    string
	Name  string
	state PlaybackState

	members map[string]*Member // keyed by client ID
	order   []string           // insertion order, for deterministic iteration

	sender  Sender
	stream  StreamController
	caps    CapabilityProvider
	logger  *log.Logger
}

// New constructs an empty Group in the Stopped state.
func New(id, name string, sender Sender, stream StreamController, caps CapabilityProvider, logger *log.Logger) *Group {
	if logger == nil {
		logger = log.Default()
	}
	return &Group{
		ID:      id,
		Name:    name,
		state:   Stopped,
		members: make(map[string]*Member),
		sender:  sender,
		stream:  stream,
		caps:    caps,
		logger:  logger,
	}
}

// AddMember adds a client to the Group. If a Stream is active (state !=
// Stopped) and the member has a role that consumes stream frames, a new
// StreamSession is created for it (future-dated frames only, no catch-up).
// The newly joined member receives an initial
// group/update with the current playback_state/group_id/group_name.
func (g *Group) AddMember(m *Member) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.members[m.ClientID]; !exists {
		g.order = append(g.order, m.ClientID)
	}
	g.members[m.ClientID] = m

	if g.state != Stopped && streamRole(m) && g.stream != nil {
		g.stream.StartSession(g.ID, m.ClientID)
	}

	g.sendInitialUpdate(m.ClientID)
}

// RemoveMember removes a client. If it was the last member, the caller
// should dispose the Group (ShouldDispose reports this).
func (g *Group) RemoveMember(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.members[clientID]; !ok {
		return
	}
	delete(g.members, clientID)
	for i, id := range g.order {
		if id == clientID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if g.stream != nil {
		g.stream.EndSession(g.ID, clientID)
	}
}

// ShouldDispose reports whether this Group has no members left and should
// be removed from whatever registry owns it.
func (g *Group) ShouldDispose() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members) == 0
}

func streamRole(m *Member) bool {
	return m.hasRole(protocol.RolePlayer) || m.hasRole(protocol.RoleArtwork) || m.hasRole(protocol.RoleVisualizer)
}

// sendInitialUpdate emits the mandatory post-handshake group/update to a
// single newly joined member. Caller must hold g.mu.
func (g *Group) sendInitialUpdate(clientID string) {
	if g.sender == nil {
		return
	}
	update := protocol.GroupUpdate{
		PlaybackState: protocol.Present(string(g.state)),
		GroupID:       protocol.Present(g.ID),
		GroupName:     protocol.Present(g.Name),
	}
	if err := g.sender.SendText(clientID, protocol.TypeGroupUpdate, update); err != nil {
		g.logger.Printf("group %s: initial update to %s failed: %v", g.ID, clientID, err)
	}
}

// broadcastUpdate fans group/update out to every member. Caller must hold g.mu.
func (g *Group) broadcastUpdate(update protocol.GroupUpdate) {
	if g.sender == nil {
		return
	}
	for _, id := range g.order {
		if err := g.sender.SendText(id, protocol.TypeGroupUpdate, update); err != nil {
			g.logger.Printf("group %s: update to %s failed: %v", g.ID, id, err)
		}
	}
}

// broadcastMetadata fans server/state.metadata out to metadata-role members only.
func (g *Group) broadcastMetadata(state protocol.MetadataState) {
	if g.sender == nil {
		return
	}
	payload := protocol.ServerState{Metadata: &state}
	for _, id := range g.order {
		m := g.members[id]
		if m.hasRole(protocol.RoleMetadata) {
			if err := g.sender.SendText(id, protocol.TypeServerState, payload); err != nil {
				g.logger.Printf("group %s: metadata to %s failed: %v", g.ID, id, err)
			}
		}
	}
}

// broadcastController fans server/state.controller out to controller-role members only.
func (g *Group) broadcastController() {
	if g.sender == nil {
		return
	}
	controller := protocol.ControllerState{
		SupportedCommands: g.supportedCommandsLocked(),
		Volume:            g.aggregateVolumeLocked(),
		Muted:             g.allMutedLocked(),
	}
	payload := protocol.ServerState{Controller: &controller}
	for _, id := range g.order {
		m := g.members[id]
		if m.hasRole(protocol.RoleController) {
			if err := g.sender.SendText(id, protocol.TypeServerState, payload); err != nil {
				g.logger.Printf("group %s: controller state to %s failed: %v", g.ID, id, err)
			}
		}
	}
}

// SetPlaybackState performs a validated transition and fans out the
// resulting group/update. Invalid transitions (e.g. stopped -> pause) are
// rejected with an error rather than silently coerced.
func (g *Group) SetPlaybackState(target PlaybackState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !validTransition(g.state, target) {
		return fmt.Errorf("invalid playback transition %s -> %s", g.state, target)
	}
	g.state = target
	g.broadcastUpdate(protocol.GroupUpdate{PlaybackState: protocol.Present(string(target))})
	g.broadcastController()
	return nil
}

func validTransition(from, to PlaybackState) bool {
	switch from {
	case Stopped:
		return to == Playing
	case Playing:
		return to == Paused || to == Stopped
	case Paused:
		return to == Playing || to == Stopped
	}
	return false
}

// State returns the current playback state.
func (g *Group) State() PlaybackState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// supportedCommandsLocked computes (state ∧ declared capabilities), caller
// must hold g.mu.
func (g *Group) supportedCommandsLocked() []string {
	allowedByState := map[string]bool{}
	switch g.state {
	case Stopped:
		allowedByState["play"] = true
	case Playing:
		allowedByState["pause"] = true
		allowedByState["stop"] = true
	case Paused:
		allowedByState["play"] = true
		allowedByState["stop"] = true
	}
	// Commands always meaningful regardless of playback state.
	for _, c := range []string{"next", "previous", "volume", "mute", "repeat_off", "repeat_one", "repeat_all", "shuffle", "unshuffle", "switch"} {
		allowedByState[c] = true
	}

	var caps []string
	if g.caps != nil {
		caps = g.caps.AvailableCommands()
	} else {
		// No capability provider configured: assume everything the state
		// allows is serviceable.
		for c := range allowedByState {
			caps = append(caps, c)
		}
	}
	capSet := make(map[string]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}

	var out []string
	for c := range allowedByState {
		if capSet[c] {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// SupportedCommands is the public read of the state∧capability intersection.
func (g *Group) SupportedCommands() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.supportedCommandsLocked()
}

// MemberSnapshot is a read-only copy of one Member, safe to hold after the
// Group's lock is released.
type MemberSnapshot struct {
	ClientID string
	Roles    []protocol.Role
	Volume   int
	Muted    bool
}

// Snapshot is a read-only copy of a Group's state, for status displays
// (e.g. the server TUI) that must not hold g.mu while rendering.
type Snapshot struct {
	ID      string
	Name    string
	State   PlaybackState
	Volume  int
	Muted   bool
	Members []MemberSnapshot
}

// Snapshot returns a point-in-time copy of the Group, in insertion order.
func (g *Group) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]MemberSnapshot, 0, len(g.order))
	for _, id := range g.order {
		m := g.members[id]
		var roles []protocol.Role
		for r, ok := range m.Roles {
			if ok {
				roles = append(roles, r)
			}
		}
		members = append(members, MemberSnapshot{
			ClientID: m.ClientID,
			Roles:    roles,
			Volume:   m.Volume,
			Muted:    m.Muted,
		})
	}
	return Snapshot{
		ID:      g.ID,
		Name:    g.Name,
		State:   g.state,
		Volume:  g.aggregateVolumeLocked(),
		Muted:   g.allMutedLocked(),
		Members: members,
	}
}

// aggregateVolumeLocked reports the mean of member player volumes.
func (g *Group) aggregateVolumeLocked() int {
	var sum, n int
	for _, id := range g.order {
		m := g.members[id]
		if m.hasRole(protocol.RolePlayer) {
			sum += m.Volume
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// allMutedLocked reports group mute: true only if every player member is muted.
func (g *Group) allMutedLocked() bool {
	any := false
	for _, id := range g.order {
		m := g.members[id]
		if m.hasRole(protocol.RolePlayer) {
			any = true
			if !m.Muted {
				return false
			}
		}
	}
	return any
}

// SetGroupVolume scales every player member's volume to move the aggregate
// to target (0..100), preserving each member's ratio to the prior
// aggregate and clamping to 0..100. Members at 0 are lifted to ceil(delta)
// rather than staying stuck at zero.
func (g *Group) SetGroupVolume(target int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if target < 0 {
		target = 0
	}
	if target > 100 {
		target = 100
	}

	current := g.aggregateVolumeLocked()
	delta := target - current

	var players []*Member
	for _, id := range g.order {
		m := g.members[id]
		if m.hasRole(protocol.RolePlayer) {
			players = append(players, m)
		}
	}
	if len(players) == 0 {
		return
	}

	if current == 0 {
		// Every member sits at 0: there's no ratio to preserve, so every
		// member is lifted by the same absolute delta.
		for _, m := range players {
			m.Volume = clampVolume(int(math.Ceil(float64(delta))))
		}
	} else {
		ratio := float64(target) / float64(current)
		for _, m := range players {
			if m.Volume == 0 && delta > 0 {
				m.Volume = clampVolume(int(math.Ceil(float64(delta))))
				continue
			}
			m.Volume = clampVolume(int(math.Round(float64(m.Volume) * ratio)))
		}
	}

	g.pushVolumeCommandsLocked()
	g.broadcastController()
}

// pushVolumeCommandsLocked tells each player member its new volume via
// server/command, limited to members that declared the volume command. The
// member echoes the applied state back via client/state. Caller must hold g.mu.
func (g *Group) pushVolumeCommandsLocked() {
	if g.sender == nil {
		return
	}
	for _, id := range g.order {
		m := g.members[id]
		if !m.hasRole(protocol.RolePlayer) || !m.supportsCommand("volume") {
			continue
		}
		cmd := protocol.ServerCommand{Player: &protocol.PlayerCommand{Command: "volume", Volume: m.Volume}}
		if err := g.sender.SendText(id, protocol.TypeServerCommand, cmd); err != nil {
			g.logger.Printf("group %s: volume command to %s failed: %v", g.ID, id, err)
		}
	}
}

// SetGroupMute toggles every player member's mute state. Unmuting restores
// each member's volume to whatever it was before the group was muted; this
// Group tracks that via the member's own pre-mute volume, so callers must
// not zero Volume on mute.
func (g *Group) SetGroupMute(muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range g.order {
		m := g.members[id]
		if !m.hasRole(protocol.RolePlayer) {
			continue
		}
		m.Muted = muted
		if g.sender != nil && m.supportsCommand("mute") {
			cmd := protocol.ServerCommand{Player: &protocol.PlayerCommand{Command: "mute", Mute: muted}}
			if err := g.sender.SendText(id, protocol.TypeServerCommand, cmd); err != nil {
				g.logger.Printf("group %s: mute command to %s failed: %v", g.ID, id, err)
			}
		}
	}
	g.broadcastController()
}

// UpdateMemberVolume records a single player member's self-reported
// volume/mute (from client/state) and re-broadcasts the resulting aggregate
// controller state. Unlike SetGroupVolume/SetGroupMute, this does not scale
// other members; it just reflects what one device already did locally.
func (g *Group) UpdateMemberVolume(clientID string, volume int, muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[clientID]
	if !ok || !m.hasRole(protocol.RolePlayer) {
		return
	}
	m.Volume = clampVolume(volume)
	m.Muted = muted
	g.broadcastController()
}

// PublishMetadata fans server/state.metadata to metadata-role members.
func (g *Group) PublishMetadata(state protocol.MetadataState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcastMetadata(state)
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ABOUTME: Controller command dispatch and the deterministic group-switch ordering
// ABOUTME: Handles the {play,pause,stop,...,switch} controller command set
package group

import (
	"fmt"
	"sort"
	"sync"

	"github.com/resonateaudio/resonate-core/internal/protocol"
)

// Registry owns every live Group, keyed by ID, and implements the `switch`
// command's candidate ordering across all of them. Connection goroutines
// add, look up, and remove groups independently, so every access to the map
// goes through the registry's own lock; per-Group state stays behind each
// Group's lock.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*Group)}
}

// Put registers a Group.
func (r *Registry) Put(g *Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g
}

// Remove drops a Group from the registry (called once ShouldDispose is true).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
}

// Get looks up a Group by ID.
func (r *Registry) Get(id string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// Snapshot returns a Snapshot of every registered Group, sorted by ID, for
// status displays.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	groups := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	out := make([]Snapshot, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Snapshot())
	}
	return out
}

// candidateBand classifies a Group for `switch` ordering:
// band 1 = multi-member playing groups, band 2 = solo players currently
// playing, band 3 = a solo group containing only the requesting client.
func candidateBand(g *Group, requestingClientID string) (band int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.members)
	if n == 0 {
		return 0, false
	}
	_, isSolo := g.members[requestingClientID]
	soloToRequester := n == 1 && isSolo

	switch {
	case n > 1 && g.state == Playing:
		return 1, true
	case n == 1 && g.state == Playing:
		return 2, true
	case soloToRequester:
		return 3, true
	default:
		return 0, false
	}
}

// SwitchCandidates returns every Group ID eligible as a `switch` target for
// requestingClientID, ordered by band then lexicographically by group ID
// within each band.
func (r *Registry) SwitchCandidates(requestingClientID string) []string {
	type candidate struct {
		id   string
		band int
	}
	r.mu.RLock()
	groups := make(map[string]*Group, len(r.groups))
	for id, g := range r.groups {
		groups[id] = g
	}
	r.mu.RUnlock()

	var candidates []candidate
	for id, g := range groups {
		if band, ok := candidateBand(g, requestingClientID); ok {
			candidates = append(candidates, candidate{id: id, band: band})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].band != candidates[j].band {
			return candidates[i].band < candidates[j].band
		}
		return candidates[i].id < candidates[j].id
	})
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// NextSwitchTarget returns the candidate immediately after currentGroupID in
// the deterministic cycle, wrapping around. Returns ok=false if there are no
// candidates at all.
func (r *Registry) NextSwitchTarget(requestingClientID, currentGroupID string) (string, bool) {
	candidates := r.SwitchCandidates(requestingClientID)
	if len(candidates) == 0 {
		return "", false
	}
	for i, id := range candidates {
		if id == currentGroupID {
			return candidates[(i+1)%len(candidates)], true
		}
	}
	return candidates[0], true
}

// Dispatch applies one controller command to its target Group. `switch`
// itself mutates the Registry's notion of which group the client is
// attached to, which is out of scope for Group and is returned to the
// caller (internal/server) to act on (move the client's membership).
func Dispatch(g *Group, cmd protocol.ControllerCommand) error {
	switch cmd.Command {
	case "play":
		return g.SetPlaybackState(Playing)
	case "pause":
		return g.SetPlaybackState(Paused)
	case "stop":
		return g.SetPlaybackState(Stopped)
	case "volume":
		if cmd.Volume == nil {
			return fmt.Errorf("volume command missing volume field")
		}
		if *cmd.Volume < 0 || *cmd.Volume > 100 {
			return fmt.Errorf("volume %d out of range 0..100", *cmd.Volume)
		}
		g.SetGroupVolume(*cmd.Volume)
		return nil
	case "mute":
		if cmd.Mute == nil {
			return fmt.Errorf("mute command missing mute field")
		}
		g.SetGroupMute(*cmd.Mute)
		return nil
	case "next", "previous", "repeat_off", "repeat_one", "repeat_all", "shuffle", "unshuffle":
		// These require an application-level media source; the Group Engine
		// itself has no notion of a playlist. Callers wire these through the
		// CapabilityProvider's backing application and call back into this
		// Group only for the resulting playback_state/metadata changes.
		return nil
	case "switch":
		return fmt.Errorf("switch is handled by the Registry, not a single Group")
	default:
		return fmt.Errorf("unrecognized controller command %q", cmd.Command)
	}
}

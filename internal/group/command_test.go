// ABOUTME: Tests for controller command dispatch and the switch-target ordering
package group

import (
	"fmt"
	"sync"
	"testing"

	"github.com/resonateaudio/resonate-core/internal/protocol"
)

func TestSwitchCandidates_BandOrdering(t *testing.T) {
	r := NewRegistry()

	multi := New("b-multi", "Multi", newFakeSender(), nil, nil, nil)
	multi.AddMember(playerMember("x", 50))
	multi.AddMember(playerMember("y", 50))
	multi.SetPlaybackState(Playing)
	r.Put(multi)

	soloPlaying := New("a-solo-playing", "SoloPlaying", newFakeSender(), nil, nil, nil)
	soloPlaying.AddMember(playerMember("z", 50))
	soloPlaying.SetPlaybackState(Playing)
	r.Put(soloPlaying)

	soloRequester := New("c-solo-requester", "SoloRequester", newFakeSender(), nil, nil, nil)
	soloRequester.AddMember(playerMember("requester", 50))
	r.Put(soloRequester)

	candidates := r.SwitchCandidates("requester")
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %v", candidates)
	}
	// band 1 (multi-member playing) sorts before band 2 (solo playing)
	// before band 3 (solo-to-requester), regardless of lexicographic ID.
	if candidates[0] != "b-multi" {
		t.Errorf("expected band-1 multi group first, got %v", candidates)
	}
	if candidates[1] != "a-solo-playing" {
		t.Errorf("expected band-2 solo-playing group second, got %v", candidates)
	}
	if candidates[2] != "c-solo-requester" {
		t.Errorf("expected band-3 solo-requester group third, got %v", candidates)
	}
}

func TestSwitchCandidates_LexicographicWithinBand(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zebra", "alpha", "mango"} {
		g := New(id, id, newFakeSender(), nil, nil, nil)
		g.AddMember(playerMember("m-"+id, 50))
		g.AddMember(playerMember("n-"+id, 50))
		g.SetPlaybackState(Playing)
		r.Put(g)
	}
	candidates := r.SwitchCandidates("someone-else")
	want := []string{"alpha", "mango", "zebra"}
	for i, w := range want {
		if candidates[i] != w {
			t.Errorf("position %d: expected %s, got %s (full: %v)", i, w, candidates[i], candidates)
		}
	}
}

func TestNextSwitchTarget_WrapsAround(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"alpha", "beta"} {
		g := New(id, id, newFakeSender(), nil, nil, nil)
		g.AddMember(playerMember("m-"+id, 50))
		g.AddMember(playerMember("n-"+id, 50))
		g.SetPlaybackState(Playing)
		r.Put(g)
	}
	next, ok := r.NextSwitchTarget("someone", "beta")
	if !ok || next != "alpha" {
		t.Errorf("expected wrap to alpha, got %s ok=%v", next, ok)
	}
}

func TestRegistry_ConcurrentPutGetRemove(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("g%d", n)
			g := New(id, id, newFakeSender(), nil, nil, nil)
			for j := 0; j < 200; j++ {
				r.Put(g)
				r.Get(id)
				r.Snapshot()
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
}

func TestDispatch_VolumeRangeValidation(t *testing.T) {
	g := New("g1", "Kitchen", newFakeSender(), nil, nil, nil)
	g.AddMember(playerMember("a", 50))

	bad := 150
	if err := Dispatch(g, protocol.ControllerCommand{Command: "volume", Volume: &bad}); err == nil {
		t.Error("expected PayloadRangeError-equivalent rejection for out-of-range volume")
	}
}

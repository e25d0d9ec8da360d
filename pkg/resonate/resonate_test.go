// ABOUTME: Tests for the public facade
// ABOUTME: Checks the aliases construct real Server/Player values
package resonate

import "testing"

func TestNewServer(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: ":0", Name: "facade-test"})
	if srv == nil {
		t.Fatal("expected server to be created")
	}
	if got := srv.StatusSnapshot(); got.Name != "facade-test" {
		t.Errorf("expected snapshot name facade-test, got %q", got.Name)
	}
}

func TestNewPlayer(t *testing.T) {
	p := NewPlayer(PlayerConfig{Name: "facade-player"})
	if p == nil {
		t.Fatal("expected player to be created")
	}
	st := p.Status()
	if st.Connected {
		t.Error("fresh player should not report connected")
	}
	if st.Volume != 100 {
		t.Errorf("fresh player volume should default to 100, got %d", st.Volume)
	}
}

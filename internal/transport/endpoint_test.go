// ABOUTME: Tests for the Connection Endpoint state machine
// ABOUTME: Exercises a real websocket pair via httptest, plus idempotent close
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/resonateaudio/resonate-core/internal/protocol"
)

type recordingHandler struct {
	mu         sync.Mutex
	texts      []string
	closedN    int
	closeOnce  chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closeOnce: make(chan struct{}, 1)}
}

func (h *recordingHandler) OnText(msgType string, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, msgType)
}

func (h *recordingHandler) OnBinary(frame protocol.Frame) {}

func (h *recordingHandler) OnClosed(reason error, retry bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closedN++
	select {
	case h.closeOnce <- struct{}{}:
	default:
	}
}

func dialPair(t *testing.T) (client *websocket.Conn, server *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	s := <-serverConnCh
	return c, s
}

func TestEndpoint_TextRoundTrip(t *testing.T) {
	clientConn, serverConn := dialPair(t)

	serverHandler := newRecordingHandler()
	serverEP := New(serverConn, Config{Side: SideServer, Handler: serverHandler})
	serverEP.SetPhase(PhaseEstablished)

	clientHandler := newRecordingHandler()
	clientEP := New(clientConn, Config{Side: SideClient, Handler: clientHandler})
	clientEP.SetPhase(PhaseEstablished)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serverEP.Start(ctx)
	clientEP.Start(ctx)

	if err := clientEP.SendText(protocol.TypeClientHello, protocol.ClientHello{ClientID: "c1"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		serverHandler.mu.Lock()
		n := len(serverHandler.texts)
		serverHandler.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for server to observe client/hello")
		case <-time.After(5 * time.Millisecond):
		}
	}

	serverHandler.mu.Lock()
	got := serverHandler.texts[0]
	serverHandler.mu.Unlock()
	if got != protocol.TypeClientHello {
		t.Errorf("expected %s, got %s", protocol.TypeClientHello, got)
	}
}

func TestEndpoint_CloseIsIdempotent(t *testing.T) {
	clientConn, serverConn := dialPair(t)
	_ = serverConn

	handler := newRecordingHandler()
	ep := New(clientConn, Config{Side: SideClient, Handler: handler})
	ep.SetPhase(PhaseEstablished)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ep.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep.Close(nil, false)
		}()
	}
	wg.Wait()

	select {
	case <-handler.closeOnce:
	case <-time.After(time.Second):
		t.Fatal("OnClosed never fired")
	}

	handler.mu.Lock()
	n := handler.closedN
	handler.mu.Unlock()
	if n != 1 {
		t.Errorf("expected OnClosed exactly once, got %d", n)
	}
	if ep.Phase() != PhaseClosed {
		t.Errorf("expected CLOSED, got %v", ep.Phase())
	}
}

// TestEndpoint_SendBufferOverrunClosesEndpoint: a full outbound queue is
// itself grounds for the Endpoint to close with overflow/retry=true, not
// merely an error the caller happens to see.
func TestEndpoint_SendBufferOverrunClosesEndpoint(t *testing.T) {
	clientConn, serverConn := dialPair(t)
	_ = serverConn

	handler := newRecordingHandler()
	ep := New(clientConn, Config{Side: SideClient, Handler: handler, QueueCapacity: 1})
	ep.SetPhase(PhaseEstablished)

	// No writer task running, so sendCh fills and stays full.
	if err := ep.SendText(protocol.TypeClientHello, protocol.ClientHello{ClientID: "a"}); err != nil {
		t.Fatalf("first send should queue without error: %v", err)
	}
	err := ep.SendText(protocol.TypeClientHello, protocol.ClientHello{ClientID: "b"})
	if err == nil {
		t.Fatal("expected BufferOverrun once the queue is full")
	}

	select {
	case <-handler.closeOnce:
	case <-time.After(time.Second):
		t.Fatal("BufferOverrun should have closed the endpoint")
	}
	if ep.Phase() != PhaseClosed {
		t.Errorf("expected CLOSED after buffer overrun, got %v", ep.Phase())
	}
}

func TestEndpoint_SendRejectedAfterClose(t *testing.T) {
	clientConn, _ := dialPair(t)
	handler := newRecordingHandler()
	ep := New(clientConn, Config{Side: SideClient, Handler: handler})
	ep.SetPhase(PhaseEstablished)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ep.Start(ctx)
	ep.Close(nil, false)

	if err := ep.SendText(protocol.TypeClientHello, protocol.ClientHello{}); err == nil {
		t.Error("expected send to fail after close")
	}
}

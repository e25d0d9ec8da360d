// ABOUTME: Connection Endpoint: one WebSocket peer's handshake state machine
// ABOUTME: Owns framed read/write, ordered shutdown, and the bounded send queue
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/resonateaudio/resonate-core/internal/protocol"
	"github.com/resonateaudio/resonate-core/internal/xerrors"
)

// Phase is one state of the Connection Endpoint handshake state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseHelloWait  // server side: awaiting client/hello (the server handshake goes from INIT straight to ESTABLISHED)
	PhaseHelloSent  // client side: client/hello sent, awaiting server/hello
	PhaseEstablished
	PhaseDraining
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseHelloWait:
		return "HELLO_WAIT"
	case PhaseHelloSent:
		return "HELLO_SENT"
	case PhaseEstablished:
		return "ESTABLISHED"
	case PhaseDraining:
		return "DRAINING"
	case PhaseClosed:
		return "CLOSED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Side distinguishes which end of the handshake this Endpoint plays.
type Side int

const (
	SideServer Side = iota
	SideClient
)

// outbound is one queued send: either a text frame (already-marshaled JSON)
// or a binary frame.
type outbound struct {
	binary bool
	data   []byte
}

// Handler receives decoded traffic from the reader task. Implementations
// must not block the reader for long; hand off to an internal channel if
// processing takes time.
type Handler interface {
	OnText(msgType string, payload json.RawMessage)
	OnBinary(frame protocol.Frame)
	// OnClosed is invoked exactly once, after the close protocol completes.
	OnClosed(reason error, retry bool)
}

// Endpoint owns one WebSocket connection and its handshake state machine.
// Exactly one reader task and one writer task run per Endpoint; application
// code never touches the underlying socket directly.
type Endpoint struct {
	side    Side
	conn    *websocket.Conn
	handler Handler
	logger  *log.Logger

	phase atomic.Int32 // Phase

	sendCh chan outbound
	once   sync.Once

	// drain tells the writer to flush what it can and exit; writerDone is
	// closed when the writer goroutine returns; writerUp records whether a
	// writer was ever started so Close knows who owns the socket for writes.
	drain      chan struct{}
	writerDone chan struct{}
	writerUp   atomic.Bool

	closeDeadline time.Duration
}

// Config configures a new Endpoint.
type Config struct {
	Side          Side
	Handler       Handler
	Logger        *log.Logger
	QueueCapacity int // bounded outbound queue; default 64
	CloseDeadline time.Duration // default 200ms
}

// New wraps an already-dialed/accepted *websocket.Conn as an Endpoint in
// the INIT phase. The caller must call Start to launch the reader/writer
// tasks.
func New(conn *websocket.Conn, cfg Config) *Endpoint {
	cap := cfg.QueueCapacity
	if cap <= 0 {
		cap = 64
	}
	deadline := cfg.CloseDeadline
	if deadline <= 0 {
		deadline = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	e := &Endpoint{
		side:          cfg.Side,
		conn:          conn,
		handler:       cfg.Handler,
		logger:        logger,
		sendCh:        make(chan outbound, cap),
		drain:         make(chan struct{}),
		writerDone:    make(chan struct{}),
		closeDeadline: deadline,
	}
	e.phase.Store(int32(PhaseInit))
	return e
}

// Phase returns the current handshake phase.
func (e *Endpoint) Phase() Phase { return Phase(e.phase.Load()) }

// SetPhase forces a phase transition. Used by the handshake driver in
// internal/server and internal/playerclient, which own the hello exchange
// and know when it legally advances.
func (e *Endpoint) SetPhase(p Phase) { e.phase.Store(int32(p)) }

// casPhase attempts from -> to, returning whether it won the race.
func (e *Endpoint) casPhase(from, to Phase) bool {
	return e.phase.CompareAndSwap(int32(from), int32(to))
}

// Start launches the reader and writer goroutines. Call once per Endpoint.
func (e *Endpoint) Start(ctx context.Context) {
	e.writerUp.Store(true)
	go e.readLoop(ctx)
	go e.writeLoop(ctx)
}

// SendText enqueues a JSON text message. Returns BufferOverrun if the
// bounded queue is full and TransportError if the Endpoint is already
// draining or closed.
func (e *Endpoint) SendText(msgType string, payload interface{}) error {
	if p := e.Phase(); p == PhaseDraining || p == PhaseClosed || p == PhaseFailed {
		return xerrors.New(xerrors.KindTransportError, "send on non-accepting endpoint")
	}
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case e.sendCh <- outbound{data: data}:
		return nil
	default:
		err = xerrors.New(xerrors.KindBufferOverrun, "outbound text queue full")
		e.Close(err, true)
		return err
	}
}

// SendBinary enqueues a pre-encoded binary frame.
func (e *Endpoint) SendBinary(frame []byte) error {
	if p := e.Phase(); p == PhaseDraining || p == PhaseClosed || p == PhaseFailed {
		return xerrors.New(xerrors.KindTransportError, "send on non-accepting endpoint")
	}
	select {
	case e.sendCh <- outbound{binary: true, data: frame}:
		return nil
	default:
		err := xerrors.New(xerrors.KindBufferOverrun, "outbound binary queue full")
		e.Close(err, true)
		return err
	}
}

func (e *Endpoint) readLoop(ctx context.Context) {
	for {
		msgType, data, err := e.conn.ReadMessage()
		if err != nil {
			e.Close(xerrors.Wrap(xerrors.KindTransportError, "read failed", err), true)
			return
		}
		switch msgType {
		case websocket.TextMessage:
			e.handleText(data)
		case websocket.BinaryMessage:
			e.handleBinary(data)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (e *Endpoint) handleText(data []byte) {
	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		e.logger.Printf("transport: malformed text frame: %v", err)
		return
	}
	phase := e.Phase()
	if phase != PhaseEstablished && !protocol.TextAllowedBeforeEstablished(msgType) {
		e.logger.Printf("transport: %s rejected in phase %s", msgType, phase)
		return
	}
	e.handler.OnText(msgType, payload)
}

func (e *Endpoint) handleBinary(data []byte) {
	if e.Phase() != PhaseEstablished {
		e.logger.Printf("transport: binary frame rejected outside ESTABLISHED")
		return
	}
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		e.logger.Printf("transport: %v", err)
		return
	}
	e.handler.OnBinary(frame)
}

func (e *Endpoint) writeLoop(ctx context.Context) {
	defer close(e.writerDone)
	for {
		select {
		case msg, ok := <-e.sendCh:
			if !ok {
				return
			}
			if err := e.writeMessage(msg); err != nil {
				// Detach the close so its wait for writerDone doesn't
				// deadlock against this goroutine's own exit.
				go e.Close(xerrors.Wrap(xerrors.KindTransportError, "write failed", err), true)
				return
			}
		case <-e.drain:
			e.drainSendQueue()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Endpoint) writeMessage(msg outbound) error {
	if msg.binary {
		return e.conn.WriteMessage(websocket.BinaryMessage, msg.data)
	}
	return e.conn.WriteMessage(websocket.TextMessage, msg.data)
}

// Close runs the ordered shutdown protocol. It is idempotent: concurrent
// callers observe identical effect and OnClosed fires exactly once.
func (e *Endpoint) Close(reason error, retry bool) {
	if !e.casPhase(PhaseEstablished, PhaseDraining) {
		// Also allow closing from earlier phases (handshake failed before
		// ESTABLISHED), but only the first caller proceeds.
		p := e.Phase()
		if p == PhaseDraining || p == PhaseClosed || p == PhaseFailed {
			return
		}
		e.phase.Store(int32(PhaseDraining))
	}

	e.once.Do(func() {
		// The writer owns all socket writes. Signal it to flush and exit,
		// then wait it out (bounded) so exactly one goroutine ever writes;
		// only when no writer was started does Close drain the queue itself.
		close(e.drain)
		if e.writerUp.Load() {
			select {
			case <-e.writerDone:
			case <-time.After(2 * e.closeDeadline):
				e.logger.Printf("transport: writer did not drain within deadline")
			}
		} else {
			e.drainSendQueue()
		}
		_ = e.conn.Close()
		e.phase.Store(int32(PhaseClosed))
		if e.handler != nil {
			e.handler.OnClosed(reason, retry)
		}
	})
}

// drainSendQueue flushes already-queued sends, bounded by closeDeadline so
// shutdown cannot block forever on a stuck socket. Runs on the writer
// goroutine during close (or on the closing caller when no writer exists).
func (e *Endpoint) drainSendQueue() {
	deadline := time.NewTimer(e.closeDeadline)
	defer deadline.Stop()
	for {
		select {
		case msg, ok := <-e.sendCh:
			if !ok {
				return
			}
			_ = e.writeMessage(msg)
		case <-deadline.C:
			return
		default:
			return
		}
	}
}

// String aids debugging/logging call sites.
func (e *Endpoint) String() string {
	return fmt.Sprintf("Endpoint{side=%v phase=%v}", e.side, e.Phase())
}

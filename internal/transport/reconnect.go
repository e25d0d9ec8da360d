// ABOUTME: Client-initiated reconnect driver, keyed by URL
// ABOUTME: One backoff task per URL, with compare-and-remove registry discipline
package transport

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"
)

// Dialer opens a new Endpoint for a URL. Supplied by the caller (client
// role) so this package stays transport-mechanism agnostic of how the
// websocket connection and handshake are actually performed.
type Dialer func(ctx context.Context, url string) error

// entry is one registry row: the retry-signal channel and the task that
// owns it. The task holds its own copy of retrySignal for its lifetime; the
// registry's copy is only used by connect() to decide whether to signal an
// existing task or spin up a new one.
type entry struct {
	retrySignal chan struct{}
}

// Reconnector is the server-scoped registry of reconnect tasks, one per URL.
// The single mutex here only ever guards registry membership, never the
// backoff wait itself.
type Reconnector struct {
	mu      sync.Mutex
	entries map[string]*entry

	dial       Dialer
	logger     *log.Logger
	maxBackoff time.Duration
}

// NewReconnector constructs a driver. maxBackoff defaults to 30s.
func NewReconnector(dial Dialer, logger *log.Logger, maxBackoff time.Duration) *Reconnector {
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reconnector{
		entries:    make(map[string]*entry),
		dial:       dial,
		logger:     logger,
		maxBackoff: maxBackoff,
	}
}

// Connect is an atomic check-and-create operation: if a
// reconnect task already runs for url, it signals that task's retry event;
// otherwise it creates the event and the task together under a single
// mutex region.
func (r *Reconnector) Connect(ctx context.Context, url string) {
	r.mu.Lock()
	if e, ok := r.entries[url]; ok {
		r.mu.Unlock()
		// Non-blocking signal: if the task is mid-dial it will see the
		// pending signal on its next wait.
		select {
		case e.retrySignal <- struct{}{}:
		default:
		}
		return
	}
	e := &entry{retrySignal: make(chan struct{}, 1)}
	r.entries[url] = e
	r.mu.Unlock()

	go r.run(ctx, url, e)
}

// Disconnect removes url's registry entry, so Connect no longer signals the
// task that was running for it. That task is not stopped: it keeps its own
// handle until its ctx ends, and its compare-and-remove then leaves any newer
// entry for url in place.
func (r *Reconnector) Disconnect(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, url)
}

// run is the reconnect task body. It holds its own local handle (e) to the
// retry signal for its entire lifetime and never re-looks-up the registry
// mid-loop, so a disconnect/connect pair racing with this task cannot let
// the old task clear the new task's event.
func (r *Reconnector) run(ctx context.Context, url string, e *entry) {
	attempt := 0
	defer r.deregister(url, e)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.dial(ctx, url); err != nil {
			r.logger.Printf("transport: dial %s failed: %v", url, err)
			attempt++
		} else {
			attempt = 0
			// dial returned nil only because its caller-supplied ctx (or a
			// Disconnect) ended the attempt cleanly, not because the
			// connection dropped with retry requested — a Dialer whose
			// connection closes with retry=true must return a non-nil error
			// instead (see playerclient.Client.Start) so that case is
			// handled by the backoff branch below, not here. Park until an
			// explicit Connect re-arms retrySignal.
			select {
			case <-e.retrySignal:
				continue
			case <-ctx.Done():
				return
			}
		}

		wait := backoff(attempt, r.maxBackoff)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-e.retrySignal:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// deregister performs compare-and-remove: the registry entry for url is
// deleted only if it still maps to this task's own handle, so a newer task
// that replaced this one in the registry is left untouched.
func (r *Reconnector) deregister(url string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[url]; ok && current == e {
		delete(r.entries, url)
	}
}

// backoff computes exponential backoff with jitter, clamped to max.
func backoff(attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := time.Duration(1<<uint(min(attempt, 20))) * 100 * time.Millisecond
	if base > max {
		base = max
	}
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))
	total := base/2 + jitter
	if total > max {
		total = max
	}
	return total
}

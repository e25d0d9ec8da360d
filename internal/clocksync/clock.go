// ABOUTME: Clock synchronization filter tracking offset and drift between endpoints
// ABOUTME: Pure computation: publishes an immutable snapshot, never locks across a read
package clocksync

import (
	"log"
	"sync/atomic"
	"time"
)

// Sample is one clock round-trip exchange, in microseconds.
//
//	T0: client transmit, T1: server receive, T2: server transmit, T3: client receive
type Sample struct {
	T0, T1, T2, T3 int64
}

// Snapshot is the published, immutable state of the filter. Readers obtain
// a Snapshot by pointer-swap and never observe a torn (offset, drift, basis)
// triple, even while Update runs concurrently.
type Snapshot struct {
	Offset int64   // microseconds; t_remote ≈ t_local + Offset + Drift*(t_local-Basis)
	Drift  float64 // unitless ratio (seconds of drift per second of local time)
	Basis  int64   // local microseconds at which this snapshot was computed
	RTT    int64   // most recent accepted round-trip delay, microseconds
	Locked bool    // true once at least one sample has been accepted

	// Quality and Diverged are derived from the estimator's covariance at
	// publish time, so readers get them without touching Update's private
	// state. The zero Snapshot reads as QualityLost / not diverged.
	Quality  Quality
	Diverged bool
}

// Quality buckets the filter's confidence, derived from its covariance.
type Quality int

const (
	QualityLost Quality = iota
	QualityDegraded
	QualityGood
)

const (
	// defaultOutlierMultiple is how far above the rolling median RTT a
	// sample may be before it is rejected as a network-congestion outlier.
	defaultOutlierMultiple = 2.0
	rollingWindow          = 16

	// fatalCovariance marks clock divergence: covariance this
	// high means the estimate can no longer be trusted for presentation-time
	// math and the player should report state:error.
	fatalCovariance = 50_000.0 * 50_000.0

	goodCovariance     = 500.0 * 500.0
	degradedCovariance = 5_000.0 * 5_000.0

	// Process noise lets drift adapt: too low and the filter can't track a
	// real clock-rate change, too high and it chases RTT jitter.
	offsetProcessNoise = 4.0
	driftProcessNoise  = 1e-8
)

// Filter is a two-state (offset, drift) clock estimator. All concurrency is
// snapshot publish / snapshot read: Update computes a new Snapshot and swaps
// it in atomically; readers never block on Update and Update never blocks on
// a reader.
type Filter struct {
	current atomic.Pointer[Snapshot]

	// Mutable estimator state, touched only from Update. Callers must
	// serialize their own calls to Update (one writer per Endpoint);
	// readers never touch these fields.
	covariance [2]float64 // diagonal covariance for (offset, drift)
	haveSample bool
	rttHistory [rollingWindow]int64
	rttCount   int
	logger     *log.Logger
}

// New creates a Filter with no samples yet; Snapshot().Locked is false until
// the first accepted sample.
func New(logger *log.Logger) *Filter {
	if logger == nil {
		logger = log.Default()
	}
	f := &Filter{logger: logger}
	f.current.Store(&Snapshot{})
	return f
}

// Snapshot returns the most recently published estimate. Safe to call from
// any goroutine; never blocks.
func (f *Filter) Snapshot() Snapshot {
	return *f.current.Load()
}

// Quality classifies the current estimate's confidence from the published
// snapshot's covariance-derived bucket.
func (f *Filter) Quality() Quality {
	return f.current.Load().Quality
}

// Diverged reports whether covariance has crossed the fatal threshold.
// Callers should surface this to the player as client/state{state: "error"}
// and keep running (errors of this kind do not close the Endpoint).
func (f *Filter) Diverged() bool {
	return f.current.Load().Diverged
}

// classify buckets an offset covariance into a Quality.
func classify(cov float64) Quality {
	switch {
	case cov >= degradedCovariance:
		return QualityLost
	case cov >= goodCovariance:
		return QualityDegraded
	default:
		return QualityGood
	}
}

// Update feeds one round-trip sample into the filter and republishes a new
// snapshot. Must not be called concurrently for the same Filter: the
// Endpoint that owns a clock estimate is the single writer.
func (f *Filter) Update(s Sample, now int64) {
	rtt := (s.T3 - s.T0) - (s.T2 - s.T1)
	offset := ((s.T1 - s.T0) + (s.T2 - s.T3)) / 2

	if f.rejectOutlier(rtt) {
		f.logger.Printf("clocksync: rejecting sample, rtt=%dus exceeds outlier threshold", rtt)
		f.recordRTT(rtt)
		return
	}
	f.recordRTT(rtt)

	prev := f.Snapshot()
	if !f.haveSample {
		f.initFilter(offset, now, rtt)
		return
	}

	dt := float64(now-prev.Basis) / 1e6
	if dt < 0 {
		dt = 0
	}

	// Predict: offset drifts forward by drift*dt since the basis.
	predictedOffset := prev.Offset + int64(prev.Drift*dt*1e6)
	predictedDrift := prev.Drift

	f.covariance[0] += offsetProcessNoise * dt
	f.covariance[1] += driftProcessNoise * dt

	// Measurement noise scales with rtt^2: a slower round trip is a noisier
	// offset sample.
	measurementNoise := float64(rtt) * float64(rtt)
	if measurementNoise < 1 {
		measurementNoise = 1
	}

	innovation := float64(offset - predictedOffset)

	kOffset := f.covariance[0] / (f.covariance[0] + measurementNoise)
	kDrift := f.covariance[1] / (f.covariance[0] + measurementNoise)

	newOffset := predictedOffset + int64(kOffset*innovation)
	newDrift := predictedDrift + kDrift*innovation/1e6

	f.covariance[0] *= 1 - kOffset
	f.covariance[1] *= 1 - kDrift

	f.current.Store(&Snapshot{
		Offset:   newOffset,
		Drift:    newDrift,
		Basis:    now,
		RTT:      rtt,
		Locked:   true,
		Quality:  classify(f.covariance[0]),
		Diverged: f.covariance[0] >= fatalCovariance,
	})
}

func (f *Filter) initFilter(offset, now, rtt int64) {
	f.haveSample = true
	f.covariance[0] = float64(rtt) * float64(rtt)
	f.covariance[1] = driftProcessNoise
	f.current.Store(&Snapshot{
		Offset:   offset,
		Drift:    0,
		Basis:    now,
		RTT:      rtt,
		Locked:   true,
		Quality:  classify(f.covariance[0]),
		Diverged: f.covariance[0] >= fatalCovariance,
	})
}

func (f *Filter) recordRTT(rtt int64) {
	f.rttHistory[f.rttCount%rollingWindow] = rtt
	f.rttCount++
}

func (f *Filter) rejectOutlier(rtt int64) bool {
	n := f.rttCount
	if n == 0 {
		return false
	}
	if n > rollingWindow {
		n = rollingWindow
	}
	sorted := append([]int64(nil), f.rttHistory[:n]...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return false
	}
	return float64(rtt) > float64(median)*defaultOutlierMultiple
}

// Reset clears all estimator state for a fresh connection.
func (f *Filter) Reset() {
	f.haveSample = false
	f.covariance = [2]float64{}
	f.rttCount = 0
	f.current.Store(&Snapshot{})
}

// ServerToLocal converts a server-clock microsecond timestamp to a local
// wall-clock deadline, used by client-side players to schedule playback.
func (snap Snapshot) ServerToLocal(serverMicros int64) time.Time {
	localMicros := serverMicros - snap.Offset
	if snap.Drift != 0 {
		localMicros = int64((float64(serverMicros-snap.Offset) + snap.Drift*float64(snap.Basis)) / (1 + snap.Drift))
	}
	return time.Unix(0, localMicros*1000)
}

// LocalToServer converts a local monotonic-microsecond reading to the
// corresponding server-clock timestamp, used by the Stream Scheduler to
// stamp presentation times.
func (snap Snapshot) LocalToServer(localMicros int64) int64 {
	return localMicros + snap.Offset + int64(snap.Drift*float64(localMicros-snap.Basis))
}

// NowMicros returns the current wall-clock time in microseconds, the unit
// every wire timestamp in this protocol uses.
func NowMicros() int64 {
	return time.Now().UnixNano() / 1000
}

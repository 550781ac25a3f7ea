package lossiness

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultMaxPerBucket caps the observation ring of each bucket.
	DefaultMaxPerBucket = 1000

	shardCount = 16
)

// Thresholds gate promotion and rollback.
type Thresholds struct {
	// Drift is the largest |drift| that still allows promotion.
	Drift float64 `json:"drift" toml:"drift"`
	// Rollback is the MAE above which the live version should be reverted.
	Rollback float64 `json:"rollback" toml:"rollback"`
	// Promotion is the largest MAE that still allows promotion.
	Promotion float64 `json:"promotion" toml:"promotion"`
}

// DefaultThresholds returns drift 0.10, rollback 0.30, promotion 0.05.
func DefaultThresholds() Thresholds {
	return Thresholds{Drift: 0.10, Rollback: 0.30, Promotion: 0.05}
}

// Validate checks the thresholds are non-negative and ordered.
func (t Thresholds) Validate() error {
	if t.Drift < 0 || t.Rollback < 0 || t.Promotion < 0 {
		return fmt.Errorf("lossiness thresholds must be >= 0: %+v", t)
	}
	if t.Promotion > t.Rollback {
		return fmt.Errorf("promotion threshold %.3f exceeds rollback threshold %.3f", t.Promotion, t.Rollback)
	}
	return nil
}

// MetricsRecorder receives the number of tracked buckets.
type MetricsRecorder interface {
	SetLossinessBuckets(n int)
}

// Tracker records observations per bucket. Appends to different buckets
// proceed in parallel; each bucket's ring is guarded by its shard lock.
type Tracker struct {
	shards       [shardCount]shard
	maxPerBucket int
	thresholds   Thresholds
	metrics      MetricsRecorder
	buckets      atomic.Int64
}

type shard struct {
	mu    sync.RWMutex
	rings map[Bucket]*ring
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithMaxPerBucket overrides the per-bucket ring capacity.
func WithMaxPerBucket(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxPerBucket = n
		}
	}
}

// WithThresholds overrides the promotion and rollback thresholds.
func WithThresholds(th Thresholds) Option {
	return func(t *Tracker) {
		t.thresholds = th
	}
}

// WithMetrics attaches a bucket-count recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// NewTracker builds an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		maxPerBucket: DefaultMaxPerBucket,
		thresholds:   DefaultThresholds(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	for i := range t.shards {
		t.shards[i].rings = make(map[Bucket]*ring)
	}
	return t
}

// Thresholds returns the tracker's gate thresholds.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

func (t *Tracker) shardFor(b Bucket) *shard {
	return &t.shards[xxhash.Sum64String(b.String())%shardCount]
}

// Record appends obs to its bucket, evicting the oldest observation once the
// ring is full.
func (t *Tracker) Record(obs Observation) {
	s := t.shardFor(obs.Bucket)
	s.mu.Lock()
	r, ok := s.rings[obs.Bucket]
	if !ok {
		r = newRing(t.maxPerBucket)
		s.rings[obs.Bucket] = r
	}
	r.push(obs)
	s.mu.Unlock()

	if !ok {
		n := t.buckets.Add(1)
		if t.metrics != nil {
			t.metrics.SetLossinessBuckets(int(n))
		}
	}
}

// Drift is the latest normalised error minus the one before it. ok is false
// with fewer than two observations.
func (t *Tracker) Drift(b Bucket) (drift float64, ok bool) {
	s := t.shardFor(b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rings[b].drift()
}

// MAE is the mean absolute normalised error over the bucket. ok is false for
// an empty bucket.
func (t *Tracker) MAE(b Bucket) (mae float64, ok bool) {
	s := t.shardFor(b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rings[b].mae()
}

// ShouldPromote reports whether the bucket's error is small and stable
// enough to adopt a calibrated coefficient set. It is false with fewer than
// two observations.
func (t *Tracker) ShouldPromote(b Bucket) bool {
	s := t.shardFor(b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.shouldPromote(s.rings[b])
}

// ShouldRollback reports whether the bucket's error warrants reverting the
// live coefficient set.
func (t *Tracker) ShouldRollback(b Bucket) bool {
	s := t.shardFor(b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return t.shouldRollback(s.rings[b])
}

func (t *Tracker) shouldPromote(r *ring) bool {
	mae, okMAE := r.mae()
	drift, okDrift := r.drift()
	if !okMAE || !okDrift {
		return false
	}
	return mae <= t.thresholds.Promotion && math.Abs(drift) <= t.thresholds.Drift
}

func (t *Tracker) shouldRollback(r *ring) bool {
	mae, ok := r.mae()
	return ok && mae > t.thresholds.Rollback
}

// Observations returns a copy of the bucket's observations, oldest first.
func (t *Tracker) Observations(b Bucket) []Observation {
	s := t.shardFor(b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rings[b].snapshot()
}

// Reset drops every bucket. Observations describe the predictions of the
// coefficient version that was live when they were made, so hosts reset the
// tracker after adopting or reverting a version.
func (t *Tracker) Reset() {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n := len(s.rings)
		clear(s.rings)
		s.mu.Unlock()
		t.buckets.Add(-int64(n))
	}
	if t.metrics != nil {
		t.metrics.SetLossinessBuckets(int(t.buckets.Load()))
	}
}

// BucketStats summarises one bucket.
type BucketStats struct {
	Bucket           Bucket   `json:"bucket"`
	ObservationCount int      `json:"observation_count"`
	MAE              *float64 `json:"mae"`
	Drift            *float64 `json:"drift"`
	ShouldPromote    bool     `json:"should_promote"`
	ShouldRollback   bool     `json:"should_rollback"`
}

// Summary aggregates every bucket.
type Summary struct {
	TotalObservations int           `json:"total_observations"`
	BucketCount       int           `json:"bucket_count"`
	Buckets           []BucketStats `json:"bucket_stats"`
}

// Summary reports every bucket sorted by phase, class, weather, load and
// time band. Shards are read one at a time, so the result is not a single
// atomic snapshot across buckets.
func (t *Tracker) Summary() Summary {
	var out Summary
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for b, r := range s.rings {
			st := BucketStats{
				Bucket:           b,
				ObservationCount: r.len,
				ShouldPromote:    t.shouldPromote(r),
				ShouldRollback:   t.shouldRollback(r),
			}
			if mae, ok := r.mae(); ok {
				st.MAE = &mae
			}
			if drift, ok := r.drift(); ok {
				st.Drift = &drift
			}
			out.TotalObservations += r.len
			out.Buckets = append(out.Buckets, st)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out.Buckets, func(a, b BucketStats) int {
		return compareBuckets(a.Bucket, b.Bucket)
	})
	out.BucketCount = len(out.Buckets)
	return out
}

// ring is a fixed-capacity FIFO of observations.
type ring struct {
	buf  []Observation
	head int
	len  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Observation, capacity)}
}

func (r *ring) push(obs Observation) {
	tail := (r.head + r.len) % len(r.buf)
	r.buf[tail] = obs
	if r.len < len(r.buf) {
		r.len++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// at returns the i-th oldest observation.
func (r *ring) at(i int) Observation {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *ring) drift() (float64, bool) {
	if r == nil || r.len < 2 {
		return 0, false
	}
	return r.at(r.len-1).DeltaNormalized - r.at(r.len-2).DeltaNormalized, true
}

func (r *ring) mae() (float64, bool) {
	if r == nil || r.len == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < r.len; i++ {
		sum += math.Abs(r.at(i).DeltaNormalized)
	}
	return sum / float64(r.len), true
}

func (r *ring) snapshot() []Observation {
	if r == nil {
		return nil
	}
	out := make([]Observation, r.len)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

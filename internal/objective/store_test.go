package objective

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoefficientMetrics struct {
	mu       sync.Mutex
	version  uint64
	outcomes map[string]int
}

func (f *fakeCoefficientMetrics) SetCoefficientVersion(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = v
}

func (f *fakeCoefficientMetrics) IncCoefficientPromotion(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = make(map[string]int)
	}
	f.outcomes[outcome]++
}

func TestNewCoefficientStoreRejectsInvalid(t *testing.T) {
	bad := DefaultCoefficients()
	bad.LambdaFail = 0.9
	_, err := NewCoefficientStore(bad)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStoreInstallValidatesFirst(t *testing.T) {
	rec := &fakeCoefficientMetrics{}
	s, err := NewCoefficientStore(DefaultCoefficients(), WithCoefficientMetrics(rec))
	require.NoError(t, err)

	bad := LatencyOptimized()
	bad.LambdaLat = -0.45
	require.ErrorIs(t, s.Install(bad), ErrInvalidState)
	assert.Equal(t, DefaultCoefficients(), s.Load(), "rejected set must never become visible")
	assert.Equal(t, 1, rec.outcomes[OutcomeRejected])

	require.NoError(t, s.Install(LatencyOptimized()))
	assert.Equal(t, PresetLatency, s.Load().Source)
	assert.Equal(t, 1, rec.outcomes[OutcomeInstalled])
}

func TestStorePromoteAndRollback(t *testing.T) {
	rec := &fakeCoefficientMetrics{}
	s, err := NewCoefficientStore(DefaultCoefficients(), WithCoefficientMetrics(rec))
	require.NoError(t, err)

	promoted, err := s.Promote(ReliabilityOptimized(), "calibration", 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), promoted.Version)
	assert.Equal(t, "calibration", promoted.Source)
	assert.Equal(t, uint64(1000), promoted.PromotedAtMs)
	assert.Equal(t, ReliabilityOptimized().Weights(), promoted.Weights())
	assert.True(t, promoted.HashMatches())
	assert.Equal(t, promoted, s.Load())
	assert.Equal(t, uint64(2), rec.version)

	restored, err := s.Rollback()
	require.NoError(t, err)
	assert.Equal(t, DefaultCoefficients(), restored)
	assert.Equal(t, restored, s.Load())
	assert.Equal(t, uint64(1), rec.version)
	assert.Equal(t, 1, rec.outcomes[OutcomeRolledBack])

	_, err = s.Rollback()
	assert.ErrorIs(t, err, ErrNoPreviousVersion)
}

func TestStorePromoteRejectsInvalidCandidate(t *testing.T) {
	s, err := NewCoefficientStore(DefaultCoefficients())
	require.NoError(t, err)

	bad := CostOptimized()
	bad.LambdaPower = 0.6
	_, err = s.Promote(bad, "calibration", 1)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, uint64(1), s.Load().Version)
}

func TestStoreConcurrentPromotionsAreMonotonic(t *testing.T) {
	s, err := NewCoefficientStore(DefaultCoefficients(), WithHistoryDepth(64))
	require.NoError(t, err)

	const writers = 32
	var wg sync.WaitGroup
	versions := make(chan uint64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Promote(CostOptimized(), "worker", uint64(i))
			if err != nil {
				t.Error(err)
				return
			}
			versions <- c.Version
		}(i)
	}

	// Readers only ever observe validated snapshots.
	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Load().Validate())
	}
	wg.Wait()
	close(versions)

	seen := make(map[uint64]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d issued twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, writers)
	assert.Equal(t, uint64(1+writers), s.Load().Version)
}

func TestStoreHistoryIsBounded(t *testing.T) {
	s, err := NewCoefficientStore(DefaultCoefficients(), WithHistoryDepth(3))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := s.Promote(DefaultCoefficients(), "step", uint64(i))
		require.NoError(t, err)
	}

	hist := s.History()
	require.Len(t, hist, 4)
	assert.Equal(t, uint64(11), hist[0].Version)
	assert.Equal(t, uint64(8), hist[3].Version)
}

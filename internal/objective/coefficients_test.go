package objective

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsValidate(t *testing.T) {
	for _, name := range PresetNames() {
		c, err := Preset(name)
		require.NoError(t, err, name)
		require.NoError(t, c.Validate(), name)
		assert.InDelta(t, 1.0, c.Sum(), 1e-9, name)
		assert.Equal(t, uint64(1), c.Version, name)
		assert.Equal(t, name, c.Source)
		assert.True(t, c.HashMatches(), name)
	}

	_, err := Preset("fastest")
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	bad := DefaultCoefficients()
	bad.LambdaLat = 0.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidState)

	neg := NewCoefficients(0.5, -0.1, 0.3, 0.1, 0.1, 0.1, "neg")
	assert.ErrorIs(t, neg.Validate(), ErrInvalidState)

	nan := DefaultCoefficients()
	nan.LambdaOpp = math.NaN()
	assert.ErrorIs(t, nan.Validate(), ErrInvalidState)
}

func TestPromoteIncrementsVersionAndRehashes(t *testing.T) {
	c1 := DefaultCoefficients()
	c2 := c1.Promote("calibration", 42)

	assert.Equal(t, c1.Version+1, c2.Version)
	assert.NotEqual(t, c1.VersionHash, c2.VersionHash)
	assert.Equal(t, "calibration", c2.Source)
	assert.Equal(t, uint64(42), c2.PromotedAtMs)
	assert.Equal(t, c1.Weights(), c2.Weights())

	// The original value is untouched.
	assert.Equal(t, uint64(1), c1.Version)
	assert.Equal(t, PresetDefault, c1.Source)
}

func TestVersionHashDeterministic(t *testing.T) {
	a, b := DefaultCoefficients(), DefaultCoefficients()
	assert.Equal(t, a.VersionHash, b.VersionHash)
	assert.Len(t, a.VersionHash, 16)

	// Provenance does not feed the hash.
	b.Source = "other"
	b.PromotedAtMs = 99
	assert.True(t, b.HashMatches())

	assert.NotEqual(t, DefaultCoefficients().VersionHash, LatencyOptimized().VersionHash)
}

func TestQuantizeAbsorbsResidueInLargestWeight(t *testing.T) {
	third := 0.1111111114
	twoNinths := 0.2222222219
	c := NewCoefficients(third, third, third, twoNinths, twoNinths, twoNinths, "calibration")

	q, err := c.Quantize()
	require.NoError(t, err)
	require.NoError(t, q.Validate())

	sum := decimal.Zero
	for _, w := range q.Weights() {
		sum = sum.Add(decimal.NewFromFloat(w))
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)), "sum = %s", sum)

	assert.Equal(t, 0.111111111, q.LambdaLat)
	assert.Equal(t, 0.222222223, q.LambdaCong)
	assert.Equal(t, 0.222222222, q.LambdaPower)
	assert.Equal(t, c.Version, q.Version)
	assert.True(t, q.HashMatches())
}

func TestQuantizeIsIdempotentOnPresets(t *testing.T) {
	c := ReliabilityOptimized()
	q, err := c.Quantize()
	require.NoError(t, err)
	assert.Equal(t, c.Weights(), q.Weights())
	assert.Equal(t, c.VersionHash, q.VersionHash)
}

func TestQuantizeRejectsInvalidVector(t *testing.T) {
	c := NewCoefficients(0.1, 0.1, 0.1, 0.1, 0.05, 0.05, "half")
	_, err := c.Quantize()
	require.ErrorIs(t, err, ErrInvalidState)

	neg := NewCoefficients(1.2, -0.2, 0, 0, 0, 0, "negative")
	_, err = neg.Quantize()
	require.ErrorIs(t, err, ErrInvalidState)
}

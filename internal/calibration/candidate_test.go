package calibration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCandidateWeights(t *testing.T) {
	doc := `
source = "nightly-fit"
lambda_lat = 0.40
lambda_jit = 0.10
lambda_fail = 0.20
lambda_cong = 0.10
lambda_power = 0.10
lambda_opp = 0.10
`
	c, err := DecodeCandidate(strings.NewReader(doc), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "nightly-fit", c.Source)
	assert.Equal(t, 0.40, c.LambdaLat)
	assert.Equal(t, uint64(1), c.Version)
	assert.True(t, c.HashMatches())
}

func TestDecodeCandidatePreset(t *testing.T) {
	c, err := DecodeCandidate(strings.NewReader(`preset = "reliability"`), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", c.Source)
	assert.Equal(t, objective.ReliabilityOptimized().Weights(), c.Weights())
}

func TestDecodeCandidateQuantize(t *testing.T) {
	doc := `
quantize = true
lambda_lat = 0.3333333333
lambda_jit = 0.3333333333
lambda_fail = 0.3333333334
lambda_cong = 0
lambda_power = 0
lambda_opp = 0
`
	c, err := DecodeCandidate(strings.NewReader(doc), "thirds")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.Sum(), 1e-9)
}

func TestDecodeCandidateErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":                `lambda_lat = `,
		"unknown key":           `preset = "default"` + "\nlambda_foo = 1",
		"both":                  "preset = \"default\"\nlambda_lat = 1",
		"partial":               "lambda_lat = 0.5\nlambda_jit = 0.5",
		"bad preset":            `preset = "fastest"`,
		"invalid sum":           "lambda_lat = 0.5\nlambda_jit = 0.5\nlambda_fail = 0.5\nlambda_cong = 0\nlambda_power = 0\nlambda_opp = 0",
		"negative":              "lambda_lat = 1.5\nlambda_jit = -0.5\nlambda_fail = 0\nlambda_cong = 0\nlambda_power = 0\nlambda_opp = 0",
		"empty":                 ``,
		"quantized invalid sum": "quantize = true\nlambda_lat = 0.1\nlambda_jit = 0.1\nlambda_fail = 0.1\nlambda_cong = 0.1\nlambda_power = 0.05\nlambda_opp = 0.05",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCandidate(strings.NewReader(doc), "x")
			assert.Error(t, err)
		})
	}

	_, err := DecodeCandidate(strings.NewReader(cases["quantized invalid sum"]), "x")
	assert.ErrorIs(t, err, objective.ErrInvalidState)
}

func TestLoadCandidateDefaultsSourceToBaseName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latency-2026.toml")
	require.NoError(t, os.WriteFile(path, []byte(`preset = "latency_optimized"`), 0o644))

	c, err := LoadCandidate(path)
	require.NoError(t, err)
	assert.Equal(t, "latency-2026", c.Source)

	_, err = LoadCandidate(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

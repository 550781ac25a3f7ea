package adjudicator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		want  Decision
	}{
		{0.95, Buy},
		{0.80, Buy},
		{0.7999, Spread},
		{0.50, Spread},
		{0.4999, Sell},
		{0, Sell},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.Decide(tc.score), "score %v", tc.score)
	}
}

func TestDecisionText(t *testing.T) {
	b, err := json.Marshal(struct {
		D Decision `json:"d"`
	}{Buy})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"Buy"}`, string(b))

	for _, name := range []string{"buy", "Spread", " SELL "} {
		_, err := ParseDecision(name)
		assert.NoError(t, err, name)
	}
	_, err = ParseDecision("hold")
	assert.Error(t, err)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	th := DefaultThresholds()
	th.MaxHops = 0
	assert.Error(t, th.Validate())

	th = DefaultThresholds()
	th.SpreadThreshold = 0.9
	assert.Error(t, th.Validate())
}

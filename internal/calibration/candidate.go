package calibration

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/signalsfoundry/mesh-router/internal/objective"
)

// CandidateExt is the extension of candidate coefficient files.
const CandidateExt = ".toml"

// candidateFile is the on-disk form of a coefficient candidate. Either
// preset or all six weights must be given.
type candidateFile struct {
	Source   string `toml:"source"`
	Preset   string `toml:"preset"`
	Quantize bool   `toml:"quantize"`

	LambdaLat   float64 `toml:"lambda_lat"`
	LambdaJit   float64 `toml:"lambda_jit"`
	LambdaFail  float64 `toml:"lambda_fail"`
	LambdaCong  float64 `toml:"lambda_cong"`
	LambdaPower float64 `toml:"lambda_power"`
	LambdaOpp   float64 `toml:"lambda_opp"`
}

var weightKeys = []string{"lambda_lat", "lambda_jit", "lambda_fail", "lambda_cong", "lambda_power", "lambda_opp"}

// LoadCandidate reads a candidate coefficient file. The source defaults to
// the file's base name.
func LoadCandidate(path string) (objective.RoutingCoefficients, error) {
	f, err := os.Open(path)
	if err != nil {
		return objective.RoutingCoefficients{}, fmt.Errorf("open candidate: %w", err)
	}
	defer f.Close()

	source := filepath.Base(path)
	c, err := DecodeCandidate(f, source[:len(source)-len(filepath.Ext(source))])
	if err != nil {
		return objective.RoutingCoefficients{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// DecodeCandidate parses a candidate from r. defaultSource is used when the
// document has no source key. The result is validated.
func DecodeCandidate(r io.Reader, defaultSource string) (objective.RoutingCoefficients, error) {
	var doc candidateFile
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return objective.RoutingCoefficients{}, fmt.Errorf("decode candidate: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return objective.RoutingCoefficients{}, fmt.Errorf("decode candidate: unknown key %q", undecoded[0].String())
	}

	source := doc.Source
	if source == "" {
		source = defaultSource
	}

	defined := 0
	for _, k := range weightKeys {
		if md.IsDefined(k) {
			defined++
		}
	}

	var c objective.RoutingCoefficients
	switch {
	case doc.Preset != "" && defined > 0:
		return objective.RoutingCoefficients{}, fmt.Errorf("candidate sets both preset and weights")
	case doc.Preset != "":
		c, err = objective.Preset(doc.Preset)
		if err != nil {
			return objective.RoutingCoefficients{}, err
		}
		c = objective.NewCoefficients(c.LambdaLat, c.LambdaJit, c.LambdaFail, c.LambdaCong, c.LambdaPower, c.LambdaOpp, source)
	case defined == len(weightKeys):
		c = objective.NewCoefficients(doc.LambdaLat, doc.LambdaJit, doc.LambdaFail, doc.LambdaCong, doc.LambdaPower, doc.LambdaOpp, source)
	default:
		return objective.RoutingCoefficients{}, fmt.Errorf("candidate defines %d of %d weights", defined, len(weightKeys))
	}

	if err := c.Validate(); err != nil {
		return objective.RoutingCoefficients{}, err
	}
	if doc.Quantize {
		return c.Quantize()
	}
	return c, nil
}

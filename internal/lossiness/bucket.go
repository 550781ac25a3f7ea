// Package lossiness tracks how far predicted route metrics drift from what is
// later observed, per operating regime, and decides whether a calibrated
// coefficient set is safe to adopt.
package lossiness

import (
	"cmp"
	"fmt"
	"math"

	"github.com/signalsfoundry/mesh-router/model"
)

// PhaseBinDeg is the width of an orbital-phase bin.
const PhaseBinDeg = 15

// Weather regimes.
const (
	WeatherClear    = "CLEAR"
	WeatherDegraded = "DEGRADED"
	WeatherSevere   = "SEVERE"
)

// Load regimes.
const (
	LoadLow    = "LOW"
	LoadMedium = "MEDIUM"
	LoadHigh   = "HIGH"
)

// Link classes.
const (
	ClassISL         = "ISL"
	ClassTerrestrial = "TERRESTRIAL"
)

// Bucket is a regime key. Buckets are comparable and used directly as map
// keys.
type Bucket struct {
	OrbitalPhase  uint16 `json:"orbital_phase"`
	LinkClass     string `json:"link_class"`
	WeatherRegime string `json:"weather_regime"`
	LoadRegime    string `json:"load_regime"`
	TimeBand      uint8  `json:"time_band"`
}

// NewBucket bins phaseDeg to 15 degrees modulo 360 and classifies weather and
// load. Negative phases wrap into [0, 360).
func NewBucket(phaseDeg float64, linkClass string, weatherScore, loadFactor float64, hourOfDay uint8) Bucket {
	return Bucket{
		OrbitalPhase:  phaseBin(phaseDeg),
		LinkClass:     linkClass,
		WeatherRegime: WeatherRegime(weatherScore),
		LoadRegime:    LoadRegime(loadFactor),
		TimeBand:      hourOfDay,
	}
}

func phaseBin(deg float64) uint16 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	bin := math.Floor(deg/PhaseBinDeg) * PhaseBinDeg
	bin = math.Mod(bin, 360)
	if bin < 0 {
		bin += 360
	}
	return uint16(bin)
}

// WeatherRegime classifies a weather score: CLEAR at 0.8 and above, DEGRADED
// at 0.5 and above, SEVERE below.
func WeatherRegime(score float64) string {
	switch {
	case score >= 0.8:
		return WeatherClear
	case score >= 0.5:
		return WeatherDegraded
	default:
		return WeatherSevere
	}
}

// LoadRegime classifies a load factor: LOW below 0.3, MEDIUM below 0.7, HIGH
// otherwise.
func LoadRegime(load float64) string {
	switch {
	case load < 0.3:
		return LoadLow
	case load < 0.7:
		return LoadMedium
	default:
		return LoadHigh
	}
}

// LinkClass names the class of a link. Ground links carry the tier of the
// ground station they terminate at.
func LinkClass(t model.LinkType, groundTier uint8) string {
	switch t {
	case model.InterSatellite:
		return ClassISL
	case model.SatelliteToGround:
		return fmt.Sprintf("SG_TIER%d", groundTier)
	default:
		return ClassTerrestrial
	}
}

func (b Bucket) String() string {
	return fmt.Sprintf("%03d/%s/%s/%s/%02d", b.OrbitalPhase, b.LinkClass, b.WeatherRegime, b.LoadRegime, b.TimeBand)
}

func compareBuckets(a, b Bucket) int {
	return cmp.Or(
		cmp.Compare(a.OrbitalPhase, b.OrbitalPhase),
		cmp.Compare(a.LinkClass, b.LinkClass),
		cmp.Compare(a.WeatherRegime, b.WeatherRegime),
		cmp.Compare(a.LoadRegime, b.LoadRegime),
		cmp.Compare(a.TimeBand, b.TimeBand),
	)
}

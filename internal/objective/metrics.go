package objective

import (
	"math"

	"github.com/signalsfoundry/mesh-router/core"
	"github.com/signalsfoundry/mesh-router/model"
)

const (
	baseLinkFailure     = 1e-4
	maxLinkFailure      = 0.5
	latencyStddevFactor = 0.1
	assumedUtilisation  = 0.5
	opportunityPerGbps  = 0.01
)

// RouteMetrics is the end-to-end composition of per-link statistics along a
// candidate path.
type RouteMetrics struct {
	MuLatencyMs      float64  `json:"mu_latency_ms"`
	Sigma2LatencyMs2 float64  `json:"sigma2_latency_ms2"`
	PiFailure        float64  `json:"pi_failure"`
	KappaCongestion  float64  `json:"kappa_congestion"`
	CPower           float64  `json:"c_power"`
	COpportunity     float64  `json:"c_opportunity"`
	Path             []string `json:"path"`
	HopCount         int      `json:"hop_count"`
	MinMarginDB      float64  `json:"min_margin_db"`
	WeatherFactor    float64  `json:"weather_factor"`
	// ThroughputGbps is the bottleneck (minimum) throughput.
	ThroughputGbps float64 `json:"throughput_gbps"`
}

// FromPath composes metrics for path over g. It returns nil when the path has
// fewer than two nodes or when any hop is missing or inactive; an infeasible
// route is not an error.
func FromPath(path []string, g *core.ConstellationGraph) *RouteMetrics {
	if len(path) < 2 || g == nil {
		return nil
	}

	var (
		mu, sigma2     float64
		successProduct = 1.0
		power          float64
		weatherProduct = 1.0
		minMargin      = math.MaxFloat64
		minThroughput  = math.MaxFloat64
		capacity, load float64
		hops           int
	)

	for i := 0; i+1 < len(path); i++ {
		link, ok := g.LinkBetween(path[i], path[i+1])
		if !ok || !link.Active {
			return nil
		}

		mu += link.LatencyMs
		sd := link.LatencyMs * latencyStddevFactor
		sigma2 += sd * sd
		successProduct *= 1 - linkFailureProbability(link)
		power += linkPower(link)
		weatherProduct *= link.WeatherScore
		minMargin = math.Min(minMargin, link.MarginDB)
		minThroughput = math.Min(minThroughput, link.ThroughputGbps)
		capacity += link.ThroughputGbps
		load += link.ThroughputGbps * assumedUtilisation
		hops++
	}

	kappa := 1.0
	if capacity > 0 {
		kappa = math.Min(1, load/capacity)
	}

	return &RouteMetrics{
		MuLatencyMs:      mu,
		Sigma2LatencyMs2: sigma2,
		PiFailure:        1 - successProduct,
		KappaCongestion:  kappa,
		CPower:           power,
		COpportunity:     minThroughput * opportunityPerGbps * float64(hops),
		Path:             append([]string(nil), path...),
		HopCount:         hops,
		MinMarginDB:      minMargin,
		WeatherFactor:    weatherProduct,
		ThroughputGbps:   minThroughput,
	}
}

// linkFailureProbability is a provisional per-hop failure estimate from
// margin and weather.
func linkFailureProbability(link model.Link) float64 {
	marginFactor := 1.0
	switch {
	case link.MarginDB < 3:
		marginFactor = 5
	case link.MarginDB < 6:
		marginFactor = 2
	}

	weatherFactor := 1.0
	switch {
	case link.WeatherScore < 0.5:
		weatherFactor = 10
	case link.WeatherScore < 0.8:
		weatherFactor = 2
	}

	return math.Min(baseLinkFailure*marginFactor*weatherFactor, maxLinkFailure)
}

func linkPower(link model.Link) float64 {
	var base float64
	switch link.Type {
	case model.InterSatellite:
		base = 0.5
	case model.SatelliteToGround:
		base = 0.3
	case model.Terrestrial:
		base = 0.4
	}
	return base * (1 + link.ThroughputGbps/100)
}

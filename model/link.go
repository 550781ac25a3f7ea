package model

import (
	"fmt"
	"strings"
)

// LinkType classifies a physical link.
type LinkType int

const (
	// InterSatellite is a laser crosslink between two satellites.
	InterSatellite LinkType = iota
	// SatelliteToGround is an optical up/downlink.
	SatelliteToGround
	// Terrestrial is a ground-to-ground backhaul link.
	Terrestrial
)

func (t LinkType) String() string {
	switch t {
	case InterSatellite:
		return "inter_satellite"
	case SatelliteToGround:
		return "satellite_to_ground"
	case Terrestrial:
		return "terrestrial"
	default:
		return fmt.Sprintf("link_type(%d)", int(t))
	}
}

// MarshalText encodes the link type by name so results stay readable as JSON.
func (t LinkType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText plus a few aliases.
func (t *LinkType) UnmarshalText(b []byte) error {
	parsed, err := ParseLinkType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseLinkType maps a textual link type to its constant.
func ParseLinkType(s string) (LinkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inter_satellite", "isl", "intersatellite":
		return InterSatellite, nil
	case "satellite_to_ground", "sg", "downlink", "uplink":
		return SatelliteToGround, nil
	case "terrestrial", "fiber", "ground":
		return Terrestrial, nil
	default:
		return 0, fmt.Errorf("unknown link type %q", s)
	}
}

// Link carries the attributes of one physical link. The graph stores a copy
// per direction and keeps both copies identical.
type Link struct {
	ID             string   `json:"id"`
	Type           LinkType `json:"link_type"`
	MarginDB       float64  `json:"margin_db"` // may be negative
	ThroughputGbps float64  `json:"throughput_gbps"`
	LatencyMs      float64  `json:"latency_ms"`
	Active         bool     `json:"active"`
	WeatherScore   float64  `json:"weather_score"` // 0-1, 1 = no impact
}

// InterSatelliteLink returns a 10 Gbps crosslink with no weather impact.
func InterSatelliteLink(id string, marginDB float64) Link {
	return Link{
		ID:             id,
		Type:           InterSatellite,
		MarginDB:       marginDB,
		ThroughputGbps: 10.0,
		LatencyMs:      0.1,
		Active:         true,
		WeatherScore:   1.0,
	}
}

// SatelliteToGroundLink returns a 10 Gbps optical downlink at LEO slant range.
func SatelliteToGroundLink(id string, marginDB, weatherScore float64) Link {
	return Link{
		ID:             id,
		Type:           SatelliteToGround,
		MarginDB:       marginDB,
		ThroughputGbps: 10.0,
		LatencyMs:      5.0,
		Active:         true,
		WeatherScore:   weatherScore,
	}
}

// TerrestrialLink returns a fibre backhaul link with a large fixed margin.
func TerrestrialLink(id string, latencyMs float64) Link {
	return Link{
		ID:             id,
		Type:           Terrestrial,
		MarginDB:       20.0,
		ThroughputGbps: 100.0,
		LatencyMs:      latencyMs,
		Active:         true,
		WeatherScore:   1.0,
	}
}

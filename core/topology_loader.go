package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/mesh-router/model"
)

// Topology summarises what LoadTopology registered.
type Topology struct {
	NodeIDs []string
	LinkIDs []string
}

// internal JSON shapes, unexported so the file format can evolve.
type topologyJSON struct {
	Nodes []nodeJSON `json:"nodes"`
	Links []linkJSON `json:"links"`
}

type nodeJSON struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Kind         string  `json:"kind"` // "satellite" | "ground_station"
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	Epoch        int64   `json:"epoch"`

	AltitudeKm     float64 `json:"altitude_km"`
	PlaneIndex     uint8   `json:"plane_index"`
	InclinationDeg float64 `json:"inclination_deg"`

	Tier         uint8    `json:"tier"`
	WeatherScore *float64 `json:"weather_score"`
	FSOCapable   *bool    `json:"fso_capable"`
}

type linkJSON struct {
	ID             string   `json:"id"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Type           string   `json:"link_type"`
	MarginDB       float64  `json:"margin_db"`
	ThroughputGbps *float64 `json:"throughput_gbps"`
	LatencyMs      *float64 `json:"latency_ms"`
	WeatherScore   *float64 `json:"weather_score"`
	Active         *bool    `json:"active"` // optional; defaults to true
}

// LoadTopology decodes a JSON topology from r and registers its nodes and
// links on g. Unset link attributes take the defaults of the link type's
// constructor.
func LoadTopology(g *ConstellationGraph, r io.Reader) (*Topology, error) {
	if g == nil {
		return nil, fmt.Errorf("LoadTopology: graph is nil")
	}

	var payload topologyJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadTopology: decode failed: %w", err)
	}

	result := &Topology{
		NodeIDs: make([]string, 0, len(payload.Nodes)),
		LinkIDs: make([]string, 0, len(payload.Links)),
	}

	for _, jn := range payload.Nodes {
		node, err := jn.toNode()
		if err != nil {
			return nil, fmt.Errorf("LoadTopology: %w", err)
		}
		if _, err := g.AddNode(node); err != nil {
			return nil, fmt.Errorf("LoadTopology: %w", err)
		}
		result.NodeIDs = append(result.NodeIDs, node.ID)
	}

	for _, jl := range payload.Links {
		if jl.ID == "" {
			return nil, fmt.Errorf("LoadTopology: link with empty id")
		}
		link, err := jl.toLink()
		if err != nil {
			return nil, fmt.Errorf("LoadTopology: link %q: %w", jl.ID, err)
		}
		if err := g.AddLink(jl.From, jl.To, link); err != nil {
			return nil, fmt.Errorf("LoadTopology: link %q: %w", jl.ID, err)
		}
		result.LinkIDs = append(result.LinkIDs, jl.ID)
	}

	return result, nil
}

func (jn nodeJSON) toNode() (model.Node, error) {
	if jn.ID == "" {
		return model.Node{}, fmt.Errorf("node with empty id")
	}
	var node model.Node
	switch strings.ToLower(strings.TrimSpace(jn.Kind)) {
	case "satellite", "sat":
		node = model.NewSatellite(jn.ID, jn.Name, jn.LatitudeDeg, jn.LongitudeDeg, jn.AltitudeKm, jn.PlaneIndex, jn.InclinationDeg)
	case "ground_station", "ground", "gs":
		node = model.NewGroundStation(jn.ID, jn.Name, jn.LatitudeDeg, jn.LongitudeDeg, jn.Tier)
		gs := node.Kind.(model.GroundStation)
		if jn.WeatherScore != nil {
			gs.WeatherScore = *jn.WeatherScore
		}
		if jn.FSOCapable != nil {
			gs.FSOCapable = *jn.FSOCapable
		}
		node.Kind = gs
	default:
		return model.Node{}, fmt.Errorf("node %q: unknown kind %q", jn.ID, jn.Kind)
	}
	node.Epoch = jn.Epoch
	return node, nil
}

func (jl linkJSON) toLink() (model.Link, error) {
	lt, err := model.ParseLinkType(jl.Type)
	if err != nil {
		return model.Link{}, err
	}
	var link model.Link
	switch lt {
	case model.InterSatellite:
		link = model.InterSatelliteLink(jl.ID, jl.MarginDB)
	case model.SatelliteToGround:
		link = model.SatelliteToGroundLink(jl.ID, jl.MarginDB, 1.0)
	case model.Terrestrial:
		link = model.TerrestrialLink(jl.ID, 1.0)
		link.MarginDB = jl.MarginDB
	}
	if jl.ThroughputGbps != nil {
		if *jl.ThroughputGbps <= 0 {
			return model.Link{}, fmt.Errorf("throughput_gbps must be > 0")
		}
		link.ThroughputGbps = *jl.ThroughputGbps
	}
	if jl.LatencyMs != nil {
		if *jl.LatencyMs < 0 {
			return model.Link{}, fmt.Errorf("latency_ms must be >= 0")
		}
		link.LatencyMs = *jl.LatencyMs
	}
	if jl.WeatherScore != nil {
		link.WeatherScore = *jl.WeatherScore
	}
	if jl.Active != nil {
		link.Active = *jl.Active
	}
	return link, nil
}

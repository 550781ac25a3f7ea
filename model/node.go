package model

// NodeKind is the type-specific payload carried by a Node. It is a closed set:
// Satellite and GroundStation are the only implementations.
type NodeKind interface {
	nodeKind() string
}

// Satellite describes an orbiting mesh node.
type Satellite struct {
	AltitudeKm     float64 `json:"altitude_km"`
	PlaneIndex     uint8   `json:"plane_index"`
	InclinationDeg float64 `json:"inclination_deg"`
}

func (Satellite) nodeKind() string { return "satellite" }

// GroundStation describes a terrestrial optical terminal.
type GroundStation struct {
	Tier         uint8   `json:"tier"`
	WeatherScore float64 `json:"weather_score"` // 0-1, 1 = clear sky
	FSOCapable   bool    `json:"fso_capable"`
}

func (GroundStation) nodeKind() string { return "ground_station" }

// Node is a vertex in the constellation graph. Nodes are created once when the
// topology is built; only the position and epoch change afterwards.
type Node struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	LatitudeDeg  float64  `json:"latitude_deg"`
	LongitudeDeg float64  `json:"longitude_deg"`
	Epoch        int64    `json:"epoch"` // unix seconds of the position fix
	Kind         NodeKind `json:"kind"`
}

// NewSatellite builds a satellite node with a zero epoch.
func NewSatellite(id, name string, lat, lon, altitudeKm float64, plane uint8, inclinationDeg float64) Node {
	return Node{
		ID:           id,
		Name:         name,
		LatitudeDeg:  lat,
		LongitudeDeg: lon,
		Kind: Satellite{
			AltitudeKm:     altitudeKm,
			PlaneIndex:     plane,
			InclinationDeg: inclinationDeg,
		},
	}
}

// NewGroundStation builds an FSO-capable ground station with clear weather.
func NewGroundStation(id, name string, lat, lon float64, tier uint8) Node {
	return Node{
		ID:           id,
		Name:         name,
		LatitudeDeg:  lat,
		LongitudeDeg: lon,
		Kind: GroundStation{
			Tier:         tier,
			WeatherScore: 1.0,
			FSOCapable:   true,
		},
	}
}

// KindName returns "satellite", "ground_station" or "" for a node without a kind.
func (n Node) KindName() string {
	if n.Kind == nil {
		return ""
	}
	return n.Kind.nodeKind()
}

func (n Node) IsSatellite() bool {
	_, ok := n.Kind.(Satellite)
	return ok
}

func (n Node) IsGroundStation() bool {
	_, ok := n.Kind.(GroundStation)
	return ok
}

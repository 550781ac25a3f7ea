package core

import (
	"math"

	"github.com/signalsfoundry/mesh-router/model"
)

// EarthRadiusKm is the mean Earth radius used by the spherical model.
const EarthRadiusKm = 6371.0

// LightSpeedKmPerMs is the vacuum speed of light.
const LightSpeedKmPerMs = 299.792458

// Vec3 is an Earth-fixed cartesian position in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// PositionECEF places a point at latDeg, lonDeg and altKm above the spherical
// Earth.
func PositionECEF(latDeg, lonDeg, altKm float64) Vec3 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	r := EarthRadiusKm + altKm
	return Vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

func nodePosition(n model.Node) Vec3 {
	var alt float64
	if sat, ok := n.Kind.(model.Satellite); ok {
		alt = sat.AltitudeKm
	}
	return PositionECEF(n.LatitudeDeg, n.LongitudeDeg, alt)
}

func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// surfaceToleranceKm absorbs rounding for endpoints placed on the sphere.
const surfaceToleranceKm = 1e-6

// hasLineOfSight reports whether the segment p1-p2 clears the Earth sphere.
// A segment touching the surface only at a ground endpoint is clear.
func hasLineOfSight(p1, p2 Vec3) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	limit := EarthRadiusKm - surfaceToleranceKm
	if a == 0 {
		return p1.Norm() >= limit
	}

	// Closest point of the segment to the Earth's centre.
	t := min(max(-p1.Dot(v)/a, 0), 1)
	closest := Vec3{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}
	return closest.Norm() >= limit
}

// ElevationDegrees is the angle of target above observer's local horizon;
// 90 is overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	r := observer.Norm()
	if vNorm == 0 || r == 0 {
		return 90
	}
	cosZenith := min(max(v.Dot(observer)/(vNorm*r), -1), 1)
	return 90 - math.Acos(cosZenith)*180/math.Pi
}

// GroundLinkGeometry is the slant geometry of one satellite-to-ground link.
type GroundLinkGeometry struct {
	RangeKm      float64
	ElevationDeg float64
	LatencyMs    float64
	Visible      bool
}

// groundLinkGeometry evaluates the link between a and b, whichever of the
// two is the ground station.
func groundLinkGeometry(a, b model.Node, minElevationDeg float64) GroundLinkGeometry {
	ground, sat := a, b
	if a.IsSatellite() {
		ground, sat = b, a
	}
	gp, sp := nodePosition(ground), nodePosition(sat)
	rangeKm := gp.DistanceTo(sp)
	elev := ElevationDegrees(gp, sp)
	return GroundLinkGeometry{
		RangeKm:      rangeKm,
		ElevationDeg: elev,
		LatencyMs:    rangeKm / LightSpeedKmPerMs,
		Visible:      hasLineOfSight(gp, sp) && elev >= minElevationDeg,
	}
}

// RefreshGroundLinks recomputes latency and visibility of every
// satellite-to-ground link from the current node positions. A link is active
// only while the satellite stands at least minElevationDeg above the ground
// station's horizon. It returns the number of links whose state changed.
func (g *ConstellationGraph) RefreshGroundLinks(minElevationDeg float64) int {
	changed := 0
	for i := range g.edges {
		e := &g.edges[i]
		if e.link.Type != model.SatelliteToGround {
			continue
		}
		geo := groundLinkGeometry(g.nodes[e.from], g.nodes[e.to], minElevationDeg)
		if e.link.Active != geo.Visible || e.link.LatencyMs != geo.LatencyMs {
			// Both directed copies change together; count the link once.
			if e.from < e.to {
				changed++
			}
		}
		e.link.Active = geo.Visible
		e.link.LatencyMs = geo.LatencyMs
	}
	return changed
}

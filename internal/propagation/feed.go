// Package propagation turns two-line element sets into node position updates
// for the routing graph.
package propagation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/mesh-router/core"
)

const tleLineLen = 69

// Position is a propagated fix for one node.
type Position struct {
	NodeID     string  `json:"node_id"`
	LatDeg     float64 `json:"lat_deg"`
	LonDeg     float64 `json:"lon_deg"`
	AltitudeKm float64 `json:"altitude_km"`
	// PhaseDeg is the argument of latitude in [0, 360): the angle travelled
	// from the ascending node.
	PhaseDeg float64 `json:"phase_deg"`
	Epoch    int64   `json:"epoch"`
}

// PositionUpdater receives propagated positions. *core.SharedGraph
// satisfies it.
type PositionUpdater interface {
	UpdateNodePosition(id string, latDeg, lonDeg float64, epoch int64) error
}

var _ PositionUpdater = (*core.SharedGraph)(nil)

// Feed propagates a set of satellites with SGP4.
type Feed struct {
	mu   sync.RWMutex
	sats map[string]satellite.Satellite
	last map[string]Position
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{
		sats: make(map[string]satellite.Satellite),
		last: make(map[string]Position),
	}
}

// AddTLE registers nodeID with the given element set, replacing any earlier
// one.
func (f *Feed) AddTLE(nodeID, line1, line2 string) error {
	if nodeID == "" {
		return errors.New("propagation: empty node id")
	}
	line1, line2 = strings.TrimRight(line1, "\r\n "), strings.TrimRight(line2, "\r\n ")
	if err := checkTLE(line1, line2); err != nil {
		return fmt.Errorf("propagation: %s: %w", nodeID, err)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	f.mu.Lock()
	f.sats[nodeID] = sat
	f.mu.Unlock()
	return nil
}

func checkTLE(line1, line2 string) error {
	if len(line1) != tleLineLen || len(line2) != tleLineLen {
		return fmt.Errorf("TLE lines must be %d characters, got %d and %d", tleLineLen, len(line1), len(line2))
	}
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return errors.New("TLE lines must start with \"1 \" and \"2 \"")
	}
	return nil
}

// LoadTLEs reads three-line element sets from r: a name line holding the
// node id followed by the two element lines. Blank lines are skipped. It
// returns the number of satellites added.
func (f *Feed) LoadTLEs(r io.Reader) (int, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("propagation: read TLEs: %w", err)
	}
	if len(lines)%3 != 0 {
		return 0, fmt.Errorf("propagation: %d non-blank lines is not a multiple of 3", len(lines))
	}
	for i := 0; i < len(lines); i += 3 {
		name := strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
		if err := f.AddTLE(name, lines[i+1], lines[i+2]); err != nil {
			return i / 3, err
		}
	}
	return len(lines) / 3, nil
}

// Len reports the number of registered satellites.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sats)
}

// Propagate returns the position of every satellite at t, ordered by node id.
func (f *Feed) Propagate(t time.Time) []Position {
	f.mu.RLock()
	ids := make([]string, 0, len(f.sats))
	for id := range f.sats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, propagateOne(id, f.sats[id], t))
	}
	f.mu.RUnlock()
	return out
}

// Apply propagates to t and pushes every fix to dst. Update failures, such as
// a satellite missing from the graph, are joined and returned after all fixes
// have been attempted.
func (f *Feed) Apply(ctx context.Context, dst PositionUpdater, t time.Time) ([]Position, error) {
	positions := f.Propagate(t)
	f.mu.Lock()
	for _, p := range positions {
		f.last[p.NodeID] = p
	}
	f.mu.Unlock()

	var errs []error
	for _, p := range positions {
		if err := ctx.Err(); err != nil {
			return positions, err
		}
		if err := dst.UpdateNodePosition(p.NodeID, p.LatDeg, p.LonDeg, p.Epoch); err != nil {
			errs = append(errs, err)
		}
	}
	return positions, errors.Join(errs...)
}

// Last returns the most recent fix applied for nodeID.
func (f *Feed) Last(nodeID string) (Position, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.last[nodeID]
	return p, ok
}

// Phase returns the orbital phase of the most recent fix applied for nodeID.
func (f *Feed) Phase(nodeID string) (float64, bool) {
	p, ok := f.Last(nodeID)
	return p.PhaseDeg, ok
}

func propagateOne(id string, sat satellite.Satellite, t time.Time) Position {
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	pos, vel := satellite.Propagate(sat, year, int(month), day, hour, minute, sec)
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, minute, sec))
	alt, _, ll := satellite.ECIToLLA(pos, gmst)

	return Position{
		NodeID:     id,
		LatDeg:     ll.Latitude * 180 / math.Pi,
		LonDeg:     normalizeLon(ll.Longitude * 180 / math.Pi),
		AltitudeKm: alt,
		PhaseDeg:   argumentOfLatitude(pos, vel),
		Epoch:      t.Unix(),
	}
}

// argumentOfLatitude is the angle from the ascending node to r, measured in
// the orbital plane in the direction of motion.
func argumentOfLatitude(r, v satellite.Vector3) float64 {
	h := cross(r, v)
	// Node vector: z-axis cross h.
	n := satellite.Vector3{X: -h.Y, Y: h.X, Z: 0}
	nNorm := norm(n)
	rNorm := norm(r)
	if nNorm == 0 || rNorm == 0 {
		return 0
	}
	cosU := dot(n, r) / (nNorm * rNorm)
	u := math.Acos(math.Max(-1, math.Min(1, cosU))) * 180 / math.Pi
	if r.Z < 0 {
		u = 360 - u
	}
	return math.Mod(u, 360)
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func cross(a, b satellite.Vector3) satellite.Vector3 {
	return satellite.Vector3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func dot(a, b satellite.Vector3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func norm(a satellite.Vector3) float64 {
	return math.Sqrt(dot(a, a))
}

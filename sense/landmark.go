package sense

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/model"
)

// DefaultHalfAngle is the default field of view half-angle of the landmark projector
const DefaultHalfAngle = math.Pi / 4

// Gate selects the bearing test of the landmark projector field of view
type Gate int

const (
	// GateHalfOfHalfAngle accepts observations with |bearing| < HalfAngle/2
	GateHalfOfHalfAngle Gate = iota
	// GateHalfAngle accepts observations with |bearing| < HalfAngle
	GateHalfAngle
)

// String implements fmt.Stringer
func (g Gate) String() string {
	switch g {
	case GateHalfOfHalfAngle:
		return "half-of-half"
	case GateHalfAngle:
		return "half"
	default:
		return fmt.Sprintf("Gate(%d)", int(g))
	}
}

// ParseGate parses gate name s and returns the gate
func ParseGate(s string) (Gate, error) {
	switch s {
	case "", "half-of-half":
		return GateHalfOfHalfAngle, nil
	case "half":
		return GateHalfAngle, nil
	}

	return 0, fmt.Errorf("unknown gate: %q", s)
}

// Landmark is a landmark with known identity
type Landmark struct {
	ID int
	X  float64
	Y  float64
}

// LandmarkMap returns landmark positions keyed by landmark id
func LandmarkMap(ls []Landmark) map[int][2]float64 {
	m := make(map[int][2]float64, len(ls))
	for _, l := range ls {
		m[l.ID] = [2]float64{l.X, l.Y}
	}

	return m
}

// Projector synthesizes range-bearing observations of known landmarks
type Projector struct {
	landmarks []Landmark
	half      float64
	gate      Gate
	noise     filter.Noise
}

// NewProjector creates new landmark projector and returns it.
// It accepts the following parameters:
//   - ls:    landmarks with known identity
//   - half:  field of view half-angle
//   - gate:  field of view gate
//   - n:     range-bearing observation noise; nil means noiseless observations
//
// It returns error if the half-angle is not positive, the gate is unknown,
// landmark ids are duplicated or negative, or the noise is not 2-dimensional.
func NewProjector(ls []Landmark, half float64, gate Gate, n filter.Noise) (*Projector, error) {
	if half <= 0 || math.IsNaN(half) || math.IsInf(half, 0) {
		return nil, fmt.Errorf("invalid half-angle: %g", half)
	}

	if gate != GateHalfOfHalfAngle && gate != GateHalfAngle {
		return nil, fmt.Errorf("invalid gate: %v", gate)
	}

	if n != nil && n.Cov().SymmetricDim() != 2 {
		return nil, fmt.Errorf("invalid output noise dimension: %d", n.Cov().SymmetricDim())
	}

	seen := make(map[int]bool, len(ls))
	for _, l := range ls {
		if l.ID < 0 || seen[l.ID] {
			return nil, fmt.Errorf("invalid landmark id: %d", l.ID)
		}
		seen[l.ID] = true
	}

	landmarks := make([]Landmark, len(ls))
	copy(landmarks, ls)

	return &Projector{
		landmarks: landmarks,
		half:      half,
		gate:      gate,
		noise:     n,
	}, nil
}

// Visible returns true if bearing b passes the projector field of view gate
func (p *Projector) Visible(b float64) bool {
	limit := p.half
	if p.gate == GateHalfOfHalfAngle {
		limit = p.half / 2
	}

	return math.Abs(b) < limit
}

// Project returns noisy observations of the landmarks visible from pose.
// Bearings are wrapped into (-pi, pi] before the field of view gate is applied.
// Observations whose noisy range is negative are dropped.
func (p *Projector) Project(pose []float64) []filter.Observation {
	var obs []filter.Observation

	for _, l := range p.landmarks {
		r, b := model.RangeBearing(pose, l.X, l.Y)
		if p.noise != nil {
			n := p.noise.Sample()
			r += n.AtVec(0)
			b += n.AtVec(1)
		}
		b = model.WrapAngle(b)

		if r < 0 || !p.Visible(b) {
			continue
		}

		obs = append(obs, filter.Observation{Range: r, Bearing: b, ID: l.ID})
	}

	return obs
}

// Landmarks returns projected landmarks
func (p *Projector) Landmarks() []Landmark {
	ls := make([]Landmark, len(p.landmarks))
	copy(ls, p.landmarks)

	return ls
}

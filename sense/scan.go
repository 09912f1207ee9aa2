package sense

import (
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/model"
)

// DefaultArcHalfAngle is the default half width of the forward scan arc: 60 degrees
const DefaultArcHalfAngle = math.Pi / 3

// eps absorbs the rounding of beam angles at the arc boundaries
const eps = 1e-9

// Scan is a single sweep of a range sensor.
// Beam i points at AngleMin + i*AngleIncrement radians counter-clockwise from the robot heading.
type Scan struct {
	// Ranges stores beam ranges; +Inf marks a beam with no return
	Ranges []float64
	// AngleMin is the angle of the first beam
	AngleMin float64
	// AngleIncrement is the angular distance between two adjacent beams
	AngleIncrement float64
	// RangeMin is the minimum valid range
	RangeMin float64
	// RangeMax is the maximum valid range; zero means unbounded
	RangeMax float64
}

// NewScan returns a full 360 beam sweep with one degree resolution starting at the heading.
func NewScan(ranges []float64) Scan {
	return Scan{
		Ranges:         ranges,
		AngleMin:       0,
		AngleIncrement: 2 * math.Pi / float64(len(ranges)),
	}
}

// Arc is a forward field of view of a range sensor
type Arc struct {
	// HalfAngle is the half width of the arc
	HalfAngle float64
}

// Contains returns true if bearing b falls into the arc [-HalfAngle, HalfAngle)
func (a Arc) Contains(b float64) bool {
	b = model.WrapAngle(b)
	return b >= -a.HalfAngle-eps && b < a.HalfAngle-eps
}

// Observations converts the beams of scan s which fall into the arc into
// range-bearing observations without landmark identity.
// Beams with no return, with a non-finite range or with a range outside of
// the valid scan range are discarded.
func (a Arc) Observations(s Scan) []filter.Observation {
	var obs []filter.Observation

	for i, r := range s.Ranges {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < s.RangeMin {
			continue
		}
		if s.RangeMax > 0 && r > s.RangeMax {
			continue
		}

		b := model.WrapAngle(s.AngleMin + float64(i)*s.AngleIncrement)
		if !a.Contains(b) {
			continue
		}

		obs = append(obs, filter.Observation{Range: r, Bearing: b, ID: filter.NoID})
	}

	return obs
}

package sim

import (
	"fmt"
	"math"
	"time"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/model"
	"github.com/milosgajdos/go-pose/sense"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Profile returns robot control at time t
type Profile func(t float64) filter.Control

// Wobble is the control profile of the simulated landmark survey:
//
//	v(t) = 1 + 0.5*cos(0.4*pi*t)
//	w(t) = -0.2 + 2*cos(1.2*pi*t)
func Wobble(t float64) filter.Control {
	return filter.Control{
		V:     1 + 0.5*math.Cos(0.4*math.Pi*t),
		Omega: -0.2 + 2*math.Cos(1.2*math.Pi*t),
	}
}

// Spiral returns a profile which drives the robot with constant speed along a circle of given radius
func Spiral(speed, radius float64) Profile {
	return func(float64) filter.Control {
		return filter.Control{V: speed, Omega: speed / radius}
	}
}

// now is the clock used to seed sources
var now = time.Now

// NewSource returns random source seeded with seed or from clock if seed is 0
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(now().UnixNano())
	}

	return rand.NewSource(seed)
}

// PlaceLandmarks places n landmarks uniformly in [-extent, extent]^2 and returns them.
// Landmarks are identified by their order.
func PlaceLandmarks(n int, extent float64, src rand.Source) []sense.Landmark {
	u := distuv.Uniform{Min: -extent, Max: extent, Src: src}

	ls := make([]sense.Landmark, n)
	for i := range ls {
		ls[i] = sense.Landmark{ID: i, X: u.Rand(), Y: u.Rand()}
	}

	return ls
}

// World is a simulated planar world with a robot and static landmarks
type World struct {
	// pose is ground truth robot pose
	pose []float64
	// motion is robot motion model
	motion model.Unicycle
	// landmarks are world landmarks
	landmarks []sense.Landmark
	// odom is odometry noise
	odom filter.Noise
	// t is simulation time
	t float64
}

// NewWorld creates new World with robot at pose and returns it.
// odom perturbs the odometry position fixes; it can be nil.
// It returns error if pose is not 3-dimensional or the odometry noise dimension is not 3.
func NewWorld(pose []float64, landmarks []sense.Landmark, odom filter.Noise) (*World, error) {
	if len(pose) != 3 {
		return nil, fmt.Errorf("invalid pose dimension: %d", len(pose))
	}

	if odom != nil && odom.Cov().SymmetricDim() != 3 {
		return nil, fmt.Errorf("invalid odometry noise dimension: %d", odom.Cov().SymmetricDim())
	}

	p := make([]float64, 3)
	copy(p, pose)
	p[2] = model.WrapAngle(p[2])

	ls := make([]sense.Landmark, len(landmarks))
	copy(ls, landmarks)

	return &World{
		pose:      p,
		landmarks: ls,
		odom:      odom,
	}, nil
}

// Step moves the robot by applying control u for time dt
func (w *World) Step(u filter.Control, dt float64) {
	w.motion.Move(w.pose, u, dt)
	w.t += dt
}

// Time returns simulation time
func (w *World) Time() float64 {
	return w.t
}

// Pose returns ground truth robot pose
func (w *World) Pose() []float64 {
	p := make([]float64, 3)
	copy(p, w.pose)

	return p
}

// Landmarks returns world landmarks
func (w *World) Landmarks() []sense.Landmark {
	ls := make([]sense.Landmark, len(w.landmarks))
	copy(ls, w.landmarks)

	return ls
}

// Odometry returns a noisy position fix [x, y, heading] of the robot
func (w *World) Odometry() *mat.VecDense {
	fix := mat.NewVecDense(3, w.Pose())
	if w.odom != nil {
		fix.AddVec(fix, w.odom.Sample())
	}
	fix.SetVec(2, model.WrapAngle(fix.AtVec(2)))

	return fix
}

// Scan returns a sweep of a range sensor with given number of beams.
// Landmarks are cylinders of the given radius; beams which hit nothing
// within maxRange return +Inf.
func (w *World) Scan(beams int, radius, maxRange float64) sense.Scan {
	ranges := make([]float64, beams)
	s := sense.NewScan(ranges)
	s.RangeMax = maxRange

	for i := range ranges {
		a := w.pose[2] + s.AngleMin + float64(i)*s.AngleIncrement
		dx, dy := math.Cos(a), math.Sin(a)

		ranges[i] = math.Inf(1)
		for _, l := range w.landmarks {
			r, ok := hit(l.X-w.pose[0], l.Y-w.pose[1], dx, dy, radius)
			if ok && r <= maxRange && r < ranges[i] {
				ranges[i] = r
			}
		}
	}

	return s
}

// hit returns the distance along unit direction (dx, dy) to the circle
// of given radius centered at (px, py) relative to the ray origin
func hit(px, py, dx, dy, radius float64) (float64, bool) {
	tc := px*dx + py*dy
	if tc < 0 {
		return 0, false
	}

	h2 := px*px + py*py - tc*tc
	if h2 > radius*radius {
		return 0, false
	}

	t := tc - math.Sqrt(radius*radius-h2)
	if t < 0 {
		t = 0
	}

	return t, true
}

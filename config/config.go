package config

import (
	"math"
	"os"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/sense"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate when the configuration is invalid
var ErrInvalid = errors.New("invalid configuration")

// Config is estimation run configuration
type Config struct {
	// Kind selects the filter
	Kind filter.Kind `yaml:"kind"`
	// Seed seeds every random source of the run; zero seeds from clock
	Seed uint64 `yaml:"seed"`
	// DT is the time step
	DT float64 `yaml:"dt"`
	// Steps is the number of steps of a simulated run
	Steps int `yaml:"steps"`
	// Init is the initial pose distribution
	Init Init `yaml:"init"`
	// Linear configures the linear Kalman filter
	Linear Linear `yaml:"linear"`
	// SLAM configures EKF SLAM
	SLAM SLAM `yaml:"slam"`
	// Particle configures the particle filter
	Particle Particle `yaml:"particle"`
	// Sense configures measurement synthesis
	Sense Sense `yaml:"sense"`
	// World configures the simulated world
	World World `yaml:"world"`
}

// Init is initial pose and the variances of its components
type Init struct {
	Pose []float64 `yaml:"pose"`
	Var  []float64 `yaml:"var"`
}

// Linear is linear Kalman filter configuration
type Linear struct {
	// Q stores process noise variances
	Q []float64 `yaml:"q"`
	// R stores position fix noise variances
	R []float64 `yaml:"r"`
}

// SLAM is EKF SLAM configuration
type SLAM struct {
	// MaxLandmarks is landmark registry capacity; zero means unbounded
	MaxLandmarks int `yaml:"max_landmarks"`
	// LandmarkVar is the variance of a newly registered landmark
	LandmarkVar float64 `yaml:"landmark_var"`
	// Q stores pose process noise variances
	Q []float64 `yaml:"q"`
	// R stores range and bearing noise variances
	R []float64 `yaml:"r"`
}

// Particle is particle filter configuration
type Particle struct {
	// N is the number of particles
	N int `yaml:"n"`
	// Strategy is resampling strategy: systematic or roulette
	Strategy string `yaml:"strategy"`
	// Threshold triggers resampling when ESS < Threshold*N
	Threshold float64 `yaml:"threshold"`
	// Regularize enables resampling jitter
	Regularize bool `yaml:"regularize"`
	// Alpha scales resampling jitter
	Alpha float64 `yaml:"alpha"`
	// ControlStd stores standard deviations of velocity and turn rate noise
	ControlStd []float64 `yaml:"control_std"`
	// R stores observation noise variances
	R []float64 `yaml:"r"`
	// UseMap weighs range-bearing observations against the known landmark map
	UseMap bool `yaml:"use_map"`
}

// Sense is measurement synthesis configuration
type Sense struct {
	// HalfAngle is landmark projector field of view half-angle
	HalfAngle float64 `yaml:"half_angle"`
	// Gate is landmark projector gate: half-of-half or half
	Gate string `yaml:"gate"`
	// ArcHalfAngle is the half width of the forward scan arc
	ArcHalfAngle float64 `yaml:"arc_half_angle"`
	// R stores synthetic range and bearing noise variances
	R []float64 `yaml:"r"`
}

// World is simulated world configuration
type World struct {
	// Landmarks is the number of landmarks
	Landmarks int `yaml:"landmarks"`
	// Extent bounds landmark coordinates to [-Extent, Extent]
	Extent float64 `yaml:"extent"`
	// OdometryStd is the standard deviation of odometry position fixes
	OdometryStd float64 `yaml:"odometry_std"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Kind:  filter.SLAM,
		DT:    0.1,
		Steps: 401,
		Init: Init{
			Pose: []float64{0, -4, math.Pi / 2},
			Var:  []float64{0, 0, 0},
		},
		Linear: Linear{
			Q: []float64{0.01, 0.01, 0.01},
			R: []float64{0.1, 0.1, 0.1},
		},
		SLAM: SLAM{
			MaxLandmarks: 8,
			LandmarkVar:  1e6,
			Q:            []float64{0.001, 0.001, 0.0001},
			R:            []float64{0.001, 0.001},
		},
		Particle: Particle{
			N:          100,
			Strategy:   "systematic",
			Threshold:  0.5,
			ControlStd: []float64{0.1, 0.05},
			R:          []float64{0.01, 0.01},
		},
		Sense: Sense{
			HalfAngle:    sense.DefaultHalfAngle,
			Gate:         sense.GateHalfOfHalfAngle.String(),
			ArcHalfAngle: sense.DefaultArcHalfAngle,
			R:            []float64{0.001, 0.001},
		},
		World: World{
			Landmarks:   8,
			Extent:      20,
			OdometryStd: 0.05,
		},
	}
}

// Load reads YAML configuration from path over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	return Parse(data)
}

// Parse decodes YAML configuration data over the defaults and validates it
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks the configuration and returns error wrapping ErrInvalid if it is invalid
func (c *Config) Validate() error {
	switch c.Kind {
	case filter.Linear, filter.SLAM, filter.Particle:
	default:
		return errors.Wrapf(ErrInvalid, "unknown filter kind: %q", c.Kind)
	}

	if !positive(c.DT) {
		return errors.Wrapf(ErrInvalid, "dt: %g", c.DT)
	}
	if c.Steps < 0 {
		return errors.Wrapf(ErrInvalid, "steps: %d", c.Steps)
	}

	for _, v := range []struct {
		name string
		val  []float64
		size int
	}{
		{"init.pose", c.Init.Pose, 3},
		{"init.var", c.Init.Var, 3},
		{"linear.q", c.Linear.Q, 3},
		{"linear.r", c.Linear.R, 3},
		{"slam.q", c.SLAM.Q, 3},
		{"slam.r", c.SLAM.R, 2},
		{"particle.control_std", c.Particle.ControlStd, 2},
		{"particle.r", c.Particle.R, 2},
		{"sense.r", c.Sense.R, 2},
	} {
		if len(v.val) != v.size {
			return errors.Wrapf(ErrInvalid, "%s: expected %d values, got %d", v.name, v.size, len(v.val))
		}
		for i, x := range v.val {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return errors.Wrapf(ErrInvalid, "%s[%d]: %g", v.name, i, x)
			}
			if v.name != "init.pose" && x < 0 {
				return errors.Wrapf(ErrInvalid, "%s[%d]: negative variance %g", v.name, i, x)
			}
		}
	}

	for i, x := range c.Particle.R {
		if x == 0 {
			return errors.Wrapf(ErrInvalid, "particle.r[%d]: zero variance", i)
		}
	}

	if c.SLAM.MaxLandmarks < 0 {
		return errors.Wrapf(ErrInvalid, "slam.max_landmarks: %d", c.SLAM.MaxLandmarks)
	}
	if c.SLAM.LandmarkVar < 0 {
		return errors.Wrapf(ErrInvalid, "slam.landmark_var: %g", c.SLAM.LandmarkVar)
	}

	if c.Particle.N <= 0 {
		return errors.Wrapf(ErrInvalid, "particle.n: %d", c.Particle.N)
	}
	switch c.Particle.Strategy {
	case "", "systematic", "roulette":
	default:
		return errors.Wrapf(ErrInvalid, "particle.strategy: %q", c.Particle.Strategy)
	}
	if c.Particle.Threshold < 0 || c.Particle.Threshold > 1 {
		return errors.Wrapf(ErrInvalid, "particle.threshold: %g", c.Particle.Threshold)
	}

	if !positive(c.Sense.HalfAngle) {
		return errors.Wrapf(ErrInvalid, "sense.half_angle: %g", c.Sense.HalfAngle)
	}
	if !positive(c.Sense.ArcHalfAngle) {
		return errors.Wrapf(ErrInvalid, "sense.arc_half_angle: %g", c.Sense.ArcHalfAngle)
	}
	if _, err := sense.ParseGate(c.Sense.Gate); err != nil {
		return errors.Wrapf(ErrInvalid, "sense.gate: %v", err)
	}

	if c.World.Landmarks < 0 {
		return errors.Wrapf(ErrInvalid, "world.landmarks: %d", c.World.Landmarks)
	}
	if !positive(c.World.Extent) {
		return errors.Wrapf(ErrInvalid, "world.extent: %g", c.World.Extent)
	}
	if c.World.OdometryStd < 0 || math.IsNaN(c.World.OdometryStd) {
		return errors.Wrapf(ErrInvalid, "world.odometry_std: %g", c.World.OdometryStd)
	}

	return nil
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}

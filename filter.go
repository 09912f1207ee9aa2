package filter

import "gonum.org/v1/gonum/mat"

// Filter is a recursive Bayesian pose filter.
type Filter interface {
	// Predict advances the filter state by one time step of length dt driven by control u
	Predict(u Control, dt float64) error
	// Update corrects the filter state using the measurement m
	Update(m *Measurement) error
	// Estimate returns the current filter estimate
	Estimate() Estimate
}

// Resampler is a sample based filter which can be resampled
type Resampler interface {
	// Filter is a recursive Bayesian pose filter
	Filter
	// EffectiveSampleSize returns the effective sample size of the filter
	EffectiveSampleSize() float64
	// Resample draws a new sample set and returns the indices it was drawn from
	Resample() ([]int, error)
	// Count returns the number of samples
	Count() int
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// MapEstimate is an estimate which in addition to the pose carries a landmark map
type MapEstimate interface {
	// Estimate is filter estimate
	Estimate
	// Landmarks returns estimated landmark positions keyed by landmark id
	Landmarks() map[int][2]float64
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}

// Kind selects one of the filter algorithms
type Kind string

const (
	// Linear is linear Kalman filter
	Linear Kind = "linear"
	// SLAM is Extended Kalman filter SLAM
	SLAM Kind = "slam"
	// Particle is particle filter
	Particle Kind = "particle"
)

// Control is a unicycle control input
type Control struct {
	// V is linear velocity
	V float64
	// Omega is angular velocity
	Omega float64
}

// NoID marks an observation which carries no landmark identity
const NoID = -1

// Observation is a range-bearing observation in the robot frame
type Observation struct {
	// Range is the distance to the observed object
	Range float64
	// Bearing is the angle to the observed object in (-pi, pi]
	Bearing float64
	// ID is the landmark identity tag
	ID int
}

// Measurement is a batch of sensor readings delivered in one step
type Measurement struct {
	// Position is a direct position fix
	Position mat.Vector
	// Observations are range-bearing observations
	Observations []Observation
}

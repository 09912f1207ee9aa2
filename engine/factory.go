package engine

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/config"
	"github.com/milosgajdos/go-pose/kalman/ekf"
	"github.com/milosgajdos/go-pose/kalman/kf"
	"github.com/milosgajdos/go-pose/model"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/milosgajdos/go-pose/particle/pf"
	"github.com/milosgajdos/go-pose/sense"
)

// seed offsets keep the random sources of one run independent
const (
	seedParticles = iota + 1
	seedProcess
	seedOutput
)

// NewFilter creates the filter selected by c.Kind and returns it.
// landmarks is the known landmark map used by the particle filter when
// c.Particle.UseMap is set; other filters ignore it.
// It returns error if c is invalid or the filter fails to be created.
func NewFilter(c *config.Config, landmarks []sense.Landmark) (filter.Filter, error) {
	if c == nil {
		return nil, fmt.Errorf("invalid config")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	ic, err := model.NewPoseCond(c.Init.Pose, c.Init.Var)
	if err != nil {
		return nil, err
	}

	switch c.Kind {
	case filter.Linear:
		m, err := model.NewIdentity(3)
		if err != nil {
			return nil, err
		}
		q, err := noise.NewDiagonal(stds(c.Linear.Q), seed(c.Seed, seedProcess))
		if err != nil {
			return nil, err
		}
		r, err := noise.NewDiagonal(stds(c.Linear.R), seed(c.Seed, seedOutput))
		if err != nil {
			return nil, err
		}

		f, err := kf.New(m, ic, q, r)
		if err != nil {
			return nil, err
		}

		return f, nil
	case filter.SLAM:
		q, err := noise.NewDiagonal(stds(c.SLAM.Q), seed(c.Seed, seedProcess))
		if err != nil {
			return nil, err
		}
		r, err := noise.NewDiagonal(stds(c.SLAM.R), seed(c.Seed, seedOutput))
		if err != nil {
			return nil, err
		}

		f, err := ekf.New(ic, q, r, ekf.Config{
			MaxLandmarks: c.SLAM.MaxLandmarks,
			LandmarkVar:  c.SLAM.LandmarkVar,
		})
		if err != nil {
			return nil, err
		}

		return f, nil
	case filter.Particle:
		q, err := noise.NewDiagonal(c.Particle.ControlStd, seed(c.Seed, seedProcess))
		if err != nil {
			return nil, err
		}
		r, err := noise.NewDiagonal(stds(c.Particle.R), seed(c.Seed, seedOutput))
		if err != nil {
			return nil, err
		}

		pc := pf.Config{
			Particles:  c.Particle.N,
			Seed:       seed(c.Seed, seedParticles),
			Strategy:   pf.Strategy(c.Particle.Strategy),
			Regularize: c.Particle.Regularize,
			Alpha:      c.Particle.Alpha,
		}
		if c.Particle.UseMap {
			pc.Landmarks = sense.LandmarkMap(landmarks)
		}

		f, err := pf.New(ic, q, r, pc)
		if err != nil {
			return nil, err
		}

		return f, nil
	}

	return nil, fmt.Errorf("unknown filter kind: %q", c.Kind)
}

func stds(vars []float64) []float64 {
	s := make([]float64, len(vars))
	for i, v := range vars {
		s[i] = math.Sqrt(v)
	}

	return s
}

func seed(base, offset uint64) uint64 {
	if base == 0 {
		return 0
	}

	return base + offset
}

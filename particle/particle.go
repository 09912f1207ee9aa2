package particle

import (
	filter "github.com/milosgajdos/go-pose"
	"gonum.org/v1/gonum/mat"
)

// Particle is Particle Filter
type Particle interface {
	// filter.Resampler is a resampling pose filter
	filter.Resampler
	// Particles returns filter particles stored in matrix columns
	Particles() mat.Matrix
	// Weights returns particle weights
	Weights() mat.Vector
}

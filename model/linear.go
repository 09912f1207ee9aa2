package model

import (
	"fmt"

	filter "github.com/milosgajdos/go-pose"
	"gonum.org/v1/gonum/mat"
)

// Discrete is a linear, discrete-time model of a dynamical system:
//
//	x[n+1] = A*x[n] + B*u[n]*dt
//	y[n]   = C*x[n]
//
// where u is the unicycle control vector [v, omega].
type Discrete struct {
	// A is system/state matrix
	A *mat.Dense
	// B is control matrix; it can be nil
	B *mat.Dense
	// C is observation/output matrix
	C *mat.Dense
}

// NewDiscrete creates a linear discrete-time model and returns it.
// It returns error if A is nil or the matrices have inconsistent dimensions.
func NewDiscrete(A, B, C *mat.Dense) (*Discrete, error) {
	if A == nil || C == nil {
		return nil, fmt.Errorf("system and output matrices must be defined for a model")
	}

	rows, cols := A.Dims()
	if rows != cols {
		return nil, fmt.Errorf("invalid propagation matrix dimensions: [%d x %d]", rows, cols)
	}

	if B != nil {
		if r, c := B.Dims(); r != rows || c != 2 {
			return nil, fmt.Errorf("invalid ctl propagation matrix dimensions: [%d x %d]", r, c)
		}
	}

	if _, c := C.Dims(); c != cols {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", c, cols)
	}

	return &Discrete{A: A, B: B, C: C}, nil
}

// NewIdentity creates a model of n dimensional constant state which is observed directly.
func NewIdentity(n int) (*Discrete, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid model dimension: %d", n)
	}

	A := mat.NewDense(n, n, nil)
	C := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		A.Set(i, i, 1.0)
		C.Set(i, i, 1.0)
	}

	return NewDiscrete(A, nil, C)
}

// SystemDims returns internal state length (nx), input vector length (nu)
// and external/observable/output state length (ny).
func (d *Discrete) SystemDims() (nx, nu, ny int) {
	nx, _ = d.A.Dims()
	if d.B != nil {
		_, nu = d.B.Dims()
	}
	ny, _ = d.C.Dims()

	return nx, nu, ny
}

// SystemMatrix returns state propagation matrix A
func (d *Discrete) SystemMatrix() mat.Matrix { return d.A }

// ControlMatrix returns state propagation control matrix B
func (d *Discrete) ControlMatrix() mat.Matrix {
	if d.B == nil {
		return nil
	}
	return d.B
}

// OutputMatrix returns observation matrix C
func (d *Discrete) OutputMatrix() mat.Matrix { return d.C }

// Propagate returns the next internal state given the state x, control u and elapsed time dt.
// wd is added to the propagated state as process noise unless it is nil.
func (d *Discrete) Propagate(x mat.Vector, u filter.Control, dt float64, wd mat.Vector) (*mat.VecDense, error) {
	nx, _, _ := d.SystemDims()
	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	out := mat.NewVecDense(nx, nil)
	out.MulVec(d.A, x)

	if d.B != nil {
		ctl := mat.NewVecDense(2, []float64{u.V * dt, u.Omega * dt})
		outU := mat.NewVecDense(nx, nil)
		outU.MulVec(d.B, ctl)
		out.AddVec(out, outU)
	}

	if wd != nil && wd.Len() == nx {
		out.AddVec(out, wd)
	}

	return out, nil
}

// Observe returns external/observable state given internal state x.
// wn is added to the output as a noise vector unless it is nil.
func (d *Discrete) Observe(x, wn mat.Vector) (*mat.VecDense, error) {
	nx, _, ny := d.SystemDims()
	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	out := mat.NewVecDense(ny, nil)
	out.MulVec(d.C, x)

	if wn != nil && wn.Len() == ny {
		out.AddVec(out, wn)
	}

	return out, nil
}

package engine

import (
	"sync"

	"github.com/google/uuid"
	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/config"
	"github.com/milosgajdos/go-pose/sense"
	gomatrix "github.com/milosgajdos/matrix"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the default fraction of particle count below which
// the effective sample size triggers resampling
const DefaultThreshold = 0.5

// Record is the outcome of one estimation step
type Record struct {
	// Run identifies the estimation run
	Run uuid.UUID
	// Step is the step number starting from 1
	Step int
	// Kind is the filter kind
	Kind filter.Kind
	// Pose is the estimated robot pose [x, y, heading]
	Pose [3]float64
	// Cov is the estimate covariance
	Cov mat.Symmetric
	// Landmarks are estimated landmark positions keyed by landmark id
	Landmarks map[int][2]float64
	// ESS is the effective sample size before resampling; zero for Kalman filters
	ESS float64
	// Resampled is true if the particles were resampled in this step
	Resampled bool
}

// Option configures Engine
type Option func(*Engine)

// WithThreshold sets resampling threshold
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		e.threshold = t
	}
}

// WithLogger sets engine logger
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRun sets run identifier
func WithRun(id uuid.UUID) Option {
	return func(e *Engine) {
		e.run = id
	}
}

// Engine drives a filter through estimation steps.
// All calls into the filter are serialized, so Engine is safe for
// concurrent use by the goroutines delivering motion and observations.
type Engine struct {
	mu        sync.Mutex
	f         filter.Filter
	kind      filter.Kind
	threshold float64
	run       uuid.UUID
	step      int
	logger    *log.Logger
	log       *log.Entry
}

// New creates new Engine driving filter f of given kind and returns it.
func New(f filter.Filter, kind filter.Kind, opts ...Option) (*Engine, error) {
	if f == nil {
		return nil, errors.New("invalid filter")
	}

	e := &Engine{
		f:         f,
		kind:      kind,
		threshold: DefaultThreshold,
		run:       uuid.New(),
		logger:    log.StandardLogger(),
	}

	for _, apply := range opts {
		apply(e)
	}

	if e.threshold < 0 || e.threshold > 1 {
		return nil, errors.Errorf("invalid resampling threshold: %g", e.threshold)
	}

	e.log = e.logger.WithFields(log.Fields{
		"run":  e.run.String(),
		"kind": string(kind),
	})

	return e, nil
}

// FromConfig creates the filter configured by c and an Engine driving it.
func FromConfig(c *config.Config, landmarks []sense.Landmark, opts ...Option) (*Engine, error) {
	f, err := NewFilter(c, landmarks)
	if err != nil {
		return nil, errors.Wrap(err, "create filter")
	}

	opts = append([]Option{WithThreshold(c.Particle.Threshold)}, opts...)

	return New(f, c.Kind, opts...)
}

// Step runs one estimation step: it predicts the filter state with control u applied
// for time dt, corrects it with measurement m, resamples the particles if their
// effective sample size dropped below the threshold and returns the resulting Record.
// A failed prediction skips the update. Filter errors are recoverable: the returned
// Record always holds the last known good estimate.
func (e *Engine) Step(u filter.Control, dt float64, m *filter.Measurement) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.step++
	l := e.log.WithField("step", e.step)

	var errs filter.Errors

	if err := e.f.Predict(u, dt); err != nil {
		l.WithField("error_kind", kindOf(err)).Warnf("predict: %v", err)
		errs = append(errs, errors.Wrap(err, "predict"))
	} else if m != nil {
		if err := e.f.Update(m); err != nil {
			l.WithField("error_kind", kindOf(err)).Warnf("update: %v", err)
			errs = append(errs, errors.Wrap(err, "update"))
		}
	}

	rec := Record{Run: e.run, Step: e.step, Kind: e.kind}

	if rs, ok := e.f.(filter.Resampler); ok {
		rec.ESS = rs.EffectiveSampleSize()
		if rec.ESS < e.threshold*float64(rs.Count()) {
			if _, err := rs.Resample(); err != nil {
				l.WithField("error_kind", kindOf(err)).Warnf("resample: %v", err)
				errs = append(errs, errors.Wrap(err, "resample"))
			} else {
				rec.Resampled = true
				l.WithField("ess", rec.ESS).Debug("resampled particles")
			}
		}
	}

	e.fill(&rec, l)

	return rec, errs.Err()
}

// Predict predicts the filter state with control u applied for time dt
func (e *Engine) Predict(u filter.Control, dt float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.f.Predict(u, dt)
}

// Update corrects the filter state with measurement m
func (e *Engine) Update(m *filter.Measurement) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.f.Update(m)
}

// Resample resamples the filter particles.
// It returns error if the filter can not be resampled.
func (e *Engine) Resample() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.f.(filter.Resampler)
	if !ok {
		return errors.Errorf("%s filter can not be resampled", e.kind)
	}

	_, err := rs.Resample()

	return err
}

// Estimate returns the current estimate as a Record of the last step
func (e *Engine) Estimate() Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := Record{Run: e.run, Step: e.step, Kind: e.kind}
	if rs, ok := e.f.(filter.Resampler); ok {
		rec.ESS = rs.EffectiveSampleSize()
	}
	e.fill(&rec, e.log.WithField("step", e.step))

	return rec
}

// Run returns run identifier
func (e *Engine) Run() uuid.UUID {
	return e.run
}

// Kind returns filter kind
func (e *Engine) Kind() filter.Kind {
	return e.kind
}

func (e *Engine) fill(rec *Record, l *log.Entry) {
	est := e.f.Estimate()

	val := est.Val()
	for i := 0; i < len(rec.Pose) && i < val.Len(); i++ {
		rec.Pose[i] = val.AtVec(i)
	}
	rec.Cov = est.Cov()

	if me, ok := est.(filter.MapEstimate); ok {
		rec.Landmarks = me.Landmarks()
	}

	if l.Logger.IsLevelEnabled(log.TraceLevel) {
		l.Tracef("covariance:\n%v", gomatrix.Format(rec.Cov))
	}
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, filter.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, filter.ErrNumericDegeneracy):
		return "numeric_degeneracy"
	case errors.Is(err, filter.ErrLandmarkOverflow):
		return "landmark_overflow"
	case errors.Is(err, filter.ErrResampleStarvation):
		return "resample_starvation"
	}

	return "unknown"
}

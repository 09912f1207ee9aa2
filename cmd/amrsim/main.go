package main

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/config"
	"github.com/milosgajdos/go-pose/engine"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/milosgajdos/go-pose/report"
	"github.com/milosgajdos/go-pose/sense"
	"github.com/milosgajdos/go-pose/sim"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// CLI is amrsim command line
type CLI struct {
	Config   string  `name:"config" short:"c" type:"existingfile" help:"path to YAML configuration"`
	Kind     string  `name:"kind" short:"k" enum:",linear,slam,particle" default:"" help:"filter kind override"`
	Steps    int     `name:"steps" short:"n" default:"-1" help:"number of steps; negative uses the configured value"`
	Seed     uint64  `name:"seed" default:"0" help:"random seed override; zero uses the configured value"`
	Out      string  `name:"out" short:"o" default:"." help:"output directory"`
	Plot     string  `name:"plot" help:"trajectory plot file name; empty disables plotting"`
	PlotSize float64 `name:"plot-size" default:"15" help:"plot size in centimeters"`
	LogLevel string  `name:"log-level" default:"info" enum:"panic,fatal,error,warn,info,debug,trace" help:"log level"`
}

func main() {
	var cli CLI
	_ = kong.Parse(&cli,
		kong.Name("amrsim"),
		kong.Description("Simulated robot pose estimation"),
		kong.HelpOptions{Compact: true, FlagsLast: true},
		kong.UsageOnError(),
	)

	if err := run(&cli); err != nil {
		log.WithError(err).Error("amrsim failed")
		os.Exit(1)
	}
}

func load(cli *CLI) (*config.Config, error) {
	c := config.Default()
	if cli.Config != "" {
		var err error
		if c, err = config.Load(cli.Config); err != nil {
			return nil, err
		}
	}

	if cli.Kind != "" {
		c.Kind = filter.Kind(cli.Kind)
	}
	if cli.Steps >= 0 {
		c.Steps = cli.Steps
	}
	if cli.Seed != 0 {
		c.Seed = cli.Seed
	}

	return c, c.Validate()
}

func run(cli *CLI) error {
	level, err := log.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	c, err := load(cli)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	src := sim.NewSource(c.Seed)
	landmarks := sim.PlaceLandmarks(c.World.Landmarks, c.World.Extent, src)

	odomStd := []float64{c.World.OdometryStd, c.World.OdometryStd, c.World.OdometryStd / 10}
	odom, err := noise.NewDiagonal(odomStd, c.Seed)
	if err != nil {
		return errors.Wrap(err, "odometry noise")
	}

	world, err := sim.NewWorld(c.Init.Pose, landmarks, odom)
	if err != nil {
		return errors.Wrap(err, "create world")
	}

	gate, err := sense.ParseGate(c.Sense.Gate)
	if err != nil {
		return err
	}
	obsCov := mat.NewSymDense(2, []float64{c.Sense.R[0], 0, 0, c.Sense.R[1]})
	obsNoise, err := noise.NewGaussianWithSeed([]float64{0, 0}, obsCov, c.Seed)
	if err != nil {
		return errors.Wrap(err, "observation noise")
	}
	proj, err := sense.NewProjector(landmarks, c.Sense.HalfAngle, gate, obsNoise)
	if err != nil {
		return errors.Wrap(err, "create projector")
	}
	arc := sense.Arc{HalfAngle: c.Sense.ArcHalfAngle}

	e, err := engine.FromConfig(c, landmarks)
	if err != nil {
		return err
	}

	l := log.WithFields(log.Fields{"run": e.Run().String(), "kind": string(c.Kind)})
	l.WithFields(log.Fields{"steps": c.Steps, "landmarks": len(landmarks), "seed": c.Seed}).Info("starting run")

	if err := os.MkdirAll(cli.Out, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	f, err := os.Create(filepath.Join(cli.Out, "records.csv"))
	if err != nil {
		return errors.Wrap(err, "create report")
	}
	defer f.Close()
	w := report.NewWriter(f)

	var truth, measured, filtered sim.Trace
	var rec engine.Record
	var failed int

	for i := 0; i < c.Steps; i++ {
		u := sim.Wobble(world.Time())
		if c.Kind == filter.Particle {
			u = sim.Spiral(0.5, 10)(world.Time())
		}
		world.Step(u, c.DT)

		fix := world.Odometry()
		m := &filter.Measurement{Position: fix}
		if c.Kind == filter.SLAM {
			m = &filter.Measurement{Observations: proj.Project(world.Pose())}
		}

		if level >= log.DebugLevel {
			hits := arc.Observations(world.Scan(360, 0.5, 30))
			l.WithFields(log.Fields{"step": i + 1, "returns": len(hits)}).Debug("scan")
		}

		if rec, err = e.Step(u, c.DT, m); err != nil {
			failed++
		}

		pose := world.Pose()
		truth.Add(pose[0], pose[1])
		measured.Add(fix.AtVec(0), fix.AtVec(1))
		filtered.Add(rec.Pose[0], rec.Pose[1])

		if err := w.Write(rec); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush report")
	}

	if len(rec.Landmarks) > 0 {
		lf, err := os.Create(filepath.Join(cli.Out, "landmarks.csv"))
		if err != nil {
			return errors.Wrap(err, "create landmark report")
		}
		defer lf.Close()
		if err := report.WriteLandmarks(lf, rec.Landmarks); err != nil {
			return err
		}
	}

	if cli.Plot != "" && truth.Len() > 0 {
		p, err := sim.New2DPlot(truth.Dense(), measured.Dense(), filtered.Dense(), landmarks)
		if err != nil {
			return errors.Wrap(err, "create plot")
		}
		if err := sim.Save(p, cli.PlotSize, filepath.Join(cli.Out, cli.Plot)); err != nil {
			return errors.Wrap(err, "save plot")
		}
	}

	l.WithFields(log.Fields{"steps": c.Steps, "failed": failed, "x": rec.Pose[0], "y": rec.Pose[1]}).Info("run finished")

	return nil
}

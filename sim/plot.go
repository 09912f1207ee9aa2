package sim

import (
	"fmt"
	"image/color"

	"github.com/milosgajdos/go-pose/sense"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Trace records a 2D trajectory
type Trace struct {
	data []float64
}

// Add appends point (x, y) to the trace
func (t *Trace) Add(x, y float64) {
	t.data = append(t.data, x, y)
}

// Len returns the number of points in the trace
func (t *Trace) Len() int {
	return len(t.data) / 2
}

// Dense returns the trace points stored in matrix rows.
// It returns nil if the trace is empty.
func (t *Trace) Dense() *mat.Dense {
	if t.Len() == 0 {
		return nil
	}

	data := make([]float64, len(t.data))
	copy(data, t.data)

	return mat.NewDense(t.Len(), 2, data)
}

// New2DPlot creates new plot of the simulation from the three trajectories:
// truth:   ground truth robot positions
// measure: measured robot positions
// filter:  filtered robot positions
// Points are stored in matrix rows. Landmarks are drawn if any are given.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * either of the supplied data matrices is nil
// * either of the supplied data matrices does not have at least 2 columns
// * gonum plot fails to be created
func New2DPlot(truth, measure, filter *mat.Dense, landmarks []sense.Landmark) (*plot.Plot, error) {
	if truth == nil || measure == nil || filter == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	_, cmd := truth.Dims()
	_, cms := measure.Dims()
	_, cmf := filter.Dims()

	if cmd < 2 || cms < 2 || cmf < 2 {
		return nil, fmt.Errorf("invalid data dimensions")
	}

	p := plot.New()

	p.Title.Text = "Pose estimation"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	// ground truth is a line
	truthLine, err := plotter.NewLine(makePoints(truth))
	if err != nil {
		return nil, err
	}
	truthLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthLine.LineStyle.Width = vg.Points(1)

	p.Add(truthLine)
	p.Legend.Add("truth", truthLine)

	// Make a scatter plotter for measurement data
	measScatter, err := plotter.NewScatter(makePoints(measure))
	if err != nil {
		return nil, err
	}
	measScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	measScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(measScatter)
	p.Legend.Add("measurement", measScatter)

	// Make a scatter plotter for filter data
	filterScatter, err := plotter.NewScatter(makePoints(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter: %v", err)
	}
	filterScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	filterScatter.Shape = draw.CrossGlyph{}
	filterScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(filterScatter)
	p.Legend.Add("filtered", filterScatter)

	if len(landmarks) > 0 {
		pts := make(plotter.XYs, len(landmarks))
		for i, l := range landmarks {
			pts[i].X, pts[i].Y = l.X, l.Y
		}

		lmScatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		lmScatter.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
		lmScatter.Shape = draw.PyramidGlyph{}
		lmScatter.GlyphStyle.Radius = vg.Points(4)

		p.Add(lmScatter)
		p.Legend.Add("landmarks", lmScatter)
	}

	return p, nil
}

// Save saves plot p to path as a square image of given size in centimeters.
// The image format is determined by the path extension.
func Save(p *plot.Plot, size float64, path string) error {
	return p.Save(vg.Length(size)*vg.Centimeter, vg.Length(size)*vg.Centimeter, path)
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}

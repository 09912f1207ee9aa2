package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/milosgajdos/go-pose/engine"
	"github.com/pkg/errors"
)

// Comma separates the fields of a report row
const Comma = ';'

// Header lists the fields of a report row
var Header = []string{"run", "step", "kind", "x", "y", "heading", "var_x", "var_y", "var_heading", "ess", "resampled", "landmarks"}

// Writer writes estimation records as ';' delimited rows
type Writer struct {
	w      *csv.Writer
	header bool
}

// NewWriter creates new report Writer writing into w and returns it.
// The header row is written before the first record.
func NewWriter(w io.Writer) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = Comma

	return &Writer{w: cw}
}

// Write writes a single record
func (w *Writer) Write(rec engine.Record) error {
	if !w.header {
		if err := w.w.Write(Header); err != nil {
			return errors.Wrap(err, "write header")
		}
		w.header = true
	}

	row := []string{
		rec.Run.String(),
		strconv.Itoa(rec.Step),
		string(rec.Kind),
		format(rec.Pose[0]),
		format(rec.Pose[1]),
		format(rec.Pose[2]),
	}

	for i := 0; i < 3; i++ {
		v := 0.0
		if rec.Cov != nil && i < rec.Cov.SymmetricDim() {
			v = rec.Cov.At(i, i)
		}
		row = append(row, format(v))
	}

	row = append(row,
		format(rec.ESS),
		strconv.FormatBool(rec.Resampled),
		strconv.Itoa(len(rec.Landmarks)),
	)

	if err := w.w.Write(row); err != nil {
		return errors.Wrapf(err, "write record %d", rec.Step)
	}

	return nil
}

// Flush flushes buffered rows into the underlying writer
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// WriteLandmarks writes landmark positions as id;x;y rows ordered by landmark id
func WriteLandmarks(w io.Writer, landmarks map[int][2]float64) error {
	ids := make([]int, 0, len(landmarks))
	for id := range landmarks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	cw := csv.NewWriter(w)
	cw.Comma = Comma

	if err := cw.Write([]string{"id", "x", "y"}); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, id := range ids {
		lm := landmarks[id]
		if err := cw.Write([]string{strconv.Itoa(id), format(lm[0]), format(lm[1])}); err != nil {
			return errors.Wrapf(err, "write landmark %d", id)
		}
	}
	cw.Flush()

	return cw.Error()
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

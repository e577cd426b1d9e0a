package solver

import (
	"drt-simulator/internal/ports"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

type matrixRow struct {
	From     int     `csv:"from"`
	To       int     `csv:"to"`
	Duration float64 `csv:"time"`
	Distance float64 `csv:"distance"`
}

// WriteMatrix writes the directed time-distance cells as CSV keyed by location index.
func WriteMatrix(w io.Writer, cells []ports.MatrixCell) error {
	rows := make([]matrixRow, len(cells))
	for i, c := range cells {
		rows[i] = matrixRow{From: c.From, To: c.To, Duration: c.Duration, Distance: c.Distance}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("write matrix csv: %w", err)
	}
	return nil
}

// ReadMatrix is the inverse of WriteMatrix.
func ReadMatrix(r io.Reader) ([]ports.MatrixCell, error) {
	var rows []matrixRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read matrix csv: %w", err)
	}
	cells := make([]ports.MatrixCell, len(rows))
	for i, r := range rows {
		cells[i] = ports.MatrixCell{From: r.From, To: r.To, Duration: r.Duration, Distance: r.Distance}
	}
	return cells, nil
}

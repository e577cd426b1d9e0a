package repositories

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

type stopRow struct {
	StopID int `csv:"stop_id"`
}

// CSV implementation of the StopRepository port: the PT stops inside the DRT zone,
// optionally extended by a file of comma-separated extra stop ids.
type CSVStopRepository struct {
	Path       string
	ExtrasPath string
}

func NewCSVStopRepository(path, extrasPath string) *CSVStopRepository {
	return &CSVStopRepository{Path: path, ExtrasPath: extrasPath}
}

func (r *CSVStopRepository) ListStops(_ context.Context) ([]string, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("load stops: open %q: %w", r.Path, err)
	}
	defer f.Close()

	var rows []stopRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("load stops: parse csv %q: %w", r.Path, err)
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, row := range rows {
		add(strconv.Itoa(row.StopID))
	}

	if r.ExtrasPath == "" {
		return out, nil
	}

	extras, err := os.ReadFile(r.ExtrasPath)
	if err != nil {
		return nil, fmt.Errorf("load stops: read extras %q: %w", r.ExtrasPath, err)
	}
	for _, field := range strings.Split(string(extras), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if _, err := strconv.Atoi(field); err != nil {
			return nil, fmt.Errorf("load stops: extra stop %q is not an integer", field)
		}
		add(field)
	}

	return out, nil
}

package report

import (
	"archive/tar"
	"drt-simulator/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/ulikunitz/xz"
)

// Bundle packs the given files into dir/name as a tar.xz archive. Missing
// files are skipped.
func Bundle(dir, name string, files []string) (string, error) {
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("bundle: %w", err)
	}
	defer out.Close()

	xzw, err := xz.NewWriter(out)
	if err != nil {
		return "", fmt.Errorf("bundle: %w", err)
	}
	tw := tar.NewWriter(xzw)

	for _, f := range files {
		if err := addFile(tw, f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("bundle: %s: %w", f, err)
		}
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("bundle: %w", err)
	}
	if err := xzw.Close(); err != nil {
		return "", fmt.Errorf("bundle: %w", err)
	}
	return path, nil
}

func addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// ReadSummary loads summary.json from a run directory.
func ReadSummary(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	return &s, nil
}

// ReadOccupancy loads one vehicle's occupancy samples.
func ReadOccupancy(dir, vehicle string) ([]domain.OccupancySample, error) {
	f, err := os.Open(filepath.Join(dir, OccupancyFile(vehicle)))
	if err != nil {
		return nil, fmt.Errorf("read occupancy: %w", err)
	}
	defer f.Close()

	var samples []domain.OccupancySample
	if err := gocsv.UnmarshalFile(f, &samples); err != nil {
		return nil, fmt.Errorf("read occupancy: %w", err)
	}
	return samples, nil
}

// Dir reads the outputs stored in a run directory.
type Dir string

func (d Dir) Summary() (*Summary, error) { return ReadSummary(string(d)) }

func (d Dir) Occupancy(vehicle string) ([]domain.OccupancySample, error) {
	return ReadOccupancy(string(d), vehicle)
}

package routing

import (
	"bytes"
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultMatrixBatch   = 500
	defaultMatrixWorkers = 4
)

type matrixRequestRow struct {
	OriginID  int     `csv:"origin_id"`
	OriginLat float64 `csv:"origin_lat"`
	OriginLon float64 `csv:"origin_lon"`
	DestID    int     `csv:"dest_id"`
	DestLat   float64 `csv:"dest_lat"`
	DestLon   float64 `csv:"dest_lon"`
}

type matrixResponseRow struct {
	OriginID int     `csv:"origin_id"`
	DestID   int     `csv:"dest_id"`
	Duration float64 `csv:"duration_s"`
	Distance float64 `csv:"distance_m"`
}

type batchResult struct {
	offset  int
	results []ports.DistanceResult
}

// MatrixClient implements ports.MatrixProvider by uploading CSV batches to a
// matrix precomputation endpoint. Batches are sent in parallel.
type MatrixClient struct {
	client
	endpoint  string
	batchSize int
	workers   int
}

func NewMatrixClient(endpoint string) (*MatrixClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("matrix client: endpoint is empty")
	}
	return &MatrixClient{
		client:    newClient(120 * time.Second),
		endpoint:  endpoint,
		batchSize: defaultMatrixBatch,
		workers:   defaultMatrixWorkers,
	}, nil
}

// Matrix computes durations and distances for pairs, preserving their order.
func (m *MatrixClient) Matrix(ctx context.Context, pairs []ports.ODPair) (_ []ports.DistanceResult, err error) {
	defer obs.Time(ctx, "matrix.Matrix")(&err)

	if len(pairs) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[batchResult]().WithContext(ctx).WithMaxGoroutines(m.workers)
	for off := 0; off < len(pairs); off += m.batchSize {
		end := min(off+m.batchSize, len(pairs))
		batch := pairs[off:end]
		offset := off
		p.Go(func(ctx context.Context) (batchResult, error) {
			res, err := m.fetchBatch(ctx, batch)
			if err != nil {
				return batchResult{}, err
			}
			return batchResult{offset: offset, results: res}, nil
		})
	}

	batches, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("matrix request failed: %w", err)
	}

	out := make([]ports.DistanceResult, len(pairs))
	for _, b := range batches {
		copy(out[b.offset:], b.results)
	}
	return out, nil
}

func (m *MatrixClient) fetchBatch(ctx context.Context, pairs []ports.ODPair) ([]ports.DistanceResult, error) {
	ids := map[domain.Coord]int{}
	idOf := func(c domain.Coord) int {
		if id, ok := ids[c]; ok {
			return id
		}
		ids[c] = len(ids)
		return ids[c]
	}

	rows := make([]matrixRequestRow, len(pairs))
	for i, pr := range pairs {
		rows[i] = matrixRequestRow{
			OriginID: idOf(pr.From), OriginLat: pr.From.Lat, OriginLon: pr.From.Lon,
			DestID: idOf(pr.To), DestLat: pr.To.Lat, DestLon: pr.To.Lon,
		}
	}

	payload, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}

	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		return newRequest(ctx, http.MethodPost, m.endpoint, "text/csv", bytes.NewReader(payload))
	}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var got []matrixResponseRow
	if err := gocsv.Unmarshal(resp.Body, &got); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}
	if len(got) != len(rows) {
		return nil, fmt.Errorf("matrix response has %d rows, want %d", len(got), len(rows))
	}

	out := make([]ports.DistanceResult, len(got))
	for i, r := range got {
		if r.OriginID != rows[i].OriginID || r.DestID != rows[i].DestID {
			return nil, fmt.Errorf("matrix response row %d is %d->%d, want %d->%d",
				i, r.OriginID, r.DestID, rows[i].OriginID, rows[i].DestID)
		}
		if r.Duration < 0 || r.Distance < 0 {
			return nil, fmt.Errorf("matrix response row %d has negative metrics", i)
		}
		out[i] = ports.DistanceResult{DistanceMeters: r.Distance, DurationSeconds: r.Duration}
	}
	return out, nil
}

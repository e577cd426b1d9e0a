package cache

import (
	"drt-simulator/internal/domain"
	"drt-simulator/internal/ports"
)

type odKey struct {
	from domain.Coord
	to   domain.Coord
}

type pendingRow struct {
	key      odKey
	duration float64
	distance float64
}

// pendingInserts buffers rows between Commit calls, keeping insertion order
// so the resulting table is deterministic.
type pendingInserts struct {
	rows  []pendingRow
	index map[odKey]int
}

func (p *pendingInserts) add(from, to domain.Coord, duration, distance float64) {
	if p.index == nil {
		p.index = map[odKey]int{}
	}
	k := odKey{from: from, to: to}
	if _, ok := p.index[k]; ok {
		return
	}
	p.index[k] = len(p.rows)
	p.rows = append(p.rows, pendingRow{key: k, duration: duration, distance: distance})
}

// from returns buffered rows for one origin that are not in seen.
func (p *pendingInserts) from(origin domain.Coord, seen map[domain.Coord]struct{}) []ports.TDMEntry {
	var out []ports.TDMEntry
	for _, r := range p.rows {
		if r.key.from != origin {
			continue
		}
		if _, ok := seen[r.key.to]; ok {
			continue
		}
		out = append(out, ports.TDMEntry{To: r.key.to, Duration: r.duration, Distance: r.distance})
	}
	return out
}

func (p *pendingInserts) reset() {
	p.rows = nil
	p.index = nil
}

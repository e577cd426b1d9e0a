// Package choice picks one trip among a traveler's alternatives with a
// multinomial logit model.
package choice

import (
	"drt-simulator/internal/domain"
	"math"
	"math/rand/v2"

	"github.com/samber/lo"
)

// Utility per second for modes missing from Config.VOT.
const defaultVOT = -0.001

type Config struct {
	// VOT is the utility coefficient per second spent in each leg mode.
	VOT map[domain.Mode]float64
	// DRTPenalty is added once per DRT leg.
	DRTPenalty float64
}

type Chooser struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config, rng *rand.Rand) *Chooser {
	return &Chooser{cfg: cfg, rng: rng}
}

// Allowed applies the hard filter: travelers without a license cannot drive.
func Allowed(a domain.Attributes, trips []*domain.Trip) []*domain.Trip {
	return lo.Filter(trips, func(t *domain.Trip, _ int) bool {
		if t == nil || len(t.Legs) == 0 {
			return false
		}
		if !a.DrivingLicense && (t.MainMode == domain.ModeCar || t.MainMode == domain.ModeParkRide) {
			return false
		}
		return true
	})
}

func (c *Chooser) Utility(t *domain.Trip) float64 {
	var u float64
	for _, l := range t.Legs {
		vot, ok := c.cfg.VOT[l.Mode]
		if !ok {
			vot = defaultVOT
		}
		u += l.Duration * vot
		if l.Mode == domain.ModeDRT {
			u += c.cfg.DRTPenalty
		}
	}
	return u
}

// Probabilities is the logit over utilities, shifted by the maximum so the
// exponentials cannot overflow.
func Probabilities(utils []float64) []float64 {
	if len(utils) == 0 {
		return nil
	}
	top := lo.Max(utils)
	exps := lo.Map(utils, func(u float64, _ int) float64 { return math.Exp(u - top) })
	sum := lo.Sum(exps)
	return lo.Map(exps, func(e float64, _ int) float64 { return e / sum })
}

// Choose filters the alternatives and draws one. ok is false when nothing
// survives the filter.
func (c *Chooser) Choose(a domain.Attributes, alts []*domain.Trip) (chosen *domain.Trip, ok bool) {
	allowed := Allowed(a, alts)
	if len(allowed) == 0 {
		return nil, false
	}
	probs := Probabilities(lo.Map(allowed, func(t *domain.Trip, _ int) float64 { return c.Utility(t) }))

	r := c.rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if r < cum {
			return allowed[i], true
		}
	}
	return allowed[len(allowed)-1], true
}

package telemetry

import (
	"errors"
	"iter"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/devghori1264/feederbalancer/internal/models"
)

// DefaultStep is used when a non-positive step is requested.
const DefaultStep = 60 * time.Second

var ErrInvalidRange = errors.New("from must be before to")

// Seed values used when a node has never reported.
var defaultSeed = models.TelemetryPoint{VUF: 1.0, VA: 230, VB: 229, VC: 231, NeutralCurrent: 3.0}

// phase wave parameters keep the three phases decorrelated
var phaseWaves = [3]struct{ freq, offset float64 }{
	{0.17, 0},
	{0.19, 1},
	{0.23, 2},
}

// Synthesizer produces cosmetic telemetry series for nodes without
// durable history. Safe for concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSynthesizer(rnd *rand.Rand) *Synthesizer {
	return &Synthesizer{rnd: rnd}
}

// Count returns the number of points Series yields for the span.
func Count(from, to time.Time, step time.Duration) int {
	if step <= 0 {
		step = DefaultStep
	}
	return int(to.Sub(from)/step) + 1
}

// Series lazily yields points at from, from+step, ... while the offset
// stays within the span. Seed values come from last, or defaults when nil.
func (s *Synthesizer) Series(last *models.TelemetryPoint, from, to time.Time, step time.Duration) (iter.Seq[models.TelemetryPoint], error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}
	if step <= 0 {
		step = DefaultStep
	}
	seed := defaultSeed
	if last != nil {
		seed = *last
	}
	steps := int(to.Sub(from) / step)
	phases := [3]float64{float64(seed.VA), float64(seed.VB), float64(seed.VC)}

	return func(yield func(models.TelemetryPoint) bool) {
		for i := 0; i <= steps; i++ {
			frac := float64(i) / float64(max(1, steps))
			fi := float64(i)

			s.mu.Lock()
			vufNoise := s.uniform(-0.1, 0.1)
			var volts [3]int
			for p, w := range phaseWaves {
				volts[p] = int(math.RoundToEven(phases[p] + math.Sin(fi*w.freq+w.offset)*2 + s.uniform(-1, 1)))
			}
			ncNoise := s.uniform(-1.5, 1.5)
			s.mu.Unlock()

			vuf := seed.VUF*(1-0.2*frac) + math.Sin(fi*0.3)*0.2 + vufNoise
			pt := models.TelemetryPoint{
				Timestamp:      from.Add(time.Duration(i) * step).UTC(),
				VUF:            math.Max(0, round(vuf, 2)),
				VA:             volts[0],
				VB:             volts[1],
				VC:             volts[2],
				NeutralCurrent: round(math.Max(0, seed.NeutralCurrent+ncNoise+frac*0.3), 1),
			}
			if !yield(pt) {
				return
			}
		}
	}, nil
}

// Generate collects Series into a slice.
func (s *Synthesizer) Generate(last *models.TelemetryPoint, from, to time.Time, step time.Duration) ([]models.TelemetryPoint, error) {
	seq, err := s.Series(last, from, to, step)
	if err != nil {
		return nil, err
	}
	out := make([]models.TelemetryPoint, 0, Count(from, to, step))
	for pt := range seq {
		out = append(out, pt)
	}
	return out, nil
}

func (s *Synthesizer) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rnd.Float64()
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

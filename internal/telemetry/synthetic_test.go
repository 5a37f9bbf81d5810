package telemetry

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devghori1264/feederbalancer/internal/models"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newSynth(seed uint64) *Synthesizer {
	return NewSynthesizer(rand.New(rand.NewPCG(seed, seed+1)))
}

func TestSeriesRejectsEmptyRange(t *testing.T) {
	s := newSynth(1)
	_, err := s.Generate(nil, t0, t0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = s.Generate(nil, t0.Add(time.Second), t0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSeriesDefaultStep(t *testing.T) {
	pts, err := newSynth(1).Generate(nil, t0, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, pts, 61)
	assert.Equal(t, t0, pts[0].Timestamp)
	assert.Equal(t, t0.Add(time.Hour), pts[60].Timestamp)
}

func TestSeriesStopsBeforeUnevenEnd(t *testing.T) {
	pts, err := newSynth(2).Generate(nil, t0, t0.Add(150*time.Second), time.Minute)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, t0.Add(2*time.Minute), pts[2].Timestamp)

	pts, err = newSynth(2).Generate(nil, t0, t0.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestSeriesStaysNearSeed(t *testing.T) {
	seed := &models.TelemetryPoint{VUF: 2.0, VA: 240, VB: 225, VC: 231, NeutralCurrent: 10}
	pts, err := newSynth(3).Generate(seed, t0, t0.Add(2*time.Hour), time.Minute)
	require.NoError(t, err)
	for _, p := range pts {
		assert.InDelta(t, 240, p.VA, 3)
		assert.InDelta(t, 225, p.VB, 3)
		assert.InDelta(t, 231, p.VC, 3)
		assert.InDelta(t, 10, p.NeutralCurrent, 1.9)
		assert.InDelta(t, 1.8, p.VUF, 0.55)
	}
	// vuf drifts down by 20% over the window
	assert.InDelta(t, 1.6, pts[len(pts)-1].VUF, 0.35)
}

func TestSeriesDefaultSeed(t *testing.T) {
	pts, err := newSynth(4).Generate(nil, t0, t0.Add(10*time.Minute), time.Minute)
	require.NoError(t, err)
	for _, p := range pts {
		assert.InDelta(t, 230, p.VA, 3)
		assert.InDelta(t, 229, p.VB, 3)
		assert.InDelta(t, 231, p.VC, 3)
	}
}

func TestSeriesIsLazy(t *testing.T) {
	seq, err := newSynth(5).Series(nil, t0, t0.Add(24*time.Hour), time.Second)
	require.NoError(t, err)
	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestSeriesSameSeedSameOutput(t *testing.T) {
	a, err := newSynth(42).Generate(nil, t0, t0.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	b, err := newSynth(42).Generate(nil, t0, t0.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSeriesProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("point count, spacing and non-negative readings", prop.ForAll(
		func(spanSec, stepSec int, seedVUF, seedNC float64) bool {
			from := t0
			to := t0.Add(time.Duration(spanSec) * time.Second)
			step := time.Duration(stepSec) * time.Second
			last := &models.TelemetryPoint{VUF: seedVUF, VA: 230, VB: 230, VC: 230, NeutralCurrent: seedNC}

			pts, err := newSynth(uint64(spanSec)).Generate(last, from, to, step)
			if err != nil || len(pts) != spanSec/stepSec+1 || len(pts) != Count(from, to, step) {
				return false
			}
			for i, p := range pts {
				if p.VUF < 0 || p.NeutralCurrent < 0 {
					return false
				}
				if i > 0 && p.Timestamp.Sub(pts[i-1].Timestamp) != step {
					return false
				}
				if p.Timestamp.After(to) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 6*3600),
		gen.IntRange(1, 900),
		gen.Float64Range(0, 0.3),
		gen.Float64Range(0, 1.5),
	))

	properties.TestingRun(t)
}

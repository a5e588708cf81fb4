// Package generator turns scenario targets into the vitals reported each tick.
//
// A reading is produced in four steps: the scenario resolves the target for the
// elapsed time, the previous output is blended toward it, multiplicative
// uniform noise is applied and the result is rounded to the vital's precision.
package generator

import (
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/vitalsim/internal/scenario"
)

const (
	DefaultNoiseLevel      = 0.03
	DefaultSmoothingWindow = 10 * time.Second
)

type Config struct {
	SendInterval    time.Duration
	SmoothingWindow time.Duration
	NoiseLevel      float64
	// Seed fixes the noise sequence; zero seeds from the clock.
	Seed int64
}

// State is the per-run memory of the generator. It is owned by a single
// goroutine.
type State struct {
	Current map[scenario.Vital]float64
	Target  map[scenario.Vital]float64
}

func NewState() *State {
	return &State{
		Current: make(map[scenario.Vital]float64),
		Target:  make(map[scenario.Vital]float64),
	}
}

// Reading holds the rounded output values of one tick.
type Reading map[scenario.Vital]float64

type Generator struct {
	scenario *scenario.Scenario
	noise    float64
	factor   float64
	rng      *rand.Rand
}

func New(sc *scenario.Scenario, cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Generator{
		scenario: sc,
		noise:    cfg.NoiseLevel,
		factor:   SmoothingFactor(cfg.SendInterval, cfg.SmoothingWindow),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Next computes the reading for elapsed seconds and advances state.
func (g *Generator) Next(state *State, elapsed float64) (Reading, error) {
	reading := make(Reading, len(g.scenario.Vitals))

	for _, vital := range g.scenario.Tracked() {
		target, err := g.scenario.ResolveTarget(vital, elapsed)
		if err != nil {
			return nil, err
		}
		state.Target[vital] = target

		current, seeded := state.Current[vital]
		if !seeded {
			current = target
		} else {
			current = Smooth(current, target, g.factor)
		}
		state.Current[vital] = current

		reading[vital] = Round(vital, ApplyNoise(current, g.noise, g.rng))
	}

	return reading, nil
}

// SmoothingFactor returns interval/window clamped to [0,1]. A window shorter
// than the interval, or no window at all, jumps straight to the target.
func SmoothingFactor(interval, window time.Duration) float64 {
	if window <= 0 || interval >= window {
		return 1
	}
	if interval <= 0 {
		return 0
	}

	return float64(interval) / float64(window)
}

// Smooth moves current toward target by factor.
func Smooth(current, target, factor float64) float64 {
	return current + (target-current)*factor
}

// ApplyNoise scales value by a factor drawn uniformly from [1-level, 1+level).
func ApplyNoise(value, level float64, rng *rand.Rand) float64 {
	if level <= 0 {
		return value
	}

	return value * (1 + (rng.Float64()*2-1)*level)
}

// Round applies the vital's output precision.
func Round(vital scenario.Vital, value float64) float64 {
	scale := math.Pow10(vital.Precision())
	return math.Round(value*scale) / scale
}

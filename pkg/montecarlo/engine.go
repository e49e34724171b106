// Package montecarlo is the stochastic simulator behind portfolio,
// retirement and goal projections. Every simulation path derives its own RNG
// from the engine seed and the path index, so results are bitwise
// reproducible for a fixed (inputs, num_simulations, seed) triple no matter
// how the work is scheduled across goroutines.
package montecarlo

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

var sqrt12 = math.Sqrt(12)

// Engine runs seeded simulations.
type Engine struct {
	numSimulations int
	seed           int64
}

// New builds an engine. numSimulations defaults to 10000 when non-positive.
func New(numSimulations int, seed int64) *Engine {
	if numSimulations <= 0 {
		numSimulations = 10000
	}
	return &Engine{numSimulations: numSimulations, seed: seed}
}

// pathRNG derives a deterministic RNG for one simulation path. The golden
// ratio multiplier decorrelates neighbouring path seeds.
func (e *Engine) pathRNG(stream, path int64) *rand.Rand {
	mix := uint64(e.seed) ^ uint64(stream)*0x9E3779B97F4A7C15 ^ uint64(path+1)*0x2545F4914F6CDD1D
	return rand.New(rand.NewSource(int64(mix)))
}

// PortfolioParams configure a portfolio growth simulation. Rates are annual
// decimal fractions.
type PortfolioParams struct {
	InitialValue           float64
	Years                  int
	ExpectedReturn         float64
	Volatility             float64
	AnnualContribution     float64
	ContributionGrowthRate float64
}

// PortfolioResult aggregates a portfolio simulation.
type PortfolioResult struct {
	Statistics    Statistics         `json:"statistics"`
	Percentiles   map[string]float64 `json:"percentiles"`
	Probabilities map[string]float64 `json:"probabilities"`
	Paths         Paths              `json:"paths"`
	Params        PortfolioParams    `json:"simulation_params"`
	NumSims       int                `json:"num_simulations"`
}

// Statistics summarize the distribution of final values.
type Statistics struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Paths hold full value-over-time vectors for the best, median and worst
// outcomes.
type Paths struct {
	Best   []float64 `json:"best"`
	Median []float64 `json:"median"`
	Worst  []float64 `json:"worst"`
}

// SimulatePortfolio runs the monthly portfolio growth simulation.
func (e *Engine) SimulatePortfolio(p PortfolioParams) (*PortfolioResult, error) {
	if p.Years <= 0 {
		return nil, fmt.Errorf("years must be positive, got %d", p.Years)
	}
	if p.ContributionGrowthRate == 0 {
		p.ContributionGrowthRate = 0.03
	}

	months := p.Years * 12
	monthlyReturn := p.ExpectedReturn / 12
	monthlyVol := p.Volatility / sqrt12

	finals := make([]float64, e.numSimulations)
	paths := make([][]float64, e.numSimulations)

	e.parallelFor(func(sim int) {
		rng := e.pathRNG(1, int64(sim))
		value := p.InitialValue
		contribution := p.AnnualContribution / 12

		path := make([]float64, months+1)
		path[0] = p.InitialValue

		for month := 0; month < months; month++ {
			r := rng.NormFloat64()*monthlyVol + monthlyReturn
			value = value*(1+r) + contribution
			path[month+1] = value

			// Contributions grow annually
			if month > 0 && (month+1)%12 == 0 {
				contribution *= 1 + p.ContributionGrowthRate
			}
		}

		finals[sim] = value
		paths[sim] = path
	})

	sorted := append([]float64(nil), finals...)
	sort.Float64s(sorted)

	bestIdx, worstIdx := argMax(finals), argMin(finals)
	medianIdx := indexOfRank(finals, e.numSimulations/2)

	millionProb := pctAtLeast(finals, 1_000_000)
	if p.InitialValue >= 1_000_000 {
		millionProb = 100
	}

	return &PortfolioResult{
		Statistics: Statistics{
			Mean:   mean(finals),
			Median: percentileSorted(sorted, 50),
			StdDev: stdDev(finals),
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
		},
		Percentiles: map[string]float64{
			"p5":  percentileSorted(sorted, 5),
			"p25": percentileSorted(sorted, 25),
			"p50": percentileSorted(sorted, 50),
			"p75": percentileSorted(sorted, 75),
			"p95": percentileSorted(sorted, 95),
		},
		Probabilities: map[string]float64{
			"double":          pctAtLeast(finals, p.InitialValue*2),
			"triple":          pctAtLeast(finals, p.InitialValue*3),
			"million":         millionProb,
			"positive_return": pctGreater(finals, p.InitialValue),
		},
		Paths: Paths{
			Best:   paths[bestIdx],
			Median: paths[medianIdx],
			Worst:  paths[worstIdx],
		},
		Params:  p,
		NumSims: e.numSimulations,
	}, nil
}

// parallelFor runs body(sim) for every simulation index across workers.
// Determinism comes from per-path RNGs, not the scheduling.
func (e *Engine) parallelFor(body func(sim int)) {
	workers := runtime.NumCPU()
	if workers > e.numSimulations {
		workers = 1
	}

	var g errgroup.Group
	chunk := (e.numSimulations + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > e.numSimulations {
			end = e.numSimulations
		}
		if start >= end {
			break
		}
		g.Go(func() error {
			for sim := start; sim < end; sim++ {
				body(sim)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// percentileSorted computes the pth percentile with linear interpolation
// over an ascending slice.
func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func pctAtLeast(xs []float64, threshold float64) float64 {
	count := 0
	for _, x := range xs {
		if x >= threshold {
			count++
		}
	}
	return float64(count) / float64(len(xs)) * 100
}

func pctGreater(xs []float64, threshold float64) float64 {
	count := 0
	for _, x := range xs {
		if x > threshold {
			count++
		}
	}
	return float64(count) / float64(len(xs)) * 100
}

func argMax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

func argMin(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x < xs[best] {
			best = i
		}
	}
	return best
}

// indexOfRank returns the index in xs holding the value of the given
// ascending rank.
func indexOfRank(xs []float64, rank int) int {
	type pair struct {
		v float64
		i int
	}
	pairs := make([]pair, len(xs))
	for i, v := range xs {
		pairs[i] = pair{v, i}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].v == pairs[b].v {
			return pairs[a].i < pairs[b].i
		}
		return pairs[a].v < pairs[b].v
	})
	if rank < 0 {
		rank = 0
	}
	if rank >= len(pairs) {
		rank = len(pairs) - 1
	}
	return pairs[rank].i
}

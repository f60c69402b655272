// Package genetic implements population-based search with tournament
// selection, blend crossover and Gaussian mutation.
package genetic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// Operator defaults. They are plain struct fields on Config, scoped to
// one strategy instance.
const (
	DefaultMutationRate  = 0.1
	DefaultCrossoverProb = 0.7

	tournamentSize = 3
	blendAlpha     = 0.5
	// mutationSigma scales the Gaussian mutation step to the bounds width.
	mutationSigma = 0.2
	// geneMutationProb is the per-gene mutation probability once an
	// individual is selected for mutation.
	geneMutationProb = 0.2
	hallOfFameSize   = 1
)

// Config carries the evolutionary operator settings for one instance.
type Config struct {
	PopulationSize int
	NGenerations   int
	MutationRate   float64
	CrossoverProb  float64
}

// Strategy is the genetic algorithm implementation.
type Strategy struct{}

// New returns a genetic algorithm strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name implements optimization.Strategy.
func (s *Strategy) Name() string {
	return "genetic"
}

// individual pairs a genome with its cached fitness. modified marks
// genomes changed by crossover or mutation since their last evaluation.
type individual struct {
	genome   []float64
	fitness  float64
	modified bool
}

// Search evolves a population for up to the configured generations,
// evaluating only modified individuals, until the budget or the monitor
// ends the run. The hall of fame preserves the best genome across
// generations.
func (s *Strategy) Search(ctx context.Context, cfg optimization.SearchConfig, mon *monitor.Monitor) (*optimization.Result, error) {
	if err := cfg.Space.Validate(); err != nil {
		return nil, optimization.WrapError(err, s.Name(), "Search", "invalid parameter space")
	}

	names := cfg.Space.Names()
	dims := len(names)
	bounds := make([]params.Bounds, dims)
	integer := make([]bool, dims)
	for i, name := range names {
		bounds[i] = cfg.Space[name]
		integer[i] = params.IsIntegerParam(name, bounds[i])
	}

	gaCfg := resolveConfig(cfg.Hyper, cfg.Budget, dims)

	seed := cfg.Hyper.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	pipe := optimization.NewPipeline(s.Name(), &cfg, mon)

	population := make([]*individual, gaCfg.PopulationSize)
	for i := range population {
		genome := make([]float64, dims)
		for j, b := range bounds {
			genome[j] = b.Min + rng.Float64()*b.Width()
		}
		clamp(genome, bounds, integer)
		population[i] = &individual{genome: genome, modified: true}
	}

	var hallOfFame *individual

	for gen := 0; gen <= gaCfg.NGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, s.Name(), "Search", "cancelled")
		}

		diversity := populationDiversity(population, bounds)
		stopped := false
		for _, ind := range population {
			if !ind.modified {
				continue
			}
			ind.fitness = pipe.Evaluate(ctx, toAssignment(names, ind.genome), monitor.Aux{
				Diversity: diversity,
			})
			ind.modified = false
			if pipe.ShouldStop() {
				stopped = true
				break
			}
		}

		for _, ind := range population {
			if !ind.modified && (hallOfFame == nil || ind.fitness > hallOfFame.fitness) {
				hallOfFame = &individual{genome: append([]float64(nil), ind.genome...), fitness: ind.fitness}
			}
		}

		if stopped || gen == gaCfg.NGenerations {
			break
		}
		cfg.ReportProgress(float64(gen)/float64(gaCfg.NGenerations),
			fmt.Sprintf("generation %d of %d", gen+1, gaCfg.NGenerations))

		population = s.nextGeneration(rng, population, hallOfFame, gaCfg, bounds, integer)
	}

	cfg.ReportProgress(1, "genetic search complete")
	return pipe.Result(), nil
}

// nextGeneration breeds the successor population. The hall-of-fame
// genome re-enters unmodified so its fitness is not re-spent.
func (s *Strategy) nextGeneration(rng *rand.Rand, population []*individual, hallOfFame *individual, cfg Config, bounds []params.Bounds, integer []bool) []*individual {
	next := make([]*individual, 0, len(population))

	if hallOfFame != nil && hallOfFameSize > 0 {
		next = append(next, &individual{
			genome:  append([]float64(nil), hallOfFame.genome...),
			fitness: hallOfFame.fitness,
		})
	}

	for len(next) < len(population) {
		parent1 := tournament(rng, population)
		parent2 := tournament(rng, population)

		child := &individual{genome: append([]float64(nil), parent1.genome...), fitness: parent1.fitness}
		if rng.Float64() < cfg.CrossoverProb {
			child.genome = blend(rng, parent1.genome, parent2.genome)
			child.modified = true
		}
		if rng.Float64() < cfg.MutationRate {
			mutate(rng, child.genome, bounds)
			child.modified = true
		}
		if child.modified {
			clamp(child.genome, bounds, integer)
		}
		next = append(next, child)
	}

	return next
}

// tournament returns the fittest of k randomly drawn individuals.
// Unevaluated individuals never exist here: breeding happens after the
// evaluation sweep.
func tournament(rng *rand.Rand, population []*individual) *individual {
	best := population[rng.Intn(len(population))]
	for i := 1; i < tournamentSize; i++ {
		challenger := population[rng.Intn(len(population))]
		if challenger.fitness > best.fitness {
			best = challenger
		}
	}
	return best
}

// blend mixes two genomes gene-wise within an alpha-extended interval.
func blend(rng *rand.Rand, a, b []float64) []float64 {
	child := make([]float64, len(a))
	for i := range a {
		lo, hi := a[i], b[i]
		if lo > hi {
			lo, hi = hi, lo
		}
		span := hi - lo
		lower := lo - blendAlpha*span
		upper := hi + blendAlpha*span
		child[i] = lower + rng.Float64()*(upper-lower)
	}
	return child
}

// mutate applies Gaussian noise to a random subset of genes, scaled to
// each gene's bounds width.
func mutate(rng *rand.Rand, genome []float64, bounds []params.Bounds) {
	for i := range genome {
		if rng.Float64() < geneMutationProb {
			genome[i] += rng.NormFloat64() * mutationSigma * bounds[i].Width()
		}
	}
}

func clamp(genome []float64, bounds []params.Bounds, integer []bool) {
	for i, b := range bounds {
		genome[i] = b.Clamp(genome[i])
		if integer[i] {
			genome[i] = b.Clamp(math.Round(genome[i]))
		}
	}
}

// populationDiversity is the mean per-dimension standard deviation,
// normalized by bounds width. It decays as the population converges.
func populationDiversity(population []*individual, bounds []params.Bounds) float64 {
	if len(population) < 2 {
		return 0
	}
	total := 0.0
	for d, b := range bounds {
		mean := 0.0
		for _, ind := range population {
			mean += ind.genome[d]
		}
		mean /= float64(len(population))

		variance := 0.0
		for _, ind := range population {
			diff := ind.genome[d] - mean
			variance += diff * diff
		}
		variance /= float64(len(population))

		width := b.Width()
		if width > 0 {
			total += math.Sqrt(variance) / width
		}
	}
	return total / float64(len(bounds))
}

// resolveConfig fills unset hyperparameters from the budget and
// dimensionality.
func resolveConfig(hp optimization.Hyperparameters, budget, dims int) Config {
	cfg := Config{
		PopulationSize: hp.PopulationSize,
		NGenerations:   hp.NGenerations,
		MutationRate:   hp.MutationRate,
		CrossoverProb:  hp.CrossoverProb,
	}
	if cfg.PopulationSize <= 0 {
		size := 5 * dims
		if size < 20 {
			size = 20
		}
		if size > 50 {
			size = 50
		}
		cfg.PopulationSize = size
	}
	if cfg.NGenerations <= 0 {
		if budget > 0 {
			cfg.NGenerations = budget / cfg.PopulationSize
			if cfg.NGenerations < 1 {
				cfg.NGenerations = 1
			}
		} else {
			cfg.NGenerations = 20
		}
	}
	if cfg.MutationRate <= 0 {
		cfg.MutationRate = DefaultMutationRate
		if dims > 7 {
			cfg.MutationRate = 0.15
		}
	}
	if cfg.CrossoverProb <= 0 {
		cfg.CrossoverProb = DefaultCrossoverProb
	}
	return cfg
}

func toAssignment(names []string, genome []float64) params.Assignment {
	flat := make(map[string]float64, len(names))
	for i, name := range names {
		flat[name] = genome[i]
	}
	return params.FromFlat(flat)
}

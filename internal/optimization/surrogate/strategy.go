package surrogate

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/fincast/fincast/internal/monitor"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// Strategy is the surrogate-guided search implementation.
type Strategy struct {
	kernel Kernel
	logger *zap.Logger
}

// Option configures the strategy.
type Option func(*Strategy)

// WithKernel replaces the default Matérn 5/2 kernel.
func WithKernel(k Kernel) Option {
	return func(s *Strategy) { s.kernel = k }
}

// WithLogger attaches a logger for surrogate internals.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Strategy) { s.logger = logger }
}

// New returns a surrogate-guided strategy.
func New(opts ...Option) *Strategy {
	s := &Strategy{
		kernel: NewMatern52(1.0, 1.0),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements optimization.Strategy.
func (s *Strategy) Name() string {
	return "surrogate"
}

// Search seeds the model with Latin hypercube samples, then repeatedly
// fits the Gaussian process to all non-failed evaluations and proposes
// the expected-improvement maximizer as the next candidate. With a
// non-zero seed the run is fully deterministic.
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

	// NIterations bounds total evaluations, seeding included, within the
	// overall budget.
	if n := cfg.Hyper.NIterations; n > 0 && n < cfg.Budget {
		cfg.Budget = n
	}

	seed := cfg.Hyper.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	nInit := cfg.Hyper.NInitialPoints
	if nInit <= 0 {
		nInit = defaultInitialPoints(cfg.Budget, dims)
	}
	if nInit > cfg.Budget {
		nInit = cfg.Budget
	}
	xi := cfg.Hyper.Xi
	if xi <= 0 {
		xi = defaultXi(dims)
	}

	pipe := optimization.NewPipeline(s.Name(), &cfg, mon)
	run := &searchRun{
		strategy: s,
		cfg:      &cfg,
		pipe:     pipe,
		rng:      rng,
		names:    names,
		bounds:   bounds,
		integer:  integer,
		gp:       NewGP(s.kernel, 0, s.logger),
		ei:       NewExpectedImprovement(math.Inf(-1), xi),
	}

	cfg.ReportProgress(0, "seeding surrogate model")
	for _, point := range latinHypercube(rng, bounds, nInit) {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, s.Name(), "Search", "cancelled")
		}
		run.evaluate(ctx, point, 1.0)
		if pipe.ShouldStop() {
			return pipe.Result(), nil
		}
	}

	for !pipe.ShouldStop() {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, s.Name(), "Search", "cancelled")
		}

		next, modelled := run.propose()
		progress := float64(pipe.Iterations()) / float64(cfg.Budget)
		exploration := 1 - progress
		if modelled {
			cfg.ReportProgress(progress, "model-guided search")
		}
		run.evaluate(ctx, next, exploration)
	}

	cfg.ReportProgress(1, "surrogate search complete")
	return pipe.Result(), nil
}

// searchRun holds the per-run state shared between seeding, proposal
// and evaluation.
type searchRun struct {
	strategy *Strategy
	cfg      *optimization.SearchConfig
	pipe     *optimization.Pipeline
	rng      *rand.Rand

	names   []string
	bounds  []params.Bounds
	integer []bool

	// gp lives for the whole run so its matrix pool survives refits.
	gp *GP
	ei *ExpectedImprovement

	// Non-failed observations, in vector form.
	observedX [][]float64
	observedY []float64
}

// evaluate pushes one vector candidate through the shared pipeline and
// keeps the observation for the model when it did not fail.
func (r *searchRun) evaluate(ctx context.Context, point []float64, exploration float64) {
	r.clamp(point)
	adjusted := r.pipe.Evaluate(ctx, r.toAssignment(point), monitor.Aux{
		ExplorationRate: exploration,
		HasExploration:  true,
	})
	if adjusted > optimization.FailedScore {
		r.observedX = append(r.observedX, append([]float64(nil), point...))
		r.observedY = append(r.observedY, adjusted)
	}
}

// propose returns the next candidate. It falls back to uniform random
// sampling when too few observations exist or the model cannot be
// fitted; the second return reports whether the model produced the
// point.
func (r *searchRun) propose() ([]float64, bool) {
	if len(r.observedX) < 2 {
		return r.randomPoint(), false
	}

	y, _, _ := standardize(r.observedY)
	if err := r.gp.Fit(r.observedX, y); err != nil {
		r.strategy.logger.Warn("surrogate fit failed, sampling uniformly", zap.Error(err))
		return r.randomPoint(), false
	}

	best := math.Inf(-1)
	for _, v := range y {
		if v > best {
			best = v
		}
	}
	r.ei.UpdateBest(best)

	return r.maximizeAcquisition(r.gp), true
}

// maximizeAcquisition runs derivative-free multistart maximization of
// expected improvement over the bounded space.
func (r *searchRun) maximizeAcquisition(gp *GP) []float64 {
	dims := len(r.bounds)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			clamped := append([]float64(nil), x...)
			r.clampContinuous(clamped)
			mu, sigma, err := gp.Predict(clamped)
			if err != nil {
				return math.Inf(1)
			}
			return -r.ei.Compute(mu, sigma)
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 100,
		},
	}

	nStarts := 5 + int(5*math.Sqrt(float64(dims)))
	starts := make([][]float64, 0, nStarts)
	if bestIdx := argmax(r.observedY); bestIdx >= 0 {
		starts = append(starts, append([]float64(nil), r.observedX[bestIdx]...))
	}
	for len(starts) < nStarts {
		starts = append(starts, r.randomPoint())
	}

	bestX := r.randomPoint()
	bestVal := math.Inf(1)
	for _, start := range starts {
		method := &optimize.NelderMead{SimplexSize: 0.2}
		result, err := optimize.Minimize(problem, start, settings, method)
		if err == nil && result.F < bestVal {
			bestVal = result.F
			bestX = append(bestX[:0], result.X...)
		}
	}
	r.clamp(bestX)
	return bestX
}

func (r *searchRun) randomPoint() []float64 {
	point := make([]float64, len(r.bounds))
	for i, b := range r.bounds {
		point[i] = b.Min + r.rng.Float64()*b.Width()
	}
	r.clamp(point)
	return point
}

// clamp projects onto bounds and rounds integer dimensions.
func (r *searchRun) clamp(point []float64) {
	for i, b := range r.bounds {
		point[i] = b.Clamp(point[i])
		if r.integer[i] {
			point[i] = b.Clamp(math.Round(point[i]))
		}
	}
}

// clampContinuous projects onto bounds without integer rounding; the
// acquisition surface stays smooth for the simplex search.
func (r *searchRun) clampContinuous(point []float64) {
	for i, b := range r.bounds {
		point[i] = b.Clamp(point[i])
	}
}

func (r *searchRun) toAssignment(point []float64) params.Assignment {
	flat := make(map[string]float64, len(r.names))
	for i, name := range r.names {
		flat[name] = point[i]
	}
	return params.FromFlat(flat)
}

// defaultInitialPoints sizes the seeding phase at roughly a third of
// the run, bounded below so small spaces still get coverage.
func defaultInitialPoints(budget, dims int) int {
	floor := 5
	if 2*dims > floor {
		floor = 2 * dims
	}
	if budget > 0 && budget/3 < floor {
		if budget/3 < 1 {
			return 1
		}
		return budget / 3
	}
	return floor
}

// defaultXi explores more aggressively in higher dimensions.
func defaultXi(dims int) float64 {
	if dims <= 5 {
		return 0.1
	}
	return 0.2
}

// latinHypercube draws n stratified samples across the bounds.
func latinHypercube(rng *rand.Rand, bounds []params.Bounds, n int) [][]float64 {
	dims := len(bounds)
	samples := make([][]float64, n)
	for j := range samples {
		samples[j] = make([]float64, dims)
	}

	for i := 0; i < dims; i++ {
		strata := make([]float64, n)
		for j := 0; j < n; j++ {
			strata[j] = (float64(j) + rng.Float64()) / float64(n)
		}
		rng.Shuffle(n, func(k, l int) {
			strata[k], strata[l] = strata[l], strata[k]
		})
		for j := 0; j < n; j++ {
			samples[j][i] = bounds[i].Min + strata[j]*bounds[i].Width()
		}
	}
	return samples
}

// standardize rescales values to zero mean and unit variance so kernel
// hyperparameters stay in a sane regime across objectives.
func standardize(values []float64) (scaled []float64, mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	if std < 1e-12 {
		std = 1
	}
	scaled = make([]float64, len(values))
	for i, v := range values {
		scaled[i] = (v - mean) / std
	}
	return scaled, mean, std
}

func argmax(values []float64) int {
	best := -1
	bestVal := math.Inf(-1)
	for i, v := range values {
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}

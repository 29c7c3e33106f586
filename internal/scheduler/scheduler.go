package scheduler

import (
	"context"
	"math/rand"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

type Options struct {
	Logger   *zap.Logger
	Workers  int        // 并行计算适应度的协程数，默认为 GOMAXPROCS
	Rand     *rand.Rand // 为 nil 时根据参数中的 Seed 创建
	Recorder Recorder
}

// Progress 在每一代评估完成后回调
type Progress struct {
	Generation int
	State      domain.RunState
	BestValue  float64
	BestHard   int
	MeanValue  float64
	Elapsed    time.Duration
}

type Result struct {
	State       domain.RunState
	Best        *Chromosome
	Generations int
	TimedOut    bool
	Elapsed     time.Duration
}

type Scheduler struct {
	parameters domain.RunParameters
	problem    *problem
	catalog    *Catalog
	evaluator  *evaluator
	logger     *zap.Logger
	rng        *rand.Rand
	workers    int
	recorder   Recorder
}

// New 校验参数并构建排班问题，返回的错误为 ConfigError 或 InputError
func New(parameters domain.RunParameters, input *Input, opts Options) (*Scheduler, error) {
	parameters.ApplyDefaults()
	if err := validateParameters(&parameters); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := newProblem(input)
	if err != nil {
		return nil, err
	}

	var globals []domain.Restriction
	if input != nil {
		globals = input.GlobalRestrictions
	}
	catalog, err := newCatalog(p, globals, logger)
	if err != nil {
		return nil, err
	}

	rng := opts.Rand
	if rng == nil {
		seed := parameters.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Scheduler{
		parameters: parameters,
		problem:    p,
		catalog:    catalog,
		evaluator: &evaluator{
			catalog:          catalog,
			conflictWeight:   parameters.ConflictWeight,
			preferenceWeight: parameters.PreferenceWeight,
		},
		logger:   logger,
		rng:      rng,
		workers:  workers,
		recorder: recorder,
	}, nil
}

func validateParameters(p *domain.RunParameters) error {
	switch {
	case p.PopulationSize < 10 || p.PopulationSize > 500:
		return configErrorf("populationSize", "必须在 10-500 之间")
	case p.Generations < 10 || p.Generations > 2000:
		return configErrorf("generations", "必须在 10-2000 之间")
	case p.MutationRate < 0.01 || p.MutationRate > 1:
		return configErrorf("mutationRate", "必须在 0.01-1.0 之间")
	case p.CrossoverType != domain.CrossoverOnePoint && p.CrossoverType != domain.CrossoverTwoPoint:
		return configErrorf("crossoverType", "只能为 1 或 2")
	case p.CrossoverRate < 0 || p.CrossoverRate > 1:
		return configErrorf("crossoverRate", "必须在 0-1 之间")
	case p.PreferenceWeight < 0 || p.PreferenceWeight > 1:
		return configErrorf("preferenceWeight", "必须在 0-1 之间")
	case p.ConflictWeight < 0 || p.ConflictWeight > 1:
		return configErrorf("conflictWeight", "必须在 0-1 之间")
	case p.EliteCount < 1 || p.EliteCount >= p.PopulationSize:
		return configErrorf("eliteCount", "必须至少为 1 且小于种群大小")
	case p.Selection != domain.SelectionTournament && p.Selection != domain.SelectionRoulette:
		return configErrorf("selection", "未知的选择算子 %q", p.Selection)
	case p.TournamentSize < 1 || p.TournamentSize > p.PopulationSize:
		return configErrorf("tournamentSize", "必须在 1 与种群大小之间")
	case p.PlateauGenerations < 0:
		return configErrorf("plateauGenerations", "不能为负数")
	case p.TimeBudgetMillis < domain.NoTimeBudget:
		return configErrorf("timeBudgetMillis", "不能小于 -1")
	}
	return nil
}

func (s *Scheduler) Parameters() domain.RunParameters { return s.parameters }

// Blocks 返回染色体的长度，即所有课程每周需要的课时总数
func (s *Scheduler) Blocks() int { return len(s.problem.blocks) }

// Schedule 执行进化过程，直到收敛、达到代数或时间上限、或者 ctx 被取消
// 取消只在每一代评估完成之后检查
func (s *Scheduler) Schedule(ctx context.Context, onGeneration func(Progress)) (*Result, error) {
	start := time.Now()
	budget := s.parameters.TimeBudget()
	size := int(s.parameters.PopulationSize)

	// 生成初始种群
	pop := make([]*Chromosome, size)
	for i := range pop {
		pop[i] = randomInitChromosome(s.problem, s.rng)
	}

	var best *Chromosome
	stagnant := 0

	for gen := 0; ; gen++ {
		genStart := time.Now()
		if err := s.evaluatePopulation(gen, pop); err != nil {
			return nil, err
		}
		s.recorder.ObserveGeneration(time.Since(genStart))

		sortPopulation(pop)

		// 这里需要使用深拷贝，防止后续繁殖的过程中导致指向的基因被修改
		if best == nil || pop[0].fitness.Better(best.fitness) {
			best = pop[0].clone()
			stagnant = 0
		} else {
			stagnant++
		}

		state := domain.RunStateEvolving
		if gen == 0 {
			state = domain.RunStateSeeded
		}
		if onGeneration != nil {
			onGeneration(Progress{
				Generation: gen,
				State:      state,
				BestValue:  best.fitness.Value,
				BestHard:   best.fitness.Hard,
				MeanValue:  meanValue(pop),
				Elapsed:    time.Since(start),
			})
		}

		if final, timedOut := s.terminal(ctx, gen, start, budget, best, stagnant); final != "" {
			elapsed := time.Since(start)
			s.logger.Info("进化结束",
				zap.String("state", string(final)),
				zap.Int("generations", gen),
				zap.Float64("fitness", best.fitness.Value),
				zap.Int("hardViolations", best.fitness.Hard),
				zap.Bool("timedOut", timedOut),
				zap.Duration("elapsed", elapsed),
			)
			return &Result{
				State:       final,
				Best:        best,
				Generations: gen,
				TimedOut:    timedOut,
				Elapsed:     elapsed,
			}, nil
		}

		next, err := s.breed(gen, pop)
		if err != nil {
			return nil, err
		}
		pop = next
	}
}

// terminal 在每一代的边界检查是否需要结束，返回空字符串表示继续
func (s *Scheduler) terminal(ctx context.Context, gen int, start time.Time, budget time.Duration, best *Chromosome, stagnant int) (domain.RunState, bool) {
	if ctx.Err() != nil {
		return domain.RunStateCancelled, false
	}
	if gen >= int(s.parameters.Generations) {
		return domain.RunStateExhausted, false
	}
	if budget > 0 && time.Since(start) >= budget {
		return domain.RunStateExhausted, true
	}
	// 只有可行解才允许报告为收敛
	plateau := int(s.parameters.PlateauGenerations)
	if plateau > 0 && best.fitness.Feasible() && stagnant >= plateau {
		return domain.RunStateConverged, false
	}
	return "", false
}

// evaluatePopulation 并行计算适应度，Wait 作为每一代的同步屏障
func (s *Scheduler) evaluatePopulation(gen int, pop []*Chromosome) error {
	p := pool.New().WithMaxGoroutines(s.workers)
	for _, ch := range pop {
		if ch.evaluated {
			continue
		}
		p.Go(func() {
			ch.fitness = s.evaluator.evaluate(ch.genes)
			ch.evaluated = true
		})
	}
	p.Wait()

	failed := 0
	for i, ch := range pop {
		if ch.fitness.Err != nil {
			failed++
			s.logger.Warn("染色体适应度计算失败", zap.Int("generation", gen), zap.Int("index", i), zap.Error(ch.fitness.Err))
		}
	}
	if failed == len(pop) {
		return &RunFailure{Generation: gen, Reason: "整代染色体的适应度计算均失败"}
	}
	return nil
}

// breed 根据已排序的种群生成下一代
func (s *Scheduler) breed(gen int, pop []*Chromosome) ([]*Chromosome, error) {
	size := int(s.parameters.PopulationSize)
	next := make([]*Chromosome, 0, size)

	// 保留精英
	for i := 0; i < int(s.parameters.EliteCount) && i < len(pop); i++ {
		next = append(next, pop[i].clone())
	}

	for len(next) < size {
		c1 := s.selectParent(pop).offspring()
		c2 := s.selectParent(pop).offspring()

		if s.rng.Float64() < s.parameters.CrossoverRate {
			crossover(s.parameters.CrossoverType, c1.genes, c2.genes, s.rng)
		}

		mutate(s.problem, c1, s.parameters.MutationRate, s.rng)
		mutate(s.problem, c2, s.parameters.MutationRate, s.rng)

		next = append(next, c1)
		if len(next) < size {
			next = append(next, c2)
		}
	}

	if len(next) == 0 {
		return nil, &RunFailure{Generation: gen + 1, Reason: "新一代种群为空"}
	}
	return next, nil
}

func (s *Scheduler) selectParent(pop []*Chromosome) *Chromosome {
	if s.parameters.Selection == domain.SelectionRoulette {
		return selectByRoulette(pop, s.rng)
	}
	return selectByTournament(pop, int(s.parameters.TournamentSize), s.rng)
}

func meanValue(pop []*Chromosome) float64 {
	sum, n := 0.0, 0
	for _, ch := range pop {
		if ch.fitness.Err == nil {
			sum += ch.fitness.Value
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Recorder 用于采集运行指标
type Recorder interface {
	RunStarted(scope domain.RunScope)
	RunFinished(scope domain.RunScope, status domain.RunStatus, elapsed time.Duration)
	ObserveGeneration(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(domain.RunScope)                                   {}
func (nopRecorder) RunFinished(domain.RunScope, domain.RunStatus, time.Duration) {}
func (nopRecorder) ObserveGeneration(time.Duration)                              {}

// Hook 在任务进入终止状态后依次调用，run 不会再被修改
type Hook func(ctx context.Context, run domain.Run) error

type ProgressFunc func(progress domain.RunProgress)

type RegistryConfig struct {
	MaxConcurrentRuns int
	Workers           int
	DefaultTimeBudget time.Duration
	Retention         time.Duration // 已结束的任务在内存中保留的时间
	Logger            *zap.Logger
	Recorder          Recorder
	OnProgress        ProgressFunc
	OnSubmit          Hook // 通过校验后、任务启动前调用，返回错误时任务不会被创建；持有注册表的锁，不能回调 Registry
	OnComplete        []Hook
}

type Request struct {
	Run   *domain.Run // 元数据与参数，ID 为空时自动生成
	Input *Input
}

// Task 是一个排班任务的句柄
type Task struct {
	mu       sync.RWMutex
	run      domain.Run
	cancel   context.CancelFunc
	done     chan struct{}
	finished time.Time
}

func (t *Task) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run.ID
}

// Snapshot 返回任务当前状态的副本
func (t *Task) Snapshot() domain.Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run := t.run
	if t.run.Progress != nil {
		progress := *t.run.Progress
		run.Progress = &progress
	}
	return run
}

func (t *Task) Status() domain.RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run.Status
}

// Done 在任务结束且所有回调执行完毕后关闭
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait 阻塞直到任务结束或 ctx 被取消
func (t *Task) Wait(ctx context.Context) (domain.Run, error) {
	select {
	case <-t.done:
		return t.Snapshot(), nil
	case <-ctx.Done():
		return domain.Run{}, ctx.Err()
	}
}

func (t *Task) setProgress(p Progress) domain.RunProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	progress := domain.RunProgress{
		RunID:              t.run.ID,
		State:              p.State,
		Generation:         p.Generation,
		TotalGenerations:   int(t.run.Parameters.Generations),
		BestFitness:        p.BestValue,
		BestHardViolations: p.BestHard,
		MeanFitness:        p.MeanValue,
		ElapsedMillis:      p.Elapsed.Milliseconds(),
		UpdatedAt:          time.Now(),
	}
	t.run.State = p.State
	t.run.Generations = p.Generation
	t.run.FitnessScore = p.BestValue
	t.run.HardViolations = p.BestHard
	t.run.Progress = &progress
	return progress
}

func (t *Task) complete(res *Result, report *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.run.State = res.State
	t.run.Status = res.State.Status()
	t.run.Schedules = report.Schedules
	t.run.Violations = report.Violations
	t.run.Statistics = report.Statistics
	t.run.FitnessScore = res.Best.fitness.Value
	t.run.HardViolations = res.Best.fitness.Hard
	t.run.Generations = res.Generations
	t.run.TimedOut = res.TimedOut
	t.run.ElapsedMillis = res.Elapsed.Milliseconds()
	t.run.FinishedAt = &now
	if t.run.Progress != nil {
		t.run.Progress.State = res.State
	}
	t.finished = now
}

// abort 用于任务失败或在开始前被取消，不保留任何中间结果
func (t *Task) abort(state domain.RunState, reason string, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.run.State = state
	t.run.Status = state.Status()
	t.run.Schedules = nil
	t.run.Violations = nil
	t.run.FitnessScore = 0
	t.run.HardViolations = 0
	t.run.ErrorMessage = reason
	t.run.ElapsedMillis = elapsed.Milliseconds()
	t.run.FinishedAt = &now
	if t.run.Progress != nil {
		t.run.Progress.State = state
	}
	t.finished = now
}

// Registry 管理进程内所有的排班任务，并限制同时运行的任务数
type Registry struct {
	cfg      RegistryConfig
	logger   *zap.Logger
	recorder Recorder
	sem      *semaphore.Weighted

	mu     sync.RWMutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Registry{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		tasks:    make(map[string]*Task),
	}
}

// Submit 校验请求并在后台启动任务
// 参数或输入不合法时返回 ConfigError / InputError，任务不会开始
func (r *Registry) Submit(req Request) (*Task, error) {
	if req.Run == nil {
		return nil, inputErrorf("run", 0, "为空")
	}

	run := *req.Run
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	// NoTimeBudget 表示调用方显式关闭了默认预算
	if run.Parameters.TimeBudgetMillis == 0 && r.cfg.DefaultTimeBudget > 0 {
		run.Parameters.TimeBudgetMillis = r.cfg.DefaultTimeBudget.Milliseconds()
	}

	logger := r.logger.With(zap.String("runID", run.ID), zap.String("scope", string(run.Scope)))
	sched, err := New(run.Parameters, req.Input, Options{
		Logger:   logger,
		Workers:  r.cfg.Workers,
		Recorder: r.recorder,
	})
	if err != nil {
		return nil, err
	}

	run.Parameters = sched.Parameters()
	run.Status = domain.RunStatusRunning
	run.State = domain.RunStateSeeded
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrShutdown
	}
	if _, exists := r.tasks[run.ID]; exists {
		return nil, inputErrorf("run", 0, "任务 %s 已存在", run.ID)
	}

	// 持锁调用，被拒绝的请求不会留下记录
	if r.cfg.OnSubmit != nil {
		if err := r.cfg.OnSubmit(context.Background(), run); err != nil {
			return nil, err
		}
	}
	r.pruneLocked()

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		run:    run,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.tasks[run.ID] = t

	r.wg.Add(1)
	go r.execute(ctx, t, sched, logger)

	logger.Info("排班任务已提交", zap.Int("blocks", sched.Blocks()))
	return t, nil
}

func (r *Registry) execute(ctx context.Context, t *Task, sched *Scheduler, logger *zap.Logger) {
	defer r.wg.Done()
	defer t.cancel()

	scope := t.run.Scope
	start := time.Now()

	// 排队等待时也可以被取消
	if err := r.sem.Acquire(ctx, 1); err != nil {
		t.abort(domain.RunStateCancelled, "任务在开始前被取消", 0)
		logger.Info("排班任务在排队时被取消")
		r.finish(t, logger)
		return
	}

	r.recorder.RunStarted(scope)
	res, err := sched.Schedule(ctx, func(p Progress) {
		progress := t.setProgress(p)
		if r.cfg.OnProgress != nil {
			r.cfg.OnProgress(progress)
		}
	})

	if err != nil {
		logger.Error("排班任务失败", zap.Error(err))
		t.abort(domain.RunStateFailed, err.Error(), time.Since(start))
	} else {
		t.complete(res, sched.Report(res.Best))
	}

	status := t.Status()
	r.recorder.RunFinished(scope, status, time.Since(start))
	// 指标记录完成后再释放，保证同时运行的任务数不会被观测到超过上限
	r.sem.Release(1)
	logger.Info("排班任务结束", zap.String("status", string(status)))
	r.finish(t, logger)
}

func (r *Registry) finish(t *Task, logger *zap.Logger) {
	run := t.Snapshot()
	for _, hook := range r.cfg.OnComplete {
		if err := hook(context.Background(), run); err != nil {
			logger.Error("排班任务结束回调失败", zap.Error(err))
		}
	}
	close(t.done)
}

func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Cancel 请求取消任务，任务会在当前这一代评估结束后停止
func (r *Registry) Cancel(id string) error {
	t, ok := r.Get(id)
	if !ok {
		return ErrRunNotFound
	}
	if t.Status().Terminal() {
		return ErrRunFinished
	}
	t.cancel()
	return nil
}

// Forget 从内存中移除已结束的任务
func (r *Registry) Forget(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrRunNotFound
	}
	if !t.Status().Terminal() {
		return errors.New("排班任务仍在运行")
	}
	delete(r.tasks, id)
	return nil
}

// Active 返回尚未结束的任务数
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.tasks {
		if !t.Status().Terminal() {
			n++
		}
	}
	return n
}

func (r *Registry) pruneLocked() {
	if r.cfg.Retention <= 0 {
		return
	}
	for id, t := range r.tasks {
		t.mu.RLock()
		expired := !t.finished.IsZero() && time.Since(t.finished) > r.cfg.Retention
		t.mu.RUnlock()
		if expired {
			delete(r.tasks, id)
		}
	}
}

// Shutdown 拒绝新的任务，取消所有运行中的任务并等待它们结束
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.tasks {
		t.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package scheduler processes sets of LC and MS files in fixed-size
// batches on a bounded worker pool. Files that fail are logged and left
// out of the result; if the pool itself fails, the rest of the batch is
// processed sequentially.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/524D/lcquant/internal/measurement"
	"github.com/524D/lcquant/internal/metrics"
)

var (
	// ErrInvalidMode means the processing mode is not one of the known modes
	ErrInvalidMode = errors.New("scheduler: invalid mode")
	// ErrAlreadyRun means Run was called twice on one Scheduler
	ErrAlreadyRun = errors.New("scheduler: already run")
	// ErrUnitPanic means processing a file panicked
	ErrUnitPanic = errors.New("scheduler: unit panicked")
	// ErrNoResult means processing a file returned neither result nor error
	ErrNoResult = errors.New("scheduler: no result")
)

// Mode selects which file kinds a run processes
type Mode string

const (
	ModeLCMS   Mode = "LC/GC-MS"
	ModeLCOnly Mode = "LC/GC Only"
	ModeMSOnly Mode = "MS Only"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeLCMS, ModeLCOnly, ModeMSOnly:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) lc() bool { return m == ModeLCMS || m == ModeLCOnly }
func (m Mode) ms() bool { return m == ModeLCMS || m == ModeMSOnly }

// State is the phase of a run
type State int32

const (
	Idle State = iota
	Dispatching
	Recovering
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Dispatching:
		return "Dispatching"
	case Recovering:
		return "Recovering"
	case Completed:
		return "Completed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Unit is one file to process
type Unit struct {
	Path string
	Kind measurement.Kind
}

// Progress counts resolved units. It is sent once per unit, whether the
// unit succeeded or not.
type Progress struct {
	Completed int
	Total     int
}

// Fraction returns the completed fraction, 1 for an empty run
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}

// ProcessFunc processes one file
type ProcessFunc func(ctx context.Context, u Unit) (*measurement.Measurement, error)

// Executor runs fn for every unit of a batch. Execute must not return
// before every call of fn it started has returned. An error means the
// executor itself failed; failures of fn are not reported.
type Executor interface {
	Execute(ctx context.Context, units []Unit, fn func(Unit)) error
}

// Config holds the run settings
type Config struct {
	Mode      Mode
	BatchSize int
	// Workers is the pool size, 0 derives it from the machine
	Workers int
}

// Result holds the measurements of all successfully processed files,
// keyed by file name
type Result struct {
	RunID string
	LC    map[string]*measurement.Measurement
	MS    map[string]*measurement.Measurement
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithExecutor replaces the default worker pool
func WithExecutor(e Executor) Option {
	return func(s *Scheduler) { s.exec = e }
}

// WithProgress sets the channel progress is sent on. Sends block, so
// the channel must be drained or buffered for the whole run.
func WithProgress(ch chan<- Progress) Option {
	return func(s *Scheduler) { s.progress = ch }
}

// WithMetrics records the run in c
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = c }
}

// Scheduler runs one processing run. Create a new Scheduler per run.
type Scheduler struct {
	cfg      Config
	process  ProcessFunc
	exec     Executor
	progress chan<- Progress
	metrics  *metrics.Collector
	state    atomic.Int32
	log      *slog.Logger
}

// New creates a Scheduler. It fails with ErrInvalidMode for unknown modes.
func New(cfg Config, process ProcessFunc, opts ...Option) (*Scheduler, error) {
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = DetectWorkers()
	}
	s := &Scheduler{
		cfg:     cfg,
		process: process,
		log:     slog.Default().With(slog.String("component", "scheduler")),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// State returns the current phase
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug("state", slog.String("state", st.String()))
}

// Workers returns the pool size of the run
func (s *Scheduler) Workers() int {
	return s.cfg.Workers
}

// Run processes lcPaths and msPaths, as far as the mode includes them,
// LC batches first. The context is checked between batches; on
// cancellation the results so far are returned with the context error.
func (s *Scheduler) Run(ctx context.Context, lcPaths, msPaths []string) (*Result, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Dispatching)) {
		return nil, ErrAlreadyRun
	}
	res := &Result{
		RunID: uuid.NewString(),
		LC:    make(map[string]*measurement.Measurement),
		MS:    make(map[string]*measurement.Measurement),
	}
	log := s.log.With(slog.String("run", res.RunID))

	var lc, ms []Unit
	if s.cfg.Mode.lc() {
		for _, p := range lcPaths {
			lc = append(lc, Unit{Path: p, Kind: measurement.LC})
		}
	}
	if s.cfg.Mode.ms() {
		for _, p := range msPaths {
			ms = append(ms, Unit{Path: p, Kind: measurement.MS})
		}
	}
	batches := append(Partition(lc, s.cfg.BatchSize), Partition(ms, s.cfg.BatchSize)...)
	tracker := &tracker{total: len(lc) + len(ms), seen: make(map[Unit]bool), ch: s.progress}

	exec := s.exec
	if exec == nil {
		pool := NewPool(s.cfg.Workers)
		if err := pool.Start(s.cfg.Workers); err != nil {
			return nil, err
		}
		defer pool.Stop()
		exec = pool
	}
	if s.metrics != nil {
		s.metrics.SetWorkers(s.cfg.Workers)
	}
	log.Info("processing started", slog.String("mode", string(s.cfg.Mode)),
		slog.Int("files", tracker.total), slog.Int("batches", len(batches)),
		slog.Int("workers", s.cfg.Workers))
	start := time.Now()

	var err error
	for i, batch := range batches {
		if err = ctx.Err(); err != nil {
			log.Warn("processing cancelled", slog.Int("batch", i))
			break
		}
		s.runBatch(ctx, exec, batch, res, tracker, log.With(slog.Int("batch", i)))
	}
	s.setState(Completed)
	log.Info("processing finished", slog.Int("lc", len(res.LC)), slog.Int("ms", len(res.MS)),
		slog.Duration("elapsed", time.Since(start)))
	return res, err
}

func (s *Scheduler) runBatch(ctx context.Context, exec Executor, batch []Unit, res *Result,
	tr *tracker, log *slog.Logger) {
	if s.metrics != nil {
		s.metrics.RecordBatch()
	}
	var mu sync.Mutex
	succeeded := make(map[string]bool)
	collect := func(u Unit) {
		m, err := s.runUnit(ctx, u, log)
		tr.done(u)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		succeeded[u.Path] = true
		res.add(m, log)
	}

	err := exec.Execute(ctx, batch, collect)
	if err == nil {
		return
	}
	log.Error("executor failed, processing rest of batch sequentially", slog.Any("error", err))
	s.setState(Recovering)
	if s.metrics != nil {
		s.metrics.RecordRecovery()
	}
	for _, u := range batch {
		mu.Lock()
		ok := succeeded[u.Path]
		mu.Unlock()
		if !ok {
			collect(u)
		}
	}
	s.setState(Dispatching)
}

// runUnit processes one file. Panics become errors.
func (s *Scheduler) runUnit(ctx context.Context, u Unit, log *slog.Logger) (m *measurement.Measurement, err error) {
	kind := u.Kind.String()
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordStarted()
	}
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%w: %v", ErrUnitPanic, r)
		}
		if err != nil {
			log.Warn("file failed", slog.String("path", u.Path), slog.String("kind", kind),
				slog.Any("error", err))
			if s.metrics != nil {
				s.metrics.RecordFailed(kind, time.Since(start))
			}
			return
		}
		if s.metrics != nil {
			s.metrics.RecordCompleted(kind, time.Since(start))
		}
	}()
	m, err = s.process(ctx, u)
	if err == nil && m == nil {
		err = ErrNoResult
	}
	return m, err
}

func (r *Result) add(m *measurement.Measurement, log *slog.Logger) {
	dst := r.MS
	if m.Kind == measurement.LC {
		dst = r.LC
	}
	if _, dup := dst[m.Name]; dup {
		log.Warn("duplicate file name, keeping the last", slog.String("name", m.Name),
			slog.String("path", m.Path))
	}
	dst[m.Name] = m
}

// tracker counts units the first time they resolve
type tracker struct {
	mu        sync.Mutex
	seen      map[Unit]bool
	completed int
	total     int
	ch        chan<- Progress
}

func (t *tracker) done(u Unit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen[u] {
		return
	}
	t.seen[u] = true
	t.completed++
	if t.ch != nil {
		t.ch <- Progress{Completed: t.completed, Total: t.total}
	}
}

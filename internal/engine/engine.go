// Package engine drives a scenario run: it owns the run state, fires ticks at
// a fixed interval and hands each generated payload to the delivery client
// without waiting for the outcome.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/vitalsim/internal/delivery"
	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/generator"
	"codeberg.org/mutker/vitalsim/internal/history"
	"codeberg.org/mutker/vitalsim/internal/logger"
	"codeberg.org/mutker/vitalsim/internal/scenario"
	"github.com/google/uuid"
)

const (
	DefaultSendInterval = time.Second
	DefaultDrainTimeout = 5 * time.Second
)

// ScenarioSource resolves scenario names to definitions.
type ScenarioSource interface {
	Load(name string) (*scenario.Scenario, error)
}

type Options struct {
	PatientID       string
	DeviceID        string
	SendInterval    time.Duration
	SmoothingWindow time.Duration
	NoiseLevel      float64
	Seed            int64
	// DrainTimeout bounds how long Run waits for in-flight deliveries after
	// the loop ends. Zero reports immediately. Deliveries that complete after
	// the run record has been written are not added to the run history.
	DrainTimeout time.Duration
	Now          func() time.Time
}

type Engine struct {
	opts     Options
	client   delivery.Client
	recorder history.Recorder
	log      logger.Logger

	mu       sync.Mutex
	state    State
	scenario *scenario.Scenario
	run      *RunState
	ticks    int

	// tickMu serializes tick bodies with Stop so that no tick starts after
	// Stop returns.
	tickMu   sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once

	inflight sync.WaitGroup
	pending  atomic.Int64

	// recordMu orders failure records before the run record; once
	// runRecorded is set, late failures are no longer written.
	recordMu    sync.RWMutex
	runRecorded bool
}

// New returns an Idle engine. recorder may be nil.
func New(opts Options, client delivery.Client, recorder history.Recorder, log logger.Logger) *Engine {
	if opts.SendInterval <= 0 {
		opts.SendInterval = DefaultSendInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if recorder == nil {
		recorder, _ = history.NewService(history.Config{}, log)
	}

	return &Engine{
		opts:     opts,
		client:   client,
		recorder: recorder,
		log:      log.With("device_id", opts.DeviceID),
		state:    Idle,
		stopCh:   make(chan struct{}),
	}
}

// Load resolves name through src and moves the engine to Loaded.
func (e *Engine) Load(src ScenarioSource, name string) error {
	sc, err := src.Load(name)
	if err != nil {
		return err
	}

	return e.LoadScenario(sc)
}

// LoadScenario validates sc and moves the engine to Loaded.
func (e *Engine) LoadScenario(sc *scenario.Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Idle {
		return errors.New().WithData(errors.ErrInvalidState, e.state.String())
	}

	e.scenario = sc
	e.state = Loaded

	e.log.Info().
		Str("scenario", sc.Name).
		Float64("duration", sc.Duration).
		Int("vitals", len(sc.Vitals)).
		Msg("Scenario loaded")

	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ticks returns the number of payloads generated so far.
func (e *Engine) Ticks() int {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.ticks
}

// Stats returns the outcome counters of the current or last run.
func (e *Engine) Stats() StatsSnapshot {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()

	if run == nil {
		return StatsSnapshot{}
	}
	return run.Stats.Snapshot()
}

// Stop cancels the tick timer. It is safe to call from any goroutine and more
// than once. Deliveries already dispatched are not cancelled.
func (e *Engine) Stop() {
	e.tickMu.Lock()
	e.stopped = true
	e.tickMu.Unlock()

	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Run checks connectivity, then ticks until the scenario duration elapses,
// Stop is called or ctx is done. A ctx cancelled during the connectivity
// check yields ErrCancelled and leaves the engine Loaded.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	errFactory := errors.New()

	e.mu.Lock()
	if e.state != Loaded {
		state := e.state
		e.mu.Unlock()
		return Summary{}, errFactory.WithData(errors.ErrInvalidState, state.String())
	}
	sc := e.scenario
	e.mu.Unlock()

	if !e.client.TestConnection(ctx) {
		if ctx.Err() != nil {
			return Summary{}, errFactory.Wrap(errors.ErrCancelled, ctx.Err())
		}
		return Summary{}, errFactory.New(errors.ErrConnectivityFailure)
	}

	run := newRunState()
	gen := generator.New(sc, generator.Config{
		SendInterval:    e.opts.SendInterval,
		SmoothingWindow: e.opts.SmoothingWindow,
		NoiseLevel:      e.opts.NoiseLevel,
		Seed:            e.opts.Seed,
	})

	summary := Summary{
		RunID:     uuid.NewString(),
		Scenario:  sc.Name,
		PatientID: e.opts.PatientID,
		DeviceID:  e.opts.DeviceID,
		StartedAt: e.opts.Now(),
	}
	log := e.log.With("run_id", summary.RunID)

	e.mu.Lock()
	e.run = run
	e.state = Running
	e.mu.Unlock()

	log.Info().
		Str("scenario", sc.Name).
		Str("patient_id", e.opts.PatientID).
		Dur("interval", e.opts.SendInterval).
		Msg("Simulation started")

	// Deliveries outlive Stop and ctx cancellation; the client applies its
	// own timeout.
	deliveryCtx := context.WithoutCancel(ctx)

	summary.Reason = e.loop(ctx, deliveryCtx, sc, gen, run, summary, log)

	e.tickMu.Lock()
	e.stopped = true
	summary.Ticks = e.ticks
	e.tickMu.Unlock()

	e.mu.Lock()
	e.state = Stopped
	e.mu.Unlock()

	summary.Pending = e.drain()
	summary.EndedAt = e.opts.Now()

	stats := run.Stats.Snapshot()
	summary.Sent = stats.Sent
	summary.Failed = stats.Failed
	summary.Errors = stats.Errors

	e.recordMu.Lock()
	e.runRecorded = true
	e.recordMu.Unlock()

	if err := e.recorder.RecordRun(context.WithoutCancel(ctx), &history.RunRecord{
		RunID:     summary.RunID,
		Scenario:  summary.Scenario,
		PatientID: summary.PatientID,
		DeviceID:  summary.DeviceID,
		StartedAt: summary.StartedAt,
		EndedAt:   summary.EndedAt,
		Ticks:     summary.Ticks,
		Sent:      summary.Sent,
		Failed:    summary.Failed,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record run history")
	}

	summary.Log(log)

	return summary, nil
}

func (e *Engine) loop(
	ctx, deliveryCtx context.Context,
	sc *scenario.Scenario,
	gen *generator.Generator,
	run *RunState,
	summary Summary,
	log logger.Logger,
) StopReason {
	ticker := time.NewTicker(e.opts.SendInterval)
	defer ticker.Stop()

	for {
		if reason, done := e.tick(deliveryCtx, sc, gen, run, summary, log); done {
			return reason
		}

		select {
		case <-ctx.Done():
			return ReasonCancelled
		case <-e.stopCh:
			return ReasonStopped
		case <-ticker.C:
		}
	}
}

// tick generates and dispatches one payload. It reports done when the run
// must end.
func (e *Engine) tick(
	deliveryCtx context.Context,
	sc *scenario.Scenario,
	gen *generator.Generator,
	run *RunState,
	summary Summary,
	log logger.Logger,
) (StopReason, bool) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if e.stopped {
		return ReasonStopped, true
	}

	now := e.opts.Now()
	elapsed := now.Sub(summary.StartedAt).Seconds()
	if elapsed >= sc.Duration {
		return ReasonCompleted, true
	}
	run.Elapsed = elapsed

	reading, err := gen.Next(run.Values, elapsed)
	if err != nil {
		// The scenario was validated on load; this indicates a bug.
		log.Error().Err(err).Float64("elapsed", elapsed).Msg("Failed to generate vitals")
		return "", false
	}

	payload := generator.NewPayload(e.opts.PatientID, e.opts.DeviceID, now, reading)
	e.ticks++

	log.Debug().
		Int("tick", e.ticks).
		Float64("elapsed", elapsed).
		Interface("vitals", reading).
		Msg("Vitals generated")

	e.inflight.Add(1)
	e.pending.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.pending.Add(-1)
		res := e.client.SendData(deliveryCtx, payload)
		e.complete(run, res, summary.RunID, now, elapsed, log)
	}()

	return "", false
}

func (e *Engine) complete(run *RunState, res delivery.Result, runID string, at time.Time, elapsed float64, log logger.Logger) {
	code := delivery.Classify(res)
	if code == "" {
		run.Stats.recordSuccess()
		return
	}

	msg := ""
	if failure := res.Failure(); failure != nil {
		msg = failure.Error()
	}

	rec := ErrorRecord{
		Time:    at,
		Elapsed: elapsed,
		Code:    code,
		Err:     msg,
		Status:  res.Status,
	}
	run.Stats.recordFailure(rec)

	log.Warn().
		Str("error_code", string(code)).
		Int("status", res.Status).
		Float64("elapsed", elapsed).
		Msg(msg)

	e.recordMu.RLock()
	defer e.recordMu.RUnlock()

	if e.runRecorded {
		log.Debug().Float64("elapsed", elapsed).Msg("Delivery failed after the run was recorded, not stored")
		return
	}

	if err := e.recorder.RecordFailure(context.Background(), &history.FailureRecord{
		RunID:   runID,
		Time:    at,
		Elapsed: elapsed,
		Code:    string(code),
		Status:  res.Status,
		Message: msg,
	}); err != nil {
		log.Debug().Err(err).Msg("Failed to record delivery failure")
	}
}

// drain waits up to DrainTimeout for in-flight deliveries and returns how
// many were still pending.
func (e *Engine) drain() int {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	if e.opts.DrainTimeout > 0 {
		timer := time.NewTimer(e.opts.DrainTimeout)
		defer timer.Stop()

		select {
		case <-done:
			return 0
		case <-timer.C:
		}
	} else {
		select {
		case <-done:
			return 0
		default:
		}
	}

	return int(e.pending.Load())
}

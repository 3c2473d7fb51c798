// Package pulse schedules refreshes across providers, owns the published
// state and fans it out to subscribers.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const DefaultInterval = 5 * time.Minute

// Publisher receives every state the orchestrator produces.
type Publisher interface {
	Publish(state core.PulseState)
}

// CycleReport describes one finished full refresh.
type CycleReport struct {
	ID       string
	Trigger  core.RefreshTrigger
	Duration time.Duration
	State    core.PulseState
	Err      error
}

type Orchestrator struct {
	sources   []core.SignalSource
	selector  core.Selector
	publisher Publisher
	snapshot  SnapshotWriter
	logger    *zap.Logger
	now       func() time.Time
	onCycle   func(CycleReport)

	// gate admits one refresh at a time. Full refreshes block on it,
	// silent refreshes give up when it is taken.
	gate      chan struct{}
	hasLoaded atomic.Bool

	mu    sync.RWMutex
	state core.PulseState

	intervalMu   sync.Mutex
	interval     time.Duration
	intervalWake chan struct{}
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithSnapshot(w SnapshotWriter) Option {
	return func(o *Orchestrator) { o.snapshot = w }
}

func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCycleObserver registers fn to run after every full refresh.
func WithCycleObserver(fn func(CycleReport)) Option {
	return func(o *Orchestrator) { o.onCycle = fn }
}

func New(sources []core.SignalSource, selector core.Selector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sources:      append([]core.SignalSource(nil), sources...),
		selector:     selector,
		logger:       zap.NewNop(),
		now:          time.Now,
		gate:         make(chan struct{}, 1),
		state:        core.NewPulseState(),
		interval:     DefaultInterval,
		intervalWake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns a copy of the current state.
func (o *Orchestrator) State() core.PulseState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

func (o *Orchestrator) HasLoaded() bool { return o.hasLoaded.Load() }

func (o *Orchestrator) Interval() time.Duration {
	o.intervalMu.Lock()
	defer o.intervalMu.Unlock()
	return o.interval
}

// UpdateRefreshInterval changes the loop interval and restarts the current
// idle wait with it. An in-flight refresh is not affected.
func (o *Orchestrator) UpdateRefreshInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	o.intervalMu.Lock()
	o.interval = d
	o.intervalMu.Unlock()

	select {
	case o.intervalWake <- struct{}{}:
	default:
	}
}

// Run performs the initial refresh and then refreshes every interval until
// ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.RefreshOnce(ctx, core.TriggerInitial); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	for {
		timer := time.NewTimer(o.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-o.intervalWake:
			timer.Stop()
		case <-timer.C:
			if err := o.RefreshOnce(ctx, core.TriggerScheduled); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// RefreshOnce runs a full refresh. Concurrent callers queue on the gate.
// Provider failures become "no data" readings; grouping or snapshot
// failures are published as state errors and returned. Cancellation is
// returned without publishing.
func (o *Orchestrator) RefreshOnce(ctx context.Context, trigger core.RefreshTrigger) error {
	select {
	case o.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-o.gate }()

	id := xid.New().String()
	log := o.logger.With(zap.String("cycle", id), zap.String("trigger", string(trigger)))
	start := o.now()

	if trigger.ShowsLoading(o.hasLoaded.Load()) {
		loading := o.State()
		loading.Refreshing = true
		loading.Trigger = trigger
		o.publish(loading)
	}

	readings, err := o.collect(ctx, log)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("refresh failed", zap.Error(err))
		failed := o.failedState(trigger, err)
		o.publish(failed)
		o.report(CycleReport{ID: id, Trigger: trigger, Duration: o.now().Sub(start), State: failed, Err: err})
		return err
	}

	next := core.PulseState{
		Readings:    readings,
		LastRefresh: o.now(),
		Trigger:     trigger,
	}
	o.hasLoaded.Store(true)
	o.publish(next)

	if o.snapshot != nil {
		if err := o.snapshot.WriteSnapshot(next); err != nil {
			log.Error("snapshot write failed", zap.Error(err))
			failed := o.failedState(trigger, err)
			o.publish(failed)
			o.report(CycleReport{ID: id, Trigger: trigger, Duration: o.now().Sub(start), State: failed, Err: err})
			return err
		}
	}

	log.Debug("refresh complete",
		zap.Int("providers", len(readings)),
		zap.Duration("elapsed", o.now().Sub(start)))
	o.report(CycleReport{ID: id, Trigger: trigger, Duration: o.now().Sub(start), State: next})
	return nil
}

// RefreshProvider re-reads one provider and merges the result into the
// current state. It returns false without doing anything when another
// refresh holds the gate. Failures are logged at debug level only.
func (o *Orchestrator) RefreshProvider(ctx context.Context, provider core.ProviderID) bool {
	select {
	case o.gate <- struct{}{}:
	default:
		return false
	}
	defer func() { <-o.gate }()

	sources := lo.Filter(o.sources, func(s core.SignalSource, _ int) bool { return s.Profile().ID == provider })
	if len(sources) == 0 {
		o.logger.Debug("silent refresh: unknown provider", zap.String("provider", string(provider)))
		return false
	}

	r, err := o.selectSafe(ctx, provider, sources)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Debug("silent refresh failed", zap.String("provider", string(provider)), zap.Error(err))
		}
		return false
	}

	merged := o.State()
	merged.Readings[provider] = r
	merged.Trigger = core.TriggerSilent
	merged.Refreshing = false
	o.publish(merged)
	return true
}

// collect reads every provider group concurrently.
func (o *Orchestrator) collect(ctx context.Context, log *zap.Logger) (map[core.ProviderID]core.Reading, error) {
	groups, err := groupSources(o.sources)
	if err != nil {
		return nil, err
	}

	type groupResult struct {
		provider core.ProviderID
		reading  core.Reading
	}
	results := make(chan groupResult, len(groups))
	var wg sync.WaitGroup
	for provider, sources := range groups {
		wg.Add(1)
		go func(provider core.ProviderID, sources []core.SignalSource) {
			defer wg.Done()
			r, err := o.selectSafe(ctx, provider, sources)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("provider refresh failed", zap.String("provider", string(provider)), zap.Error(err))
				}
				r = core.NoDataReading(provider, o.now())
			}
			results <- groupResult{provider: provider, reading: r}
		}(provider, sources)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	readings := make(map[core.ProviderID]core.Reading, len(groups))
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return readings, nil
			}
			readings[r.provider] = r.reading
		}
	}
}

func (o *Orchestrator) selectSafe(ctx context.Context, provider core.ProviderID, sources []core.SignalSource) (r core.Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pulse: selector panicked for %s: %v", provider, p)
		}
	}()
	if o.selector == nil {
		return core.Reading{}, errors.New("pulse: no selector configured")
	}
	return o.selector.Select(ctx, provider, sources)
}

func groupSources(sources []core.SignalSource) (groups map[core.ProviderID][]core.SignalSource, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pulse: grouping sources: %v", p)
		}
	}()
	for _, s := range sources {
		if s.Profile().ID == "" {
			return nil, fmt.Errorf("pulse: source %q has no provider id", s.Name())
		}
	}
	return lo.GroupBy(sources, func(s core.SignalSource) core.ProviderID { return s.Profile().ID }), nil
}

// failedState keeps the last readings and attaches err. Until the first
// successful load the state stays in its loading phase.
func (o *Orchestrator) failedState(trigger core.RefreshTrigger, err error) core.PulseState {
	s := o.State()
	s.Errors = []string{err.Error()}
	s.Refreshing = !o.hasLoaded.Load()
	s.Trigger = trigger
	return s
}

func (o *Orchestrator) publish(s core.PulseState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s.Clone()
	if o.publisher != nil {
		o.publisher.Publish(s)
	}
}

func (o *Orchestrator) report(r CycleReport) {
	if o.onCycle != nil {
		o.onCycle(r)
	}
}

// Package selector reads every signal source of a provider concurrently and
// keeps the most trustworthy reading.
package selector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const defaultSourceTimeout = 20 * time.Second

// Outcome describes one source read, for instrumentation.
type Outcome struct {
	Provider core.ProviderID
	Source   string
	Reading  core.Reading
	Err      error
	Elapsed  time.Duration
}

type Selector struct {
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
	observer func(Outcome)
}

type Option func(*Selector)

// WithTimeout bounds each individual source read.
func WithTimeout(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers fn to be called after every source read. fn runs on
// the reading goroutine and must be safe for concurrent use.
func WithObserver(fn func(Outcome)) Option {
	return func(s *Selector) { s.observer = fn }
}

func New(logger *zap.Logger, opts ...Option) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Selector{
		logger:  logger,
		timeout: defaultSourceTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ core.Selector = (*Selector)(nil)

type result struct {
	index   int
	reading core.Reading
	err     error
}

// Select reads all sources concurrently. Failed sources are logged and left
// out; when none succeeds the result is a "no data" reading. Only ctx
// cancellation is returned as an error, without waiting for slow sources.
func (s *Selector) Select(ctx context.Context, provider core.ProviderID, sources []core.SignalSource) (core.Reading, error) {
	if len(sources) == 0 {
		return core.NoDataReading(provider, s.now()), nil
	}

	// Buffered so reads that finish after cancellation never block.
	results := make(chan result, len(sources))
	for i, src := range sources {
		go func(i int, src core.SignalSource) {
			r, err := s.read(ctx, provider, src)
			results <- result{index: i, reading: r, err: err}
		}(i, src)
	}

	var ok []result
	for range sources {
		select {
		case <-ctx.Done():
			return core.Reading{}, ctx.Err()
		case r := <-results:
			if r.err != nil {
				if !isCancellation(r.err) {
					s.logger.Warn("source read failed",
						zap.String("provider", string(provider)),
						zap.String("source", sources[r.index].Name()),
						zap.Error(r.err))
				}
				continue
			}
			ok = append(ok, r)
		}
	}
	if err := ctx.Err(); err != nil {
		return core.Reading{}, err
	}

	slices.SortFunc(ok, func(a, b result) int { return a.index - b.index })
	return Best(lo.Map(ok, func(r result, _ int) core.Reading { return r.reading }), provider, s.now()), nil
}

func (s *Selector) read(ctx context.Context, provider core.ProviderID, src core.SignalSource) (r core.Reading, err error) {
	start := s.now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("selector: source %s panicked: %v", src.Name(), p)
		}
		if s.observer != nil {
			s.observer(Outcome{Provider: provider, Source: src.Name(), Reading: r, Err: err, Elapsed: s.now().Sub(start)})
		}
	}()

	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return src.Read(readCtx)
}

// Best applies the selection rule: strictly higher confidence wins, then a
// strictly later capture time. Earlier entries win exact ties. With no
// readings the result is a "no data" reading captured at now.
func Best(readings []core.Reading, provider core.ProviderID, now time.Time) core.Reading {
	if len(readings) == 0 {
		return core.NoDataReading(provider, now)
	}
	return lo.MaxBy(readings, better)
}

func better(a, b core.Reading) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.CapturedAt.After(b.CapturedAt)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

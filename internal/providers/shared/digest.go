package shared

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/expense"
)

const defaultDigestTTL = 30 * time.Second

// DigestAttacher adds a cost digest to successful readings. All sources of
// a provider share one attacher, so within the TTL the logs are digested
// once per refresh rather than once per source.
type DigestAttacher struct {
	analyzer *expense.Analyzer
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cached *core.ConsumptionDigest
	at     time.Time
}

func NewDigestAttacher(analyzer *expense.Analyzer, logger *zap.Logger) *DigestAttacher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestAttacher{analyzer: analyzer, logger: logger, ttl: defaultDigestTTL, now: time.Now}
}

// Attach returns r with a digest when one can be computed. Failures leave
// r untouched. Readings without data get nothing.
func (d *DigestAttacher) Attach(ctx context.Context, r core.Reading) core.Reading {
	if d == nil || d.analyzer == nil || r.Confidence == core.ConfidenceUnknown {
		return r
	}
	digest, err := d.digest(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Debug("cost digest unavailable", zap.String("provider", string(r.Provider)), zap.Error(err))
		}
		return r
	}
	return r.WithDigest(digest)
}

func (d *DigestAttacher) digest(ctx context.Context) (core.ConsumptionDigest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.cached != nil && now.Sub(d.at) < d.ttl {
		return *d.cached, nil
	}
	digest, err := d.analyzer.Analyze(ctx)
	if err != nil {
		return core.ConsumptionDigest{}, err
	}
	d.cached, d.at = &digest, now
	return digest, nil
}

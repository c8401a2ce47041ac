package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// PolitenessDelayer enforces the mandatory pause between successive fetches
// of a sequential crawl. With jitter enabled the actual pause is uniform in
// [0.5x, 1.5x] of the base delay (wget --random-wait semantics).
type PolitenessDelayer struct {
	baseDelay   time.Duration
	jitter      bool
	lastRequest time.Time
	log         *logrus.Entry
}

// NewPolitenessDelayer creates a PolitenessDelayer.
func NewPolitenessDelayer(baseDelay time.Duration, jitter bool, log *logrus.Entry) *PolitenessDelayer {
	return &PolitenessDelayer{
		baseDelay: baseDelay,
		jitter:    jitter,
		log:       log,
	}
}

// Wait blocks until the politeness delay since the previous request has
// elapsed, or until the context is cancelled. The first call never blocks.
func (p *PolitenessDelayer) Wait(ctx context.Context) error {
	if p.baseDelay <= 0 {
		return ctx.Err()
	}

	delay := p.baseDelay
	if p.jitter {
		// Uniform in [0.5x, 1.5x].
		delay = p.baseDelay/2 + time.Duration(rand.Int63n(int64(p.baseDelay)))
	}

	if p.lastRequest.IsZero() {
		return ctx.Err()
	}

	elapsed := time.Since(p.lastRequest)
	if elapsed >= delay {
		return ctx.Err()
	}

	sleep := delay - elapsed
	p.log.WithFields(logrus.Fields{"sleep": sleep, "base_delay": p.baseDelay}).Debug("Politeness delay")

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MarkRequest records the current time as the last request attempt time.
// Call this after each HTTP request attempt.
func (p *PolitenessDelayer) MarkRequest() {
	p.lastRequest = time.Now()
}

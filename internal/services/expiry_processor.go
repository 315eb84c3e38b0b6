package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	flowlog "flowmoney/internal/log"
)

// ExpiryProcessorConfig holds configuration for the expiry processor.
type ExpiryProcessorConfig struct {
	// Interval is how often expired memberships are swept (default: 1h)
	Interval time.Duration
}

func DefaultExpiryProcessorConfig() ExpiryProcessorConfig {
	return ExpiryProcessorConfig{Interval: time.Hour}
}

// MembershipExpirer demotes every membership whose expiry has passed.
type MembershipExpirer interface {
	ExpireMemberships(ctx context.Context) (int, error)
}

// ExpiryProcessor sweeps expired memberships on a ticker so that users who
// never come back are demoted too.
type ExpiryProcessor struct {
	expirer MembershipExpirer
	config  ExpiryProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExpiryProcessor(expirer MembershipExpirer, config ExpiryProcessorConfig) *ExpiryProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultExpiryProcessorConfig().Interval
	}
	return &ExpiryProcessor{expirer: expirer, config: config}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ExpiryProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("expiry processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Expiry processor started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for the running sweep to finish.
func (p *ExpiryProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Expiry processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Expiry processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ExpiryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run sweeps immediately and then on every tick until ctx is done. It is
// the blocking form of Start for callers that manage their own goroutines.
func (p *ExpiryProcessor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

func (p *ExpiryProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.Sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and returns the number of demoted users.
// Failures are logged; the next tick tries again.
func (p *ExpiryProcessor) Sweep(ctx context.Context) int {
	n, err := p.expirer.ExpireMemberships(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Membership expiry sweep failed",
			flowlog.FieldOperation, flowlog.OpSweep, flowlog.FieldError, err)
		return 0
	}
	slog.DebugContext(ctx, "Membership expiry sweep complete",
		flowlog.FieldOperation, flowlog.OpSweep, "demoted", n)
	return n
}

package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chapelcast/internal/models"
	"chapelcast/internal/storage"
)

// PollerConfig tunes the background refresher.
type PollerConfig struct {
	Service  *Service
	Repo     storage.Repository
	Interval time.Duration
	// StallAfter flags assets stuck in a non-terminal state for longer than
	// this. Zero disables the diagnostic. Stalled assets are only logged;
	// the provider's status remains the sole authority over errored.
	StallAfter time.Duration
	Logger     *slog.Logger
}

// Poller periodically refreshes every non-terminal asset so records converge
// without a viewer-driven request. It is optional: the on-demand refresh path
// behaves identically without it.
type Poller struct {
	service    *Service
	repo       storage.Repository
	interval   time.Duration
	stallAfter time.Duration
	logger     *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

const defaultPollInterval = 30 * time.Second

func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		service:    cfg.Service,
		repo:       cfg.Repo,
		interval:   interval,
		stallAfter: cfg.StallAfter,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *Poller) Start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()
}

func (p *Poller) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Poller) sweep() {
	for _, status := range []models.IngestStatus{models.StatusSubmitting, models.StatusProcessing} {
		assets, err := p.repo.ListAssets(p.ctx, storage.ListFilter{Status: status})
		if err != nil {
			p.logger.Error("list assets for refresh", "status", string(status), "error", err)
			continue
		}
		for _, asset := range assets {
			select {
			case <-p.ctx.Done():
				return
			default:
			}
			if p.stallAfter > 0 {
				if age := time.Since(asset.UpdatedAt); age > p.stallAfter {
					p.logger.Warn("asset appears stalled", "asset_id", asset.ID, "status", string(asset.Status), "age", age.Round(time.Second).String())
				}
			}
			if _, err := p.service.Refresh(p.ctx, asset.ID); err != nil {
				p.logger.Error("background refresh failed", "asset_id", asset.ID, "error", err)
			}
		}
	}
}

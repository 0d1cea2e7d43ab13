// File: internal/monitor/refresher.go
package monitor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// HeadSource reports the node's latest block number
type HeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dashboards lists and reloads the campaigns someone has opened.
// dashboard.Loaders implements it.
type Dashboards interface {
	Campaigns() []*big.Int
	Reload(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error)
}

// RefreshStats summarizes the refresher's activity
type RefreshStats struct {
	Polls     uint64    `json:"polls"`
	Errors    uint64    `json:"errors"`
	Refreshes uint64    `json:"refreshes"`
	LastHead  uint64    `json:"last_head"`
	LastPoll  time.Time `json:"last_poll"`
	IsRunning bool      `json:"is_running"`
}

// Refresher polls the chain head and reloads open dashboards when it advances
type Refresher struct {
	heads      HeadSource
	dashboards Dashboards
	interval   time.Duration
	logger     *logrus.Entry

	metricsManager *metrics.Manager

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	stats    RefreshStats
}

// NewRefresher creates a refresher that polls every interval
func NewRefresher(heads HeadSource, dashboards Dashboards, interval time.Duration, metricsManager *metrics.Manager) *Refresher {
	return &Refresher{
		heads:          heads,
		dashboards:     dashboards,
		interval:       interval,
		logger:         utils.ComponentLogger("refresher"),
		metricsManager: metricsManager,
		stopChan:       make(chan struct{}),
	}
}

// Start runs the polling loop until ctx ends or Stop is called
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Refresher already running", "")
	}
	if r.interval <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Refresh interval must be positive", r.interval.String())
	}

	r.running = true
	r.stats.IsRunning = true

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.WithField("interval", r.interval).Info("Dashboard refresher started")
	return nil
}

// Stop stops the loop and waits for an in-flight poll to finish
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.stats.IsRunning = false
	r.mu.Unlock()

	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	r.logger.Info("Dashboard refresher stopped")
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.Poll(ctx); err != nil {
				r.logger.WithField("error", err).Warn("Head poll failed")
			}
		}
	}
}

// Poll checks the head once and, if it moved, reloads every open dashboard.
// A failed reload is logged; the committed view stays as it was.
func (r *Refresher) Poll(ctx context.Context) error {
	head, err := r.heads.BlockNumber(ctx)

	r.mu.Lock()
	r.stats.Polls++
	r.stats.LastPoll = time.Now()
	if err != nil {
		r.stats.Errors++
	}
	advanced := err == nil && head > r.stats.LastHead
	if advanced {
		r.stats.LastHead = head
	}
	r.mu.Unlock()

	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("node", err == nil)
	}
	if err != nil {
		return utils.FromContext(err, "Failed to get latest block number")
	}
	if !advanced {
		return nil
	}

	for _, campaignID := range r.dashboards.Campaigns() {
		if ctx.Err() != nil {
			return utils.FromContext(ctx.Err(), "Refresh interrupted")
		}
		if _, err := r.dashboards.Reload(ctx, campaignID); err != nil {
			if !utils.IsCode(err, utils.ErrCodeCanceled) {
				r.logger.WithFields(logrus.Fields{
					"campaign_id": campaignID.String(),
					"head":        head,
					"error":       err,
				}).Warn("Dashboard refresh failed")
			}
			continue
		}
		r.mu.Lock()
		r.stats.Refreshes++
		r.mu.Unlock()
	}

	r.logger.WithField("head", head).Debug("Dashboards refreshed")
	return nil
}

// Stats returns a copy of the refresher's counters
func (r *Refresher) Stats() RefreshStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

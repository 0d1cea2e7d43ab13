package dashboard

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// ViewBuilder builds one dashboard. Builder implements it.
type ViewBuilder interface {
	BuildDashboard(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error)
}

// Loader holds the committed view of one viewer. Each Load cancels the load
// before it, and a load commits only if no newer load started meanwhile.
// Callers superseded by a newer load of the same campaign wait for it and
// share its result.
type Loader struct {
	builder ViewBuilder
	logger  *logrus.Entry

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     *loadCall
	current    *models.DashboardView
	lastErr    error

	metricsManager *metrics.Manager
}

// loadCall is one generation's build. done closes once view and err are set.
// next points at the newer load of the same campaign that replaced it.
type loadCall struct {
	campaignID *big.Int
	done       chan struct{}
	view       *models.DashboardView
	err        error
	next       *loadCall
	superseded bool
}

// NewLoader creates a loader with no committed view
func NewLoader(builder ViewBuilder, metricsManager *metrics.Manager) *Loader {
	return &Loader{
		builder:        builder,
		logger:         utils.ComponentLogger("dashboard_loader"),
		metricsManager: metricsManager,
	}
}

// Load builds the view for campaignID and commits it. A load superseded by a
// newer load of the same campaign returns that load's result. One superseded
// by a different campaign returns a CANCELED error. Neither commits. A failed
// load keeps the previously committed view.
func (l *Loader) Load(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error) {
	for {
		call := l.run(ctx, campaignID)
		for call.next != nil {
			call = call.next
			select {
			case <-call.done:
			case <-ctx.Done():
				return nil, utils.FromContext(ctx.Err(), "Dashboard load abandoned")
			}
		}

		// The load we joined was cancelled by its own caller; ours still wants a view
		if !call.superseded && call.err != nil && utils.IsCode(call.err, utils.ErrCodeCanceled) && ctx.Err() == nil {
			continue
		}
		return call.view, call.err
	}
}

// run starts a new generation, builds it and settles the call
func (l *Loader) run(ctx context.Context, campaignID *big.Int) *loadCall {
	loadCtx, cancel := context.WithCancel(ctx)
	call := &loadCall{campaignID: campaignID, done: make(chan struct{})}

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.generation++
	generation := l.generation
	l.cancel = cancel
	l.latest = call
	l.mu.Unlock()

	view, err := l.builder.BuildDashboard(loadCtx, campaignID)

	l.mu.Lock()
	defer l.mu.Unlock()
	defer close(call.done)
	cancel()

	if generation != l.generation {
		if l.metricsManager != nil {
			l.metricsManager.GetPrometheusMetrics().RecordStaleLoad()
		}
		if l.latest.campaignID.Cmp(campaignID) == 0 {
			call.next = l.latest
			l.logger.WithField("campaign_id", campaignID.String()).Debug("Joining newer dashboard load")
			return call
		}
		l.logger.WithField("campaign_id", campaignID.String()).Debug("Discarding superseded dashboard load")
		call.superseded = true
		call.err = utils.NewAppError(utils.ErrCodeCanceled, "Dashboard load superseded", campaignID.String())
		return call
	}

	l.cancel = nil
	call.view, call.err = view, err
	if err != nil {
		l.lastErr = err
		return call
	}
	l.current = view
	l.lastErr = nil
	return call
}

// Reload is Load under the name the write paths use
func (l *Loader) Reload(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error) {
	return l.Load(ctx, campaignID)
}

// Current returns the last committed view, or nil
func (l *Loader) Current() *models.DashboardView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LastError returns the error of the latest completed load, or nil if it succeeded
func (l *Loader) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Loaders keeps one Loader per viewer key
type Loaders struct {
	builder ViewBuilder
	mu      sync.Mutex
	loaders map[string]*Loader

	metricsManager *metrics.Manager
}

// NewLoaders creates an empty set
func NewLoaders(builder ViewBuilder, metricsManager *metrics.Manager) *Loaders {
	return &Loaders{
		builder:        builder,
		loaders:        make(map[string]*Loader),
		metricsManager: metricsManager,
	}
}

// For returns the loader for key, creating it on first use
func (ls *Loaders) For(key string) *Loader {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	loader, ok := ls.loaders[key]
	if !ok {
		loader = NewLoader(ls.builder, ls.metricsManager)
		ls.loaders[key] = loader
	}
	return loader
}

// Reload loads campaignID on the loader keyed by that campaign
func (ls *Loaders) Reload(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error) {
	return ls.For(campaignID.String()).Load(ctx, campaignID)
}

// Campaigns returns the ids of every campaign that has a loader, ascending
func (ls *Loaders) Campaigns() []*big.Int {
	ls.mu.Lock()
	ids := make([]*big.Int, 0, len(ls.loaders))
	for key := range ls.loaders {
		if id, err := utils.ParseCampaignID(key); err == nil {
			ids = append(ids, id)
		}
	}
	ls.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

package dashboard

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/reader"
	"github.com/smartdevs17/etherfund-dashboard/internal/telemetry"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// SnapshotSource reads the live campaign state. contract.Gateway implements it.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, campaignID *big.Int) (*models.CampaignSnapshot, error)
}

// RecordSource loads campaign history. reader.Reader implements it.
type RecordSource interface {
	LoadDonations(ctx context.Context, campaignID *big.Int) ([]models.DonationRecord, error)
	LoadDisbursements(ctx context.Context, campaignID *big.Int) ([]models.DisbursementRecord, error)
	LoadUpdates(ctx context.Context, campaignID *big.Int) (*reader.UpdateBatch, error)
}

// Builder assembles DashboardViews
type Builder struct {
	snapshots SnapshotSource
	records   RecordSource
	config    *config.DashboardConfig
	logger    *logrus.Entry

	metricsManager *metrics.Manager
}

// NewBuilder creates a builder
func NewBuilder(snapshots SnapshotSource, records RecordSource, cfg *config.DashboardConfig, metricsManager *metrics.Manager) *Builder {
	if cfg == nil {
		cfg = &config.DashboardConfig{RecentLimit: DefaultRecentLimit}
	}
	return &Builder{
		snapshots:      snapshots,
		records:        records,
		config:         cfg,
		logger:         utils.ComponentLogger("dashboard_builder"),
		metricsManager: metricsManager,
	}
}

// BuildDashboard fetches the snapshot and the three event sequences
// concurrently and folds them. Any failed fetch fails the whole view.
func (b *Builder) BuildDashboard(ctx context.Context, campaignID *big.Int) (view *models.DashboardView, err error) {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.BuildDashboard", attribute.String("campaign_id", campaignID.String()))
	start := time.Now()
	defer func() {
		telemetry.EndSpan(span, err)
		if b.metricsManager != nil {
			b.metricsManager.GetPrometheusMetrics().RecordDashboardBuild(metrics.StatusLabel(err), time.Since(start))
		}
	}()

	var (
		snapshot      *models.CampaignSnapshot
		donations     []models.DonationRecord
		disbursements []models.DisbursementRecord
		updates       *reader.UpdateBatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.withTimeout(gctx, func(ctx context.Context) (err error) {
			snapshot, err = b.snapshots.FetchSnapshot(ctx, campaignID)
			return err
		})
	})
	g.Go(func() error {
		return b.withTimeout(gctx, func(ctx context.Context) (err error) {
			donations, err = b.records.LoadDonations(ctx, campaignID)
			return err
		})
	})
	g.Go(func() error {
		return b.withTimeout(gctx, func(ctx context.Context) (err error) {
			disbursements, err = b.records.LoadDisbursements(ctx, campaignID)
			return err
		})
	})
	g.Go(func() error {
		return b.withTimeout(gctx, func(ctx context.Context) (err error) {
			updates, err = b.records.LoadUpdates(ctx, campaignID)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		b.logger.WithFields(logrus.Fields{
			"campaign_id": campaignID.String(),
			"error":       err,
		}).Warn("Dashboard unavailable")
		return nil, err
	}

	view = Fold(campaignID, *snapshot, donations, disbursements, updates, b.config.RecentLimit)
	b.logger.WithFields(logrus.Fields{
		"campaign_id":   campaignID.String(),
		"donations":     len(donations),
		"disbursements": len(disbursements),
		"updates":       len(view.Updates),
		"dropped":       len(view.DroppedUpdates),
		"duration":      time.Since(start),
	}).Debug("Dashboard built")
	return view, nil
}

// withTimeout runs call under dashboard.call_timeout and classifies expiry as TIMEOUT
func (b *Builder) withTimeout(ctx context.Context, call func(ctx context.Context) error) error {
	if b.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.CallTimeout)
		defer cancel()
	}
	err := call(ctx)
	if err != nil && ctx.Err() != nil && utils.CodeOf(err) == "" {
		return utils.FromContext(ctx.Err(), "Dashboard fetch aborted")
	}
	return err
}

package forms

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/etherfund-dashboard/internal/contentstore"
	"github.com/smartdevs17/etherfund-dashboard/internal/dashboard"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/notification"
	"github.com/smartdevs17/etherfund-dashboard/internal/storage"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

type fakeWriter struct {
	mu        sync.Mutex
	signer    bool
	err       error
	newID     *big.Int
	updates   []string
	campaigns []models.CampaignParams
}

func (f *fakeWriter) HasSigner() bool { return f.signer }

func (f *fakeWriter) SubmitUpdate(ctx context.Context, campaignID *big.Int, contentID string) (*models.TransactionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.updates = append(f.updates, contentID)
	return &models.TransactionReceipt{TxHash: "0xupdate", Success: true, Confirmations: 1}, nil
}

func (f *fakeWriter) CreateCampaign(ctx context.Context, params models.CampaignParams) (*models.TransactionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.campaigns = append(f.campaigns, params)
	return &models.TransactionReceipt{TxHash: "0xcreate", Success: true, CampaignID: f.newID}, nil
}

// countingBuilder returns a fresh view on every build
type countingBuilder struct {
	mu     sync.Mutex
	builds int
}

func (c *countingBuilder) BuildDashboard(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builds++
	return &models.DashboardView{CampaignID: campaignID, LoadedAt: time.Now()}, nil
}

func validForm() CampaignForm {
	return CampaignForm{
		MinimumContribution: "0.01",
		Name:                "Clean water",
		Description:         "Wells for three villages",
		ImageURL:            "https://example.org/well.png",
		Target:              "12.5",
	}
}

func TestCampaignFormValidate(t *testing.T) {
	params, err := validForm().Validate()
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", params.MinContribution.String())
	assert.Equal(t, "12500000000000000000", params.Target.String())

	form := validForm()
	form.Name = "  "
	form.Target = ""
	_, err = form.Validate()
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
	assert.Contains(t, err.Error(), "All fields are required")
	assert.Contains(t, err.Error(), "name, target")

	form = validForm()
	form.Target = "1.0000000000000000001"
	_, err = form.Validate()
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	form = validForm()
	form.ImageURL = "not a url"
	_, err = form.Validate()
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
}

func TestPostUpdateStoresBodyAndReloads(t *testing.T) {
	store := contentstore.NewMemoryStore()
	writer := &fakeWriter{signer: true}
	builder := &countingBuilder{}
	loader := dashboard.NewLoader(builder, nil)
	history := storage.NewMemoryStorage()

	service := NewService(writer, store, loader, history)
	service.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }

	result, err := service.PostUpdate(context.Background(), big.NewInt(3), "  Wells are done  ")
	require.NoError(t, err)
	assert.Equal(t, NoticeSuccess, result.Notice.Status)
	assert.Equal(t, "Update posted successfully", result.Notice.Title)
	require.NotNil(t, result.View)
	assert.Equal(t, 1, builder.builds)
	assert.Same(t, result.View, loader.Current())

	require.Len(t, writer.updates, 1)
	raw, err := store.Get(context.Background(), writer.updates[0])
	require.NoError(t, err)
	var body models.UpdateBody
	require.NoError(t, contentstore.Decode(raw, &body))
	assert.Equal(t, "Wells are done", body.Content)
	assert.Equal(t, int64(1_700_000_000_123), body.Timestamp)

	subs, err := history.GetSubmissions(context.Background(), "3", 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, storage.SubmissionConfirmed, subs[0].Status)
	assert.Equal(t, "0xupdate", subs[0].TxHash)
}

func TestPostUpdateRejectedLeavesViewUnchanged(t *testing.T) {
	writer := &fakeWriter{signer: true}
	builder := &countingBuilder{}
	loader := dashboard.NewLoader(builder, nil)
	history := storage.NewMemoryStorage()
	service := NewService(writer, contentstore.NewMemoryStore(), loader, history)

	before, err := loader.Load(context.Background(), big.NewInt(3))
	require.NoError(t, err)

	writer.err = utils.NewAppError(utils.ErrCodeUserRejected, "Transaction rejected by signer")
	result, err := service.PostUpdate(context.Background(), big.NewInt(3), "hello")
	assert.True(t, utils.IsCode(err, utils.ErrCodeUserRejected))
	assert.Equal(t, NoticeWarning, result.Notice.Status)
	assert.Equal(t, "Error posting update", result.Notice.Title)
	assert.Nil(t, result.View)

	assert.Same(t, before, loader.Current())
	assert.Equal(t, 1, builder.builds)

	subs, err := history.GetSubmissions(context.Background(), "3", 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, storage.SubmissionRejected, subs[0].Status)
}

func TestPostUpdateValidation(t *testing.T) {
	writer := &fakeWriter{signer: true}
	service := NewService(writer, contentstore.NewMemoryStore(), nil, nil)

	result, err := service.PostUpdate(context.Background(), big.NewInt(1), "   ")
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
	assert.Equal(t, NoticeError, result.Notice.Status)
	assert.Empty(t, writer.updates)
}

func TestWritesWithoutWallet(t *testing.T) {
	service := NewService(&fakeWriter{}, contentstore.NewMemoryStore(), nil, nil)

	result, err := service.PostUpdate(context.Background(), big.NewInt(1), "hello")
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnavailableProvider))
	assert.Contains(t, result.Notice.Title, "connect your wallet")

	result, err = service.CreateCampaign(context.Background(), validForm())
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnavailableProvider))
	assert.Contains(t, result.Notice.Title, "connect your wallet")
}

func TestCreateCampaignLoadsNewCampaign(t *testing.T) {
	writer := &fakeWriter{signer: true, newID: big.NewInt(12)}
	builder := &countingBuilder{}
	loaders := dashboard.NewLoaders(builder, nil)
	service := NewService(writer, contentstore.NewMemoryStore(), loaders, storage.NewMemoryStorage())

	result, err := service.CreateCampaign(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, "Campaign created", result.Notice.Title)
	require.NotNil(t, result.View)
	assert.Equal(t, "12", result.View.CampaignID.String())
	require.Len(t, writer.campaigns, 1)
	assert.Equal(t, "Clean water", writer.campaigns[0].Name)

	result, err = service.CreateCampaign(context.Background(), CampaignForm{Name: "x"})
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
	assert.Equal(t, NoticeError, result.Notice.Status)
	assert.Len(t, writer.campaigns, 1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, event notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestConfirmedWritesNotify(t *testing.T) {
	writer := &fakeWriter{signer: true, newID: big.NewInt(12)}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	service := NewService(writer, contentstore.NewMemoryStore(), dashboard.NewLoader(&countingBuilder{}, nil), nil).
		WithNotifier(notifier, time.Second)

	_, err := service.CreateCampaign(context.Background(), validForm())
	require.NoError(t, err)
	service.Wait()
	result, err := service.PostUpdate(context.Background(), big.NewInt(12), "First well dug")
	require.NoError(t, err)
	service.Wait()

	require.Len(t, notifier.events, 2)
	assert.Equal(t, notification.Event{Type: notification.EventCampaignCreated, CampaignID: "12", TxHash: "0xcreate"}, notifier.events[0])
	assert.Equal(t, notification.EventUpdatePosted, notifier.events[1].Type)
	assert.Equal(t, result.ContentID, notifier.events[1].ContentID)

	writer.err = utils.NewAppError(utils.ErrCodeUserRejected, "declined", "")
	_, err = service.PostUpdate(context.Background(), big.NewInt(12), "Second")
	require.Error(t, err)
	service.Wait()
	assert.Len(t, notifier.events, 2)
}

// stalledNotifier blocks every delivery until released or its context ends
type stalledNotifier struct {
	release chan struct{}
	ctxErr  chan error
}

func (s *stalledNotifier) Notify(ctx context.Context, event notification.Event) error {
	select {
	case <-s.release:
		s.ctxErr <- nil
		return nil
	case <-ctx.Done():
		s.ctxErr <- ctx.Err()
		return ctx.Err()
	}
}

func TestSlowNotifierDoesNotDelayWrite(t *testing.T) {
	notifier := &stalledNotifier{release: make(chan struct{}), ctxErr: make(chan error, 1)}
	service := NewService(&fakeWriter{signer: true}, contentstore.NewMemoryStore(), dashboard.NewLoader(&countingBuilder{}, nil), nil).
		WithNotifier(notifier, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	result, err := service.PostUpdate(ctx, big.NewInt(3), "Roof is on")
	require.NoError(t, err)
	assert.Equal(t, NoticeSuccess, result.Notice.Status)
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	// Ending the request does not cut the delivery short; only its own timeout does
	cancel()
	service.Wait()
	assert.ErrorIs(t, <-notifier.ctxErr, context.DeadlineExceeded)
}

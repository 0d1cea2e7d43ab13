package forms

import (
	"context"
	"errors"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/etherfund-dashboard/internal/contentstore"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
	"github.com/smartdevs17/etherfund-dashboard/internal/notification"
	"github.com/smartdevs17/etherfund-dashboard/internal/storage"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Notice statuses
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeWarning = "warning"
)

// Notice is the user-visible outcome of a write
type Notice struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// CampaignForm holds the raw create-campaign fields, amounts in ETH
type CampaignForm struct {
	MinimumContribution string `json:"minimum_contribution"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	ImageURL            string `json:"image_url"`
	Target              string `json:"target"`
}

// Result is what a write returns to the form that started it
type Result struct {
	Notice    Notice                     `json:"notice"`
	Receipt   *models.TransactionReceipt `json:"receipt,omitempty"`
	ContentID string                     `json:"content_id,omitempty"`
	View      *models.DashboardView      `json:"view,omitempty"`
}

// Writer performs contract writes. contract.Gateway implements it.
type Writer interface {
	HasSigner() bool
	SubmitUpdate(ctx context.Context, campaignID *big.Int, contentID string) (*models.TransactionReceipt, error)
	CreateCampaign(ctx context.Context, params models.CampaignParams) (*models.TransactionReceipt, error)
}

// Reloader re-runs the read path for a campaign
type Reloader interface {
	Reload(ctx context.Context, campaignID *big.Int) (*models.DashboardView, error)
}

// Notifier is told about confirmed writes. notification.WebhookSender implements it.
type Notifier interface {
	Notify(ctx context.Context, event notification.Event) error
}

// Service validates form input and runs the write paths. Writes are never retried.
type Service struct {
	writer   Writer
	store    contentstore.Store
	reloader Reloader
	history  storage.ContentCache
	notifier Notifier
	logger   *logrus.Entry
	now      func() time.Time

	notifyTimeout time.Duration
	notifyWG      sync.WaitGroup
}

const defaultNotifyTimeout = time.Minute

// NewService creates a form service. history may be nil.
func NewService(writer Writer, store contentstore.Store, reloader Reloader, history storage.ContentCache) *Service {
	return &Service{
		writer:   writer,
		store:    store,
		reloader: reloader,
		history:  history,
		logger:   utils.ComponentLogger("forms"),
		now:      time.Now,
	}
}

// WithNotifier sets the notifier told about confirmed writes. Each
// notification runs in the background for at most timeout.
func (s *Service) WithNotifier(n Notifier, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	s.notifier = n
	s.notifyTimeout = timeout
	return s
}

// Wait blocks until every pending notification has finished
func (s *Service) Wait() {
	s.notifyWG.Wait()
}

// Validate checks every field is present and the amounts parse exactly
func (f CampaignForm) Validate() (*models.CampaignParams, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"minimum_contribution", f.MinimumContribution},
		{"name", f.Name},
		{"description", f.Description},
		{"image_url", f.ImageURL},
		{"target", f.Target},
	}

	var missing []string
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "All fields are required", strings.Join(missing, ", "))
	}

	minContribution, err := utils.ParseEther(f.MinimumContribution)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeValidation, "Invalid minimum contribution", err)
	}
	target, err := utils.ParseEther(f.Target)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeValidation, "Invalid target amount", err)
	}
	if target.Sign() == 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Target amount must be positive", f.Target)
	}

	imageURL := strings.TrimSpace(f.ImageURL)
	if u, err := url.ParseRequestURI(imageURL); err != nil || u.Host == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Image URL is not a valid URL", imageURL)
	}

	return &models.CampaignParams{
		MinContribution: minContribution,
		Name:            strings.TrimSpace(f.Name),
		Description:     strings.TrimSpace(f.Description),
		ImageURL:        imageURL,
		Target:          target,
	}, nil
}

// CreateCampaign validates the form, creates the campaign and, when the
// contract reports the new id, loads its dashboard
func (s *Service) CreateCampaign(ctx context.Context, form CampaignForm) (*Result, error) {
	params, err := form.Validate()
	if err != nil {
		return s.fail("Invalid campaign", err), err
	}
	if !s.writer.HasSigner() {
		err := utils.NewAppError(utils.ErrCodeUnavailableProvider, "No wallet connected", "")
		return s.fail("Please connect your wallet first to create a fund", err), err
	}

	submission := s.newSubmission("createCampaign", "")
	receipt, err := s.writer.CreateCampaign(ctx, *params)
	s.finishSubmission(ctx, submission, receipt, err)
	if err != nil {
		return s.fail("Error creating campaign", err), err
	}

	result := &Result{
		Notice:  Notice{Status: NoticeSuccess, Title: "Campaign created", Detail: receipt.TxHash},
		Receipt: receipt,
	}
	event := notification.Event{Type: notification.EventCampaignCreated, TxHash: receipt.TxHash}
	if receipt.CampaignID != nil {
		event.CampaignID = receipt.CampaignID.String()
		result.View = s.reload(ctx, receipt.CampaignID)
	}
	s.notify(ctx, event)

	s.logger.WithFields(logrus.Fields{"tx_hash": receipt.TxHash, "name": params.Name}).Info("Campaign created")
	return result, nil
}

// PostUpdate stores the update body, records it on-chain and reloads the dashboard
func (s *Service) PostUpdate(ctx context.Context, campaignID *big.Int, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		err := utils.NewAppError(utils.ErrCodeValidation, "Update text is required", "")
		return s.fail("Error posting update", err), err
	}
	if campaignID == nil {
		err := utils.NewAppError(utils.ErrCodeValidation, "Campaign id is required", "")
		return s.fail("Error posting update", err), err
	}
	if !s.writer.HasSigner() {
		err := utils.NewAppError(utils.ErrCodeUnavailableProvider, "No wallet connected", "")
		return s.fail("Please connect your wallet first to post an update", err), err
	}

	body := models.UpdateBody{Content: text, Timestamp: s.now().UnixMilli()}
	contentID, err := s.store.Put(ctx, body)
	if err != nil {
		return s.fail("Error posting update", err), err
	}

	submission := s.newSubmission("addCampaignUpdate", campaignID.String())
	submission.ContentID = contentID
	receipt, err := s.writer.SubmitUpdate(ctx, campaignID, contentID)
	s.finishSubmission(ctx, submission, receipt, err)
	if err != nil {
		result := s.fail("Error posting update", err)
		result.ContentID = contentID
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"campaign_id": campaignID.String(),
		"content_id":  contentID,
		"tx_hash":     receipt.TxHash,
	}).Info("Update posted")

	s.notify(ctx, notification.Event{
		Type:       notification.EventUpdatePosted,
		CampaignID: campaignID.String(),
		TxHash:     receipt.TxHash,
		ContentID:  contentID,
	})

	return &Result{
		Notice:    Notice{Status: NoticeSuccess, Title: "Update posted successfully", Detail: receipt.TxHash},
		Receipt:   receipt,
		ContentID: contentID,
		View:      s.reload(ctx, campaignID),
	}, nil
}

// reload re-runs the read path; a failure here does not undo a confirmed write
func (s *Service) reload(ctx context.Context, campaignID *big.Int) *models.DashboardView {
	if s.reloader == nil {
		return nil
	}
	view, err := s.reloader.Reload(ctx, campaignID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"campaign_id": campaignID.String(), "error": err}).Warn("Reload after write failed")
		return nil
	}
	return view
}

// notify tells the notifier about a confirmed write without holding up the
// caller. It outlives the request context; failures are only logged.
func (s *Service) notify(ctx context.Context, event notification.Event) {
	if s.notifier == nil {
		return
	}

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(notifyCtx, event); err != nil {
			s.logger.WithFields(logrus.Fields{"event": event.Type, "error": err}).Warn("Write notification failed")
		}
	}()
}

func (s *Service) fail(title string, err error) *Result {
	status := NoticeError
	if utils.IsCode(err, utils.ErrCodeUnavailableProvider) || utils.IsCode(err, utils.ErrCodeUserRejected) {
		status = NoticeWarning
	}
	detail := err.Error()
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		detail = appErr.Message
		if appErr.Details != "" {
			detail += ": " + appErr.Details
		}
	}
	s.logger.WithFields(logrus.Fields{"title": title, "error": err}).Warn("Write failed")
	return &Result{Notice: Notice{Status: status, Title: title, Detail: detail}}
}

func (s *Service) newSubmission(method, campaignID string) *storage.Submission {
	return &storage.Submission{
		ID:         uuid.NewString(),
		Method:     method,
		CampaignID: campaignID,
		CreatedAt:  s.now().UTC(),
	}
}

func (s *Service) finishSubmission(ctx context.Context, submission *storage.Submission, receipt *models.TransactionReceipt, err error) {
	if s.history == nil {
		return
	}

	switch {
	case err == nil:
		submission.Status = storage.SubmissionConfirmed
	case utils.IsCode(err, utils.ErrCodeUserRejected):
		submission.Status = storage.SubmissionRejected
	default:
		submission.Status = storage.SubmissionFailed
	}
	if err != nil {
		submission.Error = err.Error()
	}
	if receipt != nil {
		submission.TxHash = receipt.TxHash
		if submission.CampaignID == "" && receipt.CampaignID != nil {
			submission.CampaignID = receipt.CampaignID.String()
		}
	}

	if err := s.history.SaveSubmission(ctx, submission); err != nil {
		s.logger.WithFields(logrus.Fields{"submission_id": submission.ID, "error": err}).Warn("Failed to record submission")
	}
}

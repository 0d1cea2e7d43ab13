package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/internal/telemetry"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// maxBodySize caps a fetched content body
const maxBodySize = 4 << 20

// HTTPStore talks to an IPFS node or gateway over its HTTP RPC API
type HTTPStore struct {
	baseURL    string
	config     *config.ContentStoreConfig
	httpClient *http.Client
	logger     *logrus.Entry

	metricsManager *metrics.Manager
}

// addResponse is the reply of /api/v0/add
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// apiError is the error body the IPFS API returns
type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

// NewHTTPStore creates a store for the configured endpoint
func NewHTTPStore(cfg *config.ContentStoreConfig, metricsManager *metrics.Manager) *HTTPStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.ContentStoreURL(), "/"),
		config:  cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger:         utils.ComponentLogger("content_store"),
		metricsManager: metricsManager,
	}
}

// Put uploads the compact JSON encoding of v and returns the content id
func (s *HTTPStore) Put(ctx context.Context, v interface{}) (id string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contentstore.Put")
	defer func() { telemetry.EndSpan(span, err) }()
	start := time.Now()
	defer func() { s.record("put", err, start) }()

	body, err := encode(v)
	if err != nil {
		return "", err
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", "content.json")
	if err != nil {
		return "", utils.WrapError(utils.ErrCodeInternal, "Failed to build upload", err)
	}
	if _, err := part.Write(body); err != nil {
		return "", utils.WrapError(utils.ErrCodeInternal, "Failed to build upload", err)
	}
	if err := writer.Close(); err != nil {
		return "", utils.WrapError(utils.ErrCodeInternal, "Failed to build upload", err)
	}

	resp, err := s.post(ctx, "/api/v0/add", url.Values{"pin": {"true"}}, &form, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.statusError(resp, "")
	}

	var added addResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&added); err != nil {
		return "", utils.WrapError(utils.ErrCodeStoreUnavailable, "Unexpected add response", err)
	}
	if added.Hash == "" {
		return "", utils.NewAppError(utils.ErrCodeStoreUnavailable, "Add response has no content id", "")
	}

	s.logger.WithFields(logrus.Fields{"content_id": added.Hash, "size": len(body)}).Debug("Content stored")
	return added.Hash, nil
}

// Get fetches the JSON stored under id
func (s *HTTPStore) Get(ctx context.Context, id string) (raw json.RawMessage, err error) {
	ctx, span := telemetry.StartSpan(ctx, "contentstore.Get", attribute.String("content_id", id))
	defer func() { telemetry.EndSpan(span, err) }()
	start := time.Now()
	defer func() { s.record("get", err, start) }()

	if strings.TrimSpace(id) == "" {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Content id is empty", "")
	}

	resp, err := s.post(ctx, "/api/v0/cat", url.Values{"arg": {id}}, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError(resp, id)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeStoreUnavailable, "Failed to read content", err)
	}
	return validate(id, body)
}

// post sends an authenticated POST to the API
func (s *HTTPStore) post(ctx context.Context, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeInternal, "Failed to create request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	s.setAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.FromContext(ctx.Err(), "Content store request aborted")
		}
		return nil, utils.WrapError(utils.ErrCodeStoreUnavailable, "Content store unreachable", err)
	}
	return resp, nil
}

// setAuth applies bearer or basic credentials, bearer first
func (s *HTTPStore) setAuth(req *http.Request) {
	switch {
	case s.config.AuthToken != "":
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	case s.config.ProjectID != "":
		req.SetBasicAuth(s.config.ProjectID, s.config.ProjectSecret)
	}
}

// statusError classifies a non-200 reply
func (s *HTTPStore) statusError(resp *http.Response, id string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr apiError
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	s.logger.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"content_id": id,
		"message":    message,
	}).Warn("Content store request failed")

	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, message)
	if id != "" && (resp.StatusCode == http.StatusNotFound || isResolutionFailure(message)) {
		return utils.NewAppError(utils.ErrCodeNotFound, "Content not found", detail)
	}
	return utils.NewAppError(utils.ErrCodeStoreUnavailable, "Content store request failed", detail)
}

// isResolutionFailure recognizes the IPFS API's unknown or invalid id messages
func isResolutionFailure(message string) bool {
	message = strings.ToLower(message)
	for _, marker := range []string{"not found", "invalid path", "invalid cid", "failed to resolve", "no link named", "is a directory"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func (s *HTTPStore) record(operation string, err error, start time.Time) {
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordContentOperation(operation, metrics.StatusLabel(err), time.Since(start))
	}
}

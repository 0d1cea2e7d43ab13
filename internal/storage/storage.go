package storage

import (
	"context"
	"time"
)

// ContentCache persists content-addressed bodies and the local write history.
// Cached bodies never expire: a content id always names the same bytes.
type ContentCache interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Content operations
	GetContent(ctx context.Context, contentID string) ([]byte, bool, error)
	PutContent(ctx context.Context, contentID string, body []byte) error

	// Write history
	SaveSubmission(ctx context.Context, submission *Submission) error
	GetSubmissions(ctx context.Context, campaignID string, limit int) ([]*Submission, error)

	GetStats(ctx context.Context) (*Stats, error)
}

// Submission statuses
const (
	SubmissionConfirmed = "confirmed"
	SubmissionFailed    = "failed"
	SubmissionRejected  = "rejected"
)

// Submission is one contract write attempted from this dashboard
type Submission struct {
	ID         string    `json:"id" db:"id"`
	Method     string    `json:"method" db:"method"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	ContentID  string    `json:"content_id,omitempty" db:"content_id"`
	TxHash     string    `json:"tx_hash,omitempty" db:"tx_hash"`
	Status     string    `json:"status" db:"status"`
	Error      string    `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Stats summarizes the cache contents
type Stats struct {
	CachedBodies int64 `json:"cached_bodies"`
	CachedBytes  int64 `json:"cached_bytes"`
	Submissions  int64 `json:"submissions"`
}

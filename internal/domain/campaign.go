package domain

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	// CampaignPaused is a valid stored status reserved for a future
	// pause/resume feature; nothing transitions into it yet.
	CampaignPaused CampaignStatus = "paused"
)

// Recipient is one entry of a campaign's recipient list. Phone numbers are
// normalized to +<10-15 digits> before they reach the domain layer.
type Recipient struct {
	Name        string `db:"name" json:"name"`
	PhoneNumber string `db:"phone_number" json:"phoneNumber"`
}

type Campaign struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Template    string         `db:"template" json:"template"`
	ImageURL    *string        `db:"image_url" json:"imageUrl,omitempty"`
	ImagePath   *string        `db:"image_path" json:"imagePath,omitempty"`
	Status      CampaignStatus `db:"status" json:"status"`
	TotalCount  int            `db:"total_count" json:"totalCount"`
	SentCount   int            `db:"sent_count" json:"sentCount"`
	FailedCount int            `db:"failed_count" json:"failedCount"`
	StartedAt   *time.Time     `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`

	// Recipients are stored in their own table and loaded on demand,
	// ordered by upload position.
	Recipients []Recipient `db:"-" json:"recipients,omitempty"`
}

// Attachment resolves a campaign's stored image reference for sending.
func (c *Campaign) Attachment() *Attachment {
	if c.ImagePath == nil || *c.ImagePath == "" {
		return nil
	}
	return &Attachment{Path: *c.ImagePath, MimeType: "image/jpeg"}
}

type Attachment struct {
	Path     string
	MimeType string
}

type MessageLogStatus string

const (
	LogPending MessageLogStatus = "pending"
	LogSent    MessageLogStatus = "sent"
	LogFailed  MessageLogStatus = "failed"
	// Delivered and read are reserved for provider delivery receipts;
	// the dispatcher never writes them.
	LogDelivered MessageLogStatus = "delivered"
	LogRead      MessageLogStatus = "read"
)

type MessageLog struct {
	ID                int64            `db:"id" json:"id"`
	CampaignID        int64            `db:"campaign_id" json:"campaignId"`
	RecipientName     string           `db:"recipient_name" json:"recipientName"`
	RecipientPhone    string           `db:"recipient_phone" json:"recipientPhone"`
	PersonalizedBody  string           `db:"personalized_body" json:"personalizedBody"`
	Status            MessageLogStatus `db:"status" json:"status"`
	ProviderMessageID *string          `db:"provider_message_id" json:"providerMessageId,omitempty"`
	ErrorMessage      *string          `db:"error_message" json:"errorMessage,omitempty"`
	RetryCount        int              `db:"retry_count" json:"retryCount"`
	SentAt            *time.Time       `db:"sent_at" json:"sentAt,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
}

// SendOutcome is the normalized result of one provider send attempt.
// Provider-side rejections and transport faults both surface here as
// Success=false; the adapter never returns a Go error for them.
type SendOutcome struct {
	Success      bool
	MessageID    string
	ErrorMessage string
}

type SentMessageCache struct {
	ProviderMessageID string    `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

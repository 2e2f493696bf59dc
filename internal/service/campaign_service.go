package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/internal/template"
)

var (
	ErrCampaignSending = errors.New("cannot delete campaign that is currently sending")
	// ErrInvalidCampaign marks caller input errors so the HTTP layer can
	// distinguish them from store failures.
	ErrInvalidCampaign = errors.New("invalid campaign")
)

// Small internal interfaces so we can test without touching real DB/Redis.
type campaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	GetAll(ctx context.Context, status *domain.CampaignStatus, page, pageSize int) ([]domain.Campaign, int64, error)
	Delete(ctx context.Context, id int64) error
}

type messageLogRepository interface {
	GetByCampaign(ctx context.Context, campaignID int64, page, pageSize int) ([]domain.MessageLog, int64, error)
	GetStats(ctx context.Context, campaignID int64) (pending, sent, failed int64, err error)
}

// SentCacheReader is optional; a nil value reports caching as unavailable.
type SentCacheReader interface {
	GetCachedSentMessages(ctx context.Context, campaignID int64) (map[int64]*domain.SentMessageCache, error)
}

type CampaignService struct {
	campaigns campaignRepository
	logs      messageLogRepository
	cache     SentCacheReader
}

func NewCampaignService(
	campaigns campaignRepository,
	logs messageLogRepository,
	cache SentCacheReader,
) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		logs:      logs,
		cache:     cache,
	}
}

// Create validates the template and recipient list and stores the campaign
// as a draft. The recipient list is fixed from this point on.
func (s *CampaignService) Create(
	ctx context.Context,
	name, messageTemplate string,
	recipients []domain.Recipient,
	imageURL, imagePath *string,
) (*domain.Campaign, error) {
	if validation := template.Validate(messageTemplate); !validation.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCampaign, validation.Message)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: recipients list cannot be empty", ErrInvalidCampaign)
	}

	for i, r := range recipients {
		if r.Name == "" || r.PhoneNumber == "" {
			return nil, fmt.Errorf("%w: recipient %d is missing a name or phone number", ErrInvalidCampaign, i+1)
		}
	}

	campaign := &domain.Campaign{
		Name:       name,
		Template:   messageTemplate,
		ImageURL:   imageURL,
		ImagePath:  imagePath,
		Status:     domain.CampaignDraft,
		TotalCount: len(recipients),
		Recipients: recipients,
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	return campaign, nil
}

func (s *CampaignService) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

func (s *CampaignService) GetAll(
	ctx context.Context,
	status *domain.CampaignStatus,
	page, pageSize int,
) ([]domain.Campaign, int64, error) {
	return s.campaigns.GetAll(ctx, status, page, pageSize)
}

// Delete removes a campaign and its logs. Campaigns mid-dispatch are
// refused; the run loop would keep writing to deleted rows.
func (s *CampaignService) Delete(ctx context.Context, id int64) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, nil
	}

	if campaign.Status == domain.CampaignSending {
		return nil, ErrCampaignSending
	}

	if err := s.campaigns.Delete(ctx, id); err != nil {
		return nil, err
	}

	return campaign, nil
}

func (s *CampaignService) GetLogs(
	ctx context.Context,
	campaignID int64,
	page, pageSize int,
) ([]domain.MessageLog, int64, error) {
	return s.logs.GetByCampaign(ctx, campaignID, page, pageSize)
}

func (s *CampaignService) GetStats(ctx context.Context, campaignID int64) (pending, sent, failed int64, err error) {
	return s.logs.GetStats(ctx, campaignID)
}

func (s *CampaignService) GetCachedSentMessages(ctx context.Context, campaignID int64) (map[int64]*domain.SentMessageCache, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	return s.cache.GetCachedSentMessages(ctx, campaignID)
}

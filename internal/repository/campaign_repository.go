package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
)

// CampaignRepository owns the campaigns and campaign_recipients tables. The
// recipient list is fixed at creation; only status, counters and timestamps
// change afterwards.
type CampaignRepository struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts the campaign and its recipient list in one transaction.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO campaigns (name, template, image_url, image_path, status, total_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, c.Name, c.Template, c.ImageURL, c.ImagePath, c.Status, c.TotalCount)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i, recipient := range c.Recipients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_recipients (campaign_id, position, name, phone_number)
			VALUES (?, ?, ?, ?)
		`, id, i, recipient.Name, recipient.PhoneNumber)
		if err != nil {
			return fmt.Errorf("failed to insert recipient %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit campaign: %w", err)
	}

	c.ID = id
	return nil
}

// GetByID loads a campaign with its recipients in upload order. Returns
// (nil, nil) when the campaign does not exist.
func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.GetContext(ctx, &campaign, `
		SELECT id, name, template, image_url, image_path, status,
		       total_count, sent_count, failed_count,
		       started_at, completed_at, created_at, updated_at
		FROM campaigns
		WHERE id = ?
	`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	if err := r.db.SelectContext(ctx, &campaign.Recipients, `
		SELECT name, phone_number
		FROM campaign_recipients
		WHERE campaign_id = ?
		ORDER BY position ASC
	`, id); err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}

	return &campaign, nil
}

// GetAll lists campaigns newest first, optionally filtered by status.
// Recipients are not loaded here.
func (r *CampaignRepository) GetAll(
	ctx context.Context,
	status *domain.CampaignStatus,
	page, pageSize int,
) ([]domain.Campaign, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var campaigns []domain.Campaign

	if status != nil {
		if err := r.db.GetContext(ctx, &totalCount,
			"SELECT COUNT(*) FROM campaigns WHERE status = ?", *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
		}

		if err := r.db.SelectContext(ctx, &campaigns, `
			SELECT id, name, template, image_url, image_path, status,
			       total_count, sent_count, failed_count,
			       started_at, completed_at, created_at, updated_at
			FROM campaigns
			WHERE status = ?
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get campaigns: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM campaigns"); err != nil {
			return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
		}

		if err := r.db.SelectContext(ctx, &campaigns, `
			SELECT id, name, template, image_url, image_path, status,
			       total_count, sent_count, failed_count,
			       started_at, completed_at, created_at, updated_at
			FROM campaigns
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get campaigns: %w", err)
		}
	}

	return campaigns, totalCount, nil
}

// MarkSending claims the campaign for a dispatch run and resets its progress;
// a re-started campaign counts from zero again.
func (r *CampaignRepository) MarkSending(ctx context.Context, id int64, startedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending', started_at = ?, sent_count = 0, failed_count = 0,
		    completed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign as sending: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no campaign found with id %d", id)
	}

	return nil
}

func (r *CampaignRepository) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'completed', completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign as completed: %w", err)
	}

	return nil
}

func (r *CampaignRepository) MarkFailed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'failed', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign as failed: %w", err)
	}

	return nil
}

// UpdateCounters persists the run's progress counters. Called after every
// processed message so a crash mid-run leaves accurate partial progress.
func (r *CampaignRepository) UpdateCounters(ctx context.Context, id int64, sentCount, failedCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = ?, failed_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, sentCount, failedCount, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign counters: %w", err)
	}

	return nil
}

// Delete removes the campaign together with its recipients and message logs.
func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM message_logs WHERE campaign_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete message logs: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM campaign_recipients WHERE campaign_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete recipients: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no campaign found with id %d", id)
	}

	return tx.Commit()
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
)

type MessageLogRepository struct {
	db *sqlx.DB
}

func NewMessageLogRepository(db *sqlx.DB) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

// BulkCreate inserts one pending log per recipient in a single transaction,
// preserving slice order. Either all logs exist afterwards or none do.
func (r *MessageLogRepository) BulkCreate(ctx context.Context, logs []domain.MessageLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message_logs
			(campaign_id, recipient_name, recipient_phone, personalized_body, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for i, log := range logs {
		if _, err := stmt.ExecContext(ctx,
			log.CampaignID, log.RecipientName, log.RecipientPhone,
			log.PersonalizedBody, log.Status, log.RetryCount,
		); err != nil {
			return fmt.Errorf("failed to insert message log %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message logs: %w", err)
	}

	return nil
}

// DeleteByCampaign removes all of a campaign's message logs. Used when a
// re-started campaign supersedes its previous run.
func (r *MessageLogRepository) DeleteByCampaign(ctx context.Context, campaignID int64) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM message_logs WHERE campaign_id = ?", campaignID); err != nil {
		return fmt.Errorf("failed to delete message logs: %w", err)
	}

	return nil
}

// GetPending returns the campaign's pending logs in creation order, which is
// the recipient upload order.
func (r *MessageLogRepository) GetPending(ctx context.Context, campaignID int64) ([]domain.MessageLog, error) {
	var logs []domain.MessageLog
	if err := r.db.SelectContext(ctx, &logs, `
		SELECT id, campaign_id, recipient_name, recipient_phone, personalized_body,
		       status, provider_message_id, error_message, retry_count, sent_at,
		       created_at, updated_at
		FROM message_logs
		WHERE campaign_id = ? AND status = 'pending'
		ORDER BY id ASC
	`, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get pending message logs: %w", err)
	}

	return logs, nil
}

func (r *MessageLogRepository) MarkAsSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE message_logs
		SET status = 'sent', provider_message_id = ?, sent_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, providerMessageID, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark message log as sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message log found with id %d", id)
	}

	return nil
}

func (r *MessageLogRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE message_logs
		SET status = 'failed', error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to mark message log as failed: %w", err)
	}

	return nil
}

// GetByCampaign lists a campaign's logs newest first.
func (r *MessageLogRepository) GetByCampaign(
	ctx context.Context,
	campaignID int64,
	page, pageSize int,
) ([]domain.MessageLog, int64, error) {
	offset := (page - 1) * pageSize

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount,
		"SELECT COUNT(*) FROM message_logs WHERE campaign_id = ?", campaignID); err != nil {
		return nil, 0, fmt.Errorf("failed to count message logs: %w", err)
	}

	var logs []domain.MessageLog
	if err := r.db.SelectContext(ctx, &logs, `
		SELECT id, campaign_id, recipient_name, recipient_phone, personalized_body,
		       status, provider_message_id, error_message, retry_count, sent_at,
		       created_at, updated_at
		FROM message_logs
		WHERE campaign_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, campaignID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to get message logs: %w", err)
	}

	return logs, totalCount, nil
}

// GetStats returns the campaign's log counts by status.
func (r *MessageLogRepository) GetStats(ctx context.Context, campaignID int64) (pending, sent, failed int64, err error) {
	var stats struct {
		Pending int64 `db:"pending"`
		Sent    int64 `db:"sent"`
		Failed  int64 `db:"failed"`
	}

	if err := r.db.GetContext(ctx, &stats, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed
		FROM message_logs
		WHERE campaign_id = ?
	`, campaignID); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get message log stats: %w", err)
	}

	return stats.Pending, stats.Sent, stats.Failed, nil
}

// Package dispatch drives campaign send runs: one goroutine per started
// campaign walks the campaign's pending message logs in creation order,
// sends each through the provider with a fixed delay in between, and
// persists log state and campaign counters after every message.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/internal/template"
	"github.com/okandemir/whatsapp-campaign-service/pkg/logger"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrAlreadyRunning   = errors.New("campaign is already being processed")
)

// Consumer-side interfaces so the dispatcher can be tested with fakes.

type campaignStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	MarkSending(ctx context.Context, id int64, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id int64, completedAt time.Time) error
	MarkFailed(ctx context.Context, id int64) error
	UpdateCounters(ctx context.Context, id int64, sentCount, failedCount int) error
}

type logStore interface {
	BulkCreate(ctx context.Context, logs []domain.MessageLog) error
	DeleteByCampaign(ctx context.Context, campaignID int64) error
	GetPending(ctx context.Context, campaignID int64) ([]domain.MessageLog, error)
	MarkAsSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
}

type messageSender interface {
	Send(ctx context.Context, phoneNumber, body string, attachment *domain.Attachment) domain.SendOutcome
}

// SentCache is optional; a nil value disables caching. Exported so main can
// pass a properly nil interface when Redis is unavailable.
type SentCache interface {
	CacheSentMessage(ctx context.Context, campaignID, logID int64, providerMessageID string, sentAt time.Time) error
}

// ActiveRun is a point-in-time view of one in-flight campaign run.
type ActiveRun struct {
	CampaignID  int64     `json:"campaignId"`
	Name        string    `json:"name"`
	SentCount   int       `json:"sentCount"`
	FailedCount int       `json:"failedCount"`
	TotalCount  int       `json:"totalCount"`
	StartedAt   time.Time `json:"startedAt"`
}

type EngineStatus struct {
	Busy            bool        `json:"busy"`
	ActiveCampaigns []ActiveRun `json:"activeCampaigns"`
}

type runState struct {
	name      string
	total     int
	sent      int
	failed    int
	startedAt time.Time
}

// Dispatcher owns the run registry: one entry per campaign currently being
// dispatched, created on Start and removed when the run reaches a terminal
// status. The registry is the single-flight guard, keyed by campaign id so
// unrelated campaigns dispatch concurrently while one campaign can never be
// double-started.
type Dispatcher struct {
	campaigns campaignStore
	logs      logStore
	sender    messageSender
	cache     SentCache // nil disables caching

	messageDelay time.Duration

	mu   sync.RWMutex
	runs map[int64]*runState
	wg   sync.WaitGroup
}

func NewDispatcher(
	campaigns campaignStore,
	logs logStore,
	sender messageSender,
	cache SentCache,
	messageDelay time.Duration,
) *Dispatcher {
	return &Dispatcher{
		campaigns:    campaigns,
		logs:         logs,
		sender:       sender,
		cache:        cache,
		messageDelay: messageDelay,
		runs:         make(map[int64]*runState),
	}
}

// Start begins a dispatch run for the campaign and returns as soon as the
// run is accepted; the send loop executes on its own goroutine. The given
// context must outlive the HTTP request that triggered the start.
func (d *Dispatcher) Start(ctx context.Context, campaignID int64) error {
	campaign, err := d.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}

	if err := d.claim(campaign); err != nil {
		return err
	}

	startedAt := time.Now()
	if err := d.campaigns.MarkSending(ctx, campaign.ID, startedAt); err != nil {
		d.release(campaign.ID)
		return fmt.Errorf("failed to mark campaign as sending: %w", err)
	}

	// A re-start supersedes any previous run of the campaign: the old logs
	// are removed and the counters were reset by MarkSending, so a finished
	// campaign that is started again ends with sent+failed == total, not an
	// accumulated sum across runs.
	pending, err := d.buildLogs(campaign)
	if err == nil {
		err = d.logs.DeleteByCampaign(ctx, campaign.ID)
	}
	if err == nil {
		// All logs must exist before any send attempt.
		err = d.logs.BulkCreate(ctx, pending)
	}
	if err != nil {
		// The campaign was already flipped to sending; surface the
		// inconsistency as a run-fatal error instead of leaving it silent.
		if markErr := d.campaigns.MarkFailed(ctx, campaign.ID); markErr != nil {
			logger.Errorf("Failed to mark campaign %d as failed: %v", campaign.ID, markErr)
		}
		d.release(campaign.ID)
		return fmt.Errorf("failed to create message logs: %w", err)
	}

	logger.Infof("Campaign %d accepted for dispatch (%d recipients)", campaign.ID, campaign.TotalCount)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, campaign)
	}()

	return nil
}

// Status snapshots the currently active runs.
func (d *Dispatcher) Status() EngineStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	active := make([]ActiveRun, 0, len(d.runs))
	for id, rs := range d.runs {
		active = append(active, ActiveRun{
			CampaignID:  id,
			Name:        rs.name,
			SentCount:   rs.sent,
			FailedCount: rs.failed,
			TotalCount:  rs.total,
			StartedAt:   rs.startedAt,
		})
	}

	sort.Slice(active, func(i, j int) bool { return active[i].CampaignID < active[j].CampaignID })

	return EngineStatus{
		Busy:            len(active) > 0,
		ActiveCampaigns: active,
	}
}

// IsRunning reports whether a run is in flight for the campaign.
func (d *Dispatcher) IsRunning(campaignID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.runs[campaignID]
	return ok
}

// Wait blocks until all in-flight runs have finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) claim(c *domain.Campaign) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.runs[c.ID]; ok {
		return ErrAlreadyRunning
	}
	// A stored sending status without a registry entry means another process
	// (or a crashed run) holds the campaign; refuse rather than double-send.
	if c.Status == domain.CampaignSending {
		return ErrAlreadyRunning
	}

	d.runs[c.ID] = &runState{
		name:      c.Name,
		total:     c.TotalCount,
		startedAt: time.Now(),
	}

	return nil
}

func (d *Dispatcher) release(campaignID int64) {
	d.mu.Lock()
	delete(d.runs, campaignID)
	d.mu.Unlock()
}

func (d *Dispatcher) buildLogs(c *domain.Campaign) ([]domain.MessageLog, error) {
	logs := make([]domain.MessageLog, 0, len(c.Recipients))
	for _, recipient := range c.Recipients {
		body, err := template.Personalize(c.Template, recipient.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to personalize message for %q: %w", recipient.Name, err)
		}

		logs = append(logs, domain.MessageLog{
			CampaignID:       c.ID,
			RecipientName:    recipient.Name,
			RecipientPhone:   recipient.PhoneNumber,
			PersonalizedBody: body,
			Status:           domain.LogPending,
		})
	}

	return logs, nil
}

func (d *Dispatcher) run(ctx context.Context, campaign *domain.Campaign) {
	defer d.release(campaign.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Dispatch run for campaign %d panicked: %v", campaign.ID, r)
			if err := d.campaigns.MarkFailed(context.Background(), campaign.ID); err != nil {
				logger.Errorf("Failed to mark campaign %d as failed: %v", campaign.ID, err)
			}
		}
	}()

	if err := d.process(ctx, campaign); err != nil {
		logger.Errorf("Dispatch run for campaign %d failed: %v", campaign.ID, err)
		if markErr := d.campaigns.MarkFailed(context.Background(), campaign.ID); markErr != nil {
			logger.Errorf("Failed to mark campaign %d as failed: %v", campaign.ID, markErr)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, campaign *domain.Campaign) error {
	pending, err := d.logs.GetPending(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch pending logs: %w", err)
	}

	logger.Infof("Processing %d messages for campaign %d", len(pending), campaign.ID)

	attachment := campaign.Attachment()
	sent, failed := 0, 0

	for i := range pending {
		log := &pending[i]

		outcome := d.sender.Send(ctx, log.RecipientPhone, log.PersonalizedBody, attachment)

		if outcome.Success {
			sentAt := time.Now()
			if err := d.logs.MarkAsSent(ctx, log.ID, outcome.MessageID, sentAt); err != nil {
				// The recipient received the message; a failed status write
				// must not reclassify the delivery.
				logger.Errorf("Failed to mark log %d as sent: %v", log.ID, err)
			}
			sent++
			if d.cache != nil {
				if err := d.cache.CacheSentMessage(ctx, campaign.ID, log.ID, outcome.MessageID, sentAt); err != nil {
					logger.Warnf("Failed to cache sent log %d: %v", log.ID, err)
				}
			}
		} else {
			logger.Warnf("Send to %s failed for campaign %d: %s", log.RecipientPhone, campaign.ID, outcome.ErrorMessage)
			failed++
			if err := d.logs.MarkAsFailed(ctx, log.ID, outcome.ErrorMessage); err != nil {
				logger.Errorf("Failed to mark log %d as failed: %v", log.ID, err)
			}
		}

		if err := d.campaigns.UpdateCounters(ctx, campaign.ID, sent, failed); err != nil {
			logger.Errorf("Failed to update counters for campaign %d: %v", campaign.ID, err)
		}

		d.updateRun(campaign.ID, sent, failed)

		// Fixed wait after every message, the last one included.
		if err := d.wait(ctx); err != nil {
			return fmt.Errorf("dispatch interrupted: %w", err)
		}
	}

	if err := d.campaigns.MarkCompleted(ctx, campaign.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark campaign as completed: %w", err)
	}

	logger.Infof("Campaign %d completed: %d sent, %d failed", campaign.ID, sent, failed)
	return nil
}

func (d *Dispatcher) updateRun(campaignID int64, sent, failed int) {
	d.mu.Lock()
	if rs, ok := d.runs[campaignID]; ok {
		rs.sent = sent
		rs.failed = failed
	}
	d.mu.Unlock()
}

func (d *Dispatcher) wait(ctx context.Context) error {
	timer := time.NewTimer(d.messageDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/okandemir/whatsapp-campaign-service/environments"
	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
	"github.com/okandemir/whatsapp-campaign-service/pkg/logger"
)

// Client caches sent message logs so recently dispatched campaigns can be
// inspected without hitting MySQL. Keys expire after a day; the message_logs
// table stays the source of truth.
type Client struct {
	client valkey.Client
}

const sentMessageTTL = 24 * time.Hour

func sentMessageKey(campaignID, logID int64) string {
	return fmt.Sprintf("campaign:%d:sent:%d", campaignID, logID)
}

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

func (c *Client) CacheSentMessage(ctx context.Context, campaignID, logID int64, providerMessageID string, sentAt time.Time) error {
	cache := domain.SentMessageCache{
		ProviderMessageID: providerMessageID,
		SentAt:            sentAt,
	}

	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := sentMessageKey(campaignID, logID)

	err = c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(data)).Ex(sentMessageTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache sent message: %w", err)
	}

	logger.Debugf("Cached sent log %d for campaign %d", logID, campaignID)

	return nil
}

// GetCachedSentMessages returns one campaign's cached sends keyed by message
// log id.
func (c *Client) GetCachedSentMessages(ctx context.Context, campaignID int64) (map[int64]*domain.SentMessageCache, error) {
	pattern := fmt.Sprintf("campaign:%d:sent:*", campaignID)

	var keys []string
	var cursor uint64
	for {
		result := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build())
		if result.Error() != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", result.Error())
		}

		scanResult, err := result.AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to parse scan result: %w", err)
		}

		keys = append(keys, scanResult.Elements...)
		cursor = scanResult.Cursor

		if cursor == 0 {
			break
		}
	}

	cached := make(map[int64]*domain.SentMessageCache)

	for _, key := range keys {
		getResult := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
		if getResult.Error() != nil {
			continue
		}

		data, err := getResult.ToString()
		if err != nil {
			continue
		}

		var cache domain.SentMessageCache
		if err := json.Unmarshal([]byte(data), &cache); err != nil {
			continue
		}

		var cid, logID int64
		if _, err := fmt.Sscanf(key, "campaign:%d:sent:%d", &cid, &logID); err != nil {
			logger.Warnf("failed to parse log id from redis key %q: %v", key, err)
			continue
		}

		cached[logID] = &cache
	}

	return cached, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

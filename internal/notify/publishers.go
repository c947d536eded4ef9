package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/repository"
)

// DefaultChannel はRedisPublisherの既定チャンネル。
const DefaultChannel = "jobgate:events"

// payload はStore以外の配信先で使うイベントのJSON表現。
type payload struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	UserID     string         `json:"user_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func encode(e model.Event) ([]byte, error) {
	return json.Marshal(payload{
		ID:         e.ID,
		Name:       e.Name,
		UserID:     e.UserID,
		RequestID:  e.RequestID,
		Properties: e.Properties,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// StorePublisher はイベントをeventsテーブルに記録する。
type StorePublisher struct {
	repo repository.EventRepository
}

// NewStorePublisher は新しいStorePublisherを生成する。
func NewStorePublisher(repo repository.EventRepository) *StorePublisher {
	return &StorePublisher{repo: repo}
}

// Name はPublisherを実装する。
func (p *StorePublisher) Name() string { return "store" }

// Publish はPublisherを実装する。
func (p *StorePublisher) Publish(ctx context.Context, e model.Event) error {
	if err := p.repo.Create(ctx, &e); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

// RedisPublisher はイベントをRedis Pub/Subチャンネルへ送信する。
type RedisPublisher struct {
	rdb     redis.Cmdable
	channel string
}

// NewRedisPublisher は新しいRedisPublisherを生成する。channelが空の場合はDefaultChannelを使う。
func NewRedisPublisher(rdb redis.Cmdable, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Name はPublisherを実装する。
func (p *RedisPublisher) Name() string { return "redis" }

// Publish はPublisherを実装する。
func (p *RedisPublisher) Publish(ctx context.Context, e model.Event) error {
	body, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// WebhookPublisher はイベントをJSONで外部URLへPOSTする。
// クライアントにはSSRF対策済みのものを渡す。
// 429/5xxと通信エラーは指数バックオフで再送し、それ以外の4xxは即座に諦める。
type WebhookPublisher struct {
	client   *http.Client
	url      string
	attempts int
	wait     func(ctx context.Context, d time.Duration) error
}

// NewWebhookPublisher は新しいWebhookPublisherを生成する。
func NewWebhookPublisher(client *http.Client, url string) *WebhookPublisher {
	return &WebhookPublisher{
		client:   client,
		url:      url,
		attempts: DefaultWebhookAttempts,
		wait:     sleepContext,
	}
}

// Name はPublisherを実装する。
func (p *WebhookPublisher) Name() string { return "webhook" }

// Publish はPublisherを実装する。2xx以外の応答はエラーとする。
func (p *WebhookPublisher) Publish(ctx context.Context, e model.Event) error {
	body, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			if err := p.wait(ctx, RetryDelay(attempt-1)); err != nil {
				return fmt.Errorf("webhook retry aborted after %d attempts: %w", attempt, errors.Join(lastErr, err))
			}
		}

		outcome, err := p.send(ctx, e, body)
		if outcome == DeliveryDelivered {
			return nil
		}
		lastErr = err
		if outcome == DeliveryDrop {
			return err
		}
	}
	return fmt.Errorf("webhook gave up after %d attempts: %w", p.attempts, lastErr)
}

// send は1回分のPOSTを行い、結果を分類して返す。
func (p *WebhookPublisher) send(ctx context.Context, e model.Event, body []byte) (DeliveryOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return DeliveryDrop, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "jobgate-notify/1.0")
	req.Header.Set("X-Event-ID", e.ID)
	if e.RequestID != "" {
		req.Header.Set("X-Request-ID", e.RequestID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return DeliveryRetry, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	outcome := ClassifyWebhookStatus(resp.StatusCode)
	if outcome != DeliveryDelivered {
		return outcome, fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return outcome, nil
}

var (
	_ Publisher = (*StorePublisher)(nil)
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (*WebhookPublisher)(nil)
)

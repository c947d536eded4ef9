package notify

import (
	"context"
	"time"
)

// DeliveryOutcome はWebhook応答のステータスコードに基づく配信結果の分類。
type DeliveryOutcome int

const (
	// DeliveryDelivered は配信成功（2xx）。
	DeliveryDelivered DeliveryOutcome = iota
	// DeliveryRetry は再送が必要な結果（429/5xx、通信エラー）。
	DeliveryRetry
	// DeliveryDrop は再送しても成功しない結果（429以外の4xx、3xx）。
	DeliveryDrop
)

const (
	// DefaultWebhookAttempts は1イベントあたりの最大送信回数。
	DefaultWebhookAttempts = 3
	// initialRetryDelay は指数バックオフの初回遅延。
	initialRetryDelay = 200 * time.Millisecond
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 2 * time.Second
)

// ClassifyWebhookStatus はHTTPステータスコードを配信結果に分類する。
func ClassifyWebhookStatus(statusCode int) DeliveryOutcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return DeliveryDelivered
	case statusCode == 429:
		return DeliveryRetry
	case statusCode >= 500:
		return DeliveryRetry
	default:
		return DeliveryDrop
	}
}

// RetryDelay は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大2秒。
func RetryDelay(failures int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// sleepContext はdだけ待機する。ctxが先に終了した場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

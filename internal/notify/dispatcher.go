// Package notify はドメインイベントを非同期・ベストエフォートで配信する。
//
// Dispatcherは通知の唯一の境界であり、配信の失敗や遅延は呼び出し元の処理結果に
// 影響しない。キューが満杯の場合やClose後のイベントは破棄される。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobgate/internal/logger"
	"github.com/hitoshi/jobgate/internal/metrics"
	"github.com/hitoshi/jobgate/internal/model"
)

// DefaultQueueSize はキューの既定サイズ。
const DefaultQueueSize = 256

// DefaultPublishTimeout はPublisher1件ごとの配信タイムアウトの既定値。
const DefaultPublishTimeout = 5 * time.Second

// Notifier はドメインイベントの通知インターフェース。
// 実装は呼び出し元をブロックしてはならず、エラーも返さない。
type Notifier interface {
	Notify(ctx context.Context, event model.Event)
}

// Publisher はイベントの配信先。
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event model.Event) error
}

// Dispatcher はイベントをキューに積み、バックグラウンドで各Publisherへ配信する。
type Dispatcher struct {
	publishers []Publisher
	queue      chan model.Event
	timeout    time.Duration
	metrics    metrics.MetricsCollector
	now        func() time.Time

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// Option はDispatcherの設定関数。
type Option func(*Dispatcher)

// WithQueueSize はキューサイズを設定する。
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan model.Event, n)
		}
	}
}

// WithPublishTimeout はPublisher1件ごとの配信タイムアウトを設定する。
func WithPublishTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMetrics はメトリクス収集を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDispatcher は新しいDispatcherを生成する。配信はStartで開始する。
func NewDispatcher(publishers []Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		publishers: publishers,
		queue:      make(chan model.Event, DefaultQueueSize),
		timeout:    DefaultPublishTimeout,
		metrics:    metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start は配信ゴルーチンを起動する。2回目以降の呼び出しは何もしない。
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.queue {
			d.dispatch(event)
		}
	}()
}

// Notify はイベントを配信キューに積む。ブロックせず、エラーも返さない。
// ID・リクエストID・作成日時が未設定の場合はここで補完する。
func (d *Dispatcher) Notify(ctx context.Context, event model.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.RequestID == "" {
		event.RequestID = logger.RequestIDFromContext(ctx)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.WarnContext(ctx, "イベントを破棄しました（停止済み）", slog.String("event", event.Name))
		return
	}

	select {
	case d.queue <- event:
	default:
		d.metrics.RecordNotifyFailure("queue")
		slog.WarnContext(ctx, "イベントを破棄しました（キュー満杯）", slog.String("event", event.Name))
	}
}

// Close は新規イベントの受け付けを停止し、キューに残ったイベントの配信完了を待つ。
// ctxが先に終了した場合はctx.Err()を返す。
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatch(event model.Event) {
	for _, p := range d.publishers {
		if err := d.publish(p, event); err != nil {
			d.metrics.RecordNotifyFailure(p.Name())
			slog.Warn("イベント配信に失敗しました",
				slog.String("publisher", p.Name()),
				slog.String("event", event.Name),
				slog.String("event_id", event.ID),
				slog.String("request_id", event.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// publish はタイムアウト付きで1件配信する。Publisherのpanicはエラーに変換する。
func (d *Dispatcher) publish(p Publisher, event model.Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()

	return p.Publish(ctx, event)
}

var _ Notifier = (*Dispatcher)(nil)

// Nop は何もしないNotifier。
type Nop struct{}

// Notify はNotifierを実装する。
func (Nop) Notify(context.Context, model.Event) {}

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
)

type EventKind string

const (
	EventOrder    EventKind = "order"
	EventDonation EventKind = "donation"
)

// StatusEvent 已提交的状态变化
type StatusEvent struct {
	Kind    EventKind `json:"kind"`
	ID      uint      `json:"id,omitempty"`
	TradeNo string    `json:"trade_no"`
	UserID  uint      `json:"user_id,omitempty"`
	Status  string    `json:"status"`
	Amount  int64     `json:"amount"`
	At      time.Time `json:"at"`
}

// EventSink 推送通道：websocket、mqtt
type EventSink interface {
	Publish(evt StatusEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, evt StatusEvent)
}

// AsyncNotifier 在协程池中依次投递到各个 sink，失败只记日志，不影响调用方
type AsyncNotifier struct {
	pool  gopool.Pool
	sinks []EventSink
}

func NewAsyncNotifier(size int32, sinks ...EventSink) *AsyncNotifier {
	return &AsyncNotifier{
		pool:  gopool.NewPool("notify_pool", size, gopool.NewConfig()),
		sinks: sinks,
	}
}

func (n *AsyncNotifier) Notify(ctx context.Context, evt StatusEvent) {
	if len(n.sinks) == 0 {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	n.pool.CtxGo(context.WithoutCancel(ctx), func() {
		for _, s := range n.sinks {
			if err := s.Publish(evt); err != nil {
				slog.Warn("publish status event failed", "kind", evt.Kind, "trade_no", evt.TradeNo, "error", err)
			}
		}
	})
}

// NopNotifier 未配置任何通道时使用
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, StatusEvent) {}

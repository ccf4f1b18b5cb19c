package notifier

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"iot-simulator/internal/config"
	"iot-simulator/internal/models"
)

// 待投递告警的队列长度，写满后丢弃新告警
const queueSize = 128

// WebhookNotifier 把新告警 POST 到外部 Webhook
// NotifyAlert 只做非阻塞入队，投递由独立 worker 串行执行，
// 慢速或不可达的接收端不会拖慢告警评估路径
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
	queue  chan models.AlertEvent
	done   chan struct{}
}

// NewWebhookNotifier 创建 Webhook 推送器
func NewWebhookNotifier(cfg config.WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		client: client,
		url:    cfg.URL,
		logger: logger,
		queue:  make(chan models.AlertEvent, queueSize),
		done:   make(chan struct{}),
	}
}

// Start 启动投递 worker，ctx 取消后退出
func (n *WebhookNotifier) Start(ctx context.Context) {
	go n.run(ctx)
}

// Stop 等待 worker 退出，必须在 Start 的 ctx 取消后调用
func (n *WebhookNotifier) Stop() {
	<-n.done
}

// NotifyAlert 入队一条告警通知，队列写满时丢弃并记录
func (n *WebhookNotifier) NotifyAlert(alert models.AlertEvent) {
	select {
	case n.queue <- alert:
	default:
		n.logger.Warn("Webhook queue full, dropping alert",
			zap.String("alert_id", alert.AlertID),
			zap.String("sensor_id", alert.SensorID),
		)
	}
}

func (n *WebhookNotifier) run(ctx context.Context) {
	defer close(n.done)

	n.logger.Info("Webhook notifier started", zap.String("url", n.url))
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Webhook notifier stopped")
			return
		case alert := <-n.queue:
			n.deliver(alert)
		}
	}
}

func (n *WebhookNotifier) deliver(alert models.AlertEvent) {
	resp, err := n.client.R().
		SetBody(alert).
		Post(n.url)

	if err != nil {
		n.logger.Error("Webhook delivery failed",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		return
	}

	if resp.IsError() {
		n.logger.Warn("Webhook returned error status",
			zap.String("alert_id", alert.AlertID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return
	}

	n.logger.Debug("Webhook delivered", zap.String("alert_id", alert.AlertID))
}

package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"SignalProof-Chain/pkg/logger"
)

// WebhookNotifier 以 JSON 形式将告警推送到 HTTP 回调地址，
// 负载同时带有 text 字段，可直接对接 Slack/钉钉 机器人。
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

type webhookPayload struct {
	Text  string `json:"text"`
	Event Event  `json:"event"`
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送告警。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.URL == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("job_id", event.JobID))
		return nil
	}
	body, err := json.Marshal(webhookPayload{
		Text: fmt.Sprintf("[%s] %s 任务 %s (重试 %d/%d): %s",
			event.Severity, event.Code, event.JobID, event.Attempts, event.MaxRetries, event.Message),
		Event: event,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/halcyonlabs/credit-guardian/internal/httputil"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// WebhookSender posts alerts to a Discord- or Slack-style webhook. It is
// registered as a bus listener; delivery failures are logged, never
// propagated.
type WebhookSender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewWebhookSender(webhookURL, botName string) *WebhookSender {
	if botName == "" {
		botName = "CreditGuardian"
	}
	return &WebhookSender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

func (s *WebhookSender) Enabled() bool {
	return s.webhookURL != ""
}

// Listen adapts the sender to the bus.
func (s *WebhookSender) Listen(a models.Alert) {
	s.Send(fmt.Sprintf("[%s] %s %s", strings.ToUpper(string(a.Type)), shortOwner(a.Owner), a.Message))
}

func (s *WebhookSender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	fmt.Printf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		fmt.Printf("[ALERTS] marshal: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		fmt.Printf("[ALERTS] Failed to deliver webhook after retries: %v\n", err)
		return
	}
	resp.Body.Close()
}

func (s *WebhookSender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func shortOwner(owner string) string {
	if len(owner) > 12 {
		return owner[:8] + "…" + owner[len(owner)-4:]
	}
	return owner
}

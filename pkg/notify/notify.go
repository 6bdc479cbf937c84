// Package notify delivers document change notifications to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/folio/pkg/core"
)

const defaultTimeout = 10 * time.Second

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, n core.Notification) error
}

// NopSink drops every notification.
type NopSink struct{}

func (NopSink) Notify(context.Context, core.Notification) error { return nil }

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// WebhookSink posts an adaptive card for each notification.
type WebhookSink struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSink creates a sink posting to cfg.URL.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	u := strings.TrimSpace(cfg.URL)
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", cfg.URL)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSink{url: u, client: client, logger: logger}, nil
}

// Notify posts n. Failures wrap core.ErrNotification; network failures,
// 429 and 5xx responses are also transient.
func (s *WebhookSink) Notify(ctx context.Context, n core.Notification) error {
	body, err := json.Marshal(Card(n))
	if err != nil {
		return core.E(core.KindNotification, "notify", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return core.E(core.KindNotification, "notify", "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if isNetwork(err) {
			return core.E(core.KindNotification, "notify", "", core.Transient("webhook", err))
		}
		return core.E(core.KindNotification, "notify", "", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		s.logger.Debug("notification sent", "kind", n.Kind, "title", n.Title)
		return nil
	}

	err = fmt.Errorf("webhook returned status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		err = core.Transient("webhook", err)
	}
	return core.E(core.KindNotification, "notify", "", err)
}

func isNetwork(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}

var messages = map[core.EventKind]string{
	core.EventCreate:  "New page created: %s",
	core.EventEdit:    "Page updated: %s",
	core.EventMove:    "Page moved: %s",
	core.EventArchive: "Page archived: %s",
	core.EventDelete:  "Page deleted: %s",
}

// Message returns the human-readable line for n.
func Message(n core.Notification) string {
	if format, ok := messages[n.Kind]; ok {
		return fmt.Sprintf(format, n.Title)
	}
	return fmt.Sprintf("Page %s: %s", n.Kind, n.Title)
}

// Card builds the adaptive card message for n. The "View Page" action is
// only present when n carries a link.
func Card(n core.Notification) map[string]any {
	content := map[string]any{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"version": "1.2",
		"type":    "AdaptiveCard",
		"body": []map[string]any{{
			"type":   "TextBlock",
			"text":   Message(n),
			"size":   "Medium",
			"weight": "Bolder",
		}},
	}
	if n.Link != "" && n.Kind != core.EventDelete {
		content["actions"] = []map[string]any{{
			"type":  "Action.OpenUrl",
			"title": "View Page",
			"url":   n.Link,
		}}
	}
	return map[string]any{
		"type": "message",
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content":     content,
		}},
	}
}

// Link builds the absolute URL of a page under siteURL. It returns "" when
// siteURL is empty or not an http(s) URL.
func Link(siteURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return ""
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return base + "/" + strings.Join(segments, "/")
}

var _ Sink = NopSink{}
var _ Sink = (*WebhookSink)(nil)

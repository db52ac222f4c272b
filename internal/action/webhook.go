package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// WebhookAction POSTs the match as JSON to a URL.
type WebhookAction struct {
	client  *fasthttp.Client
	url     string
	timeout time.Duration
}

func NewWebhookAction(client *fasthttp.Client, url string, timeout time.Duration) *WebhookAction {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAction{client: client, url: url, timeout: timeout}
}

func (a *WebhookAction) Kind() string { return "webhook" }

func (a *WebhookAction) Run(ctx context.Context, m Match) error {
	body, err := json.Marshal(NewEvent(m))
	if err != nil {
		return fmt.Errorf("webhook: encode event: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := a.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("webhook: post %s: %w", a.url, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook: %s answered %d: %s", a.url, code, preview(string(resp.Body()), 200))
	}
	return nil
}

// Package webhook delivers analysis notifications to subscriber
// endpoints and classifies the outcome for the retry policy.
package webhook

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxResponseBody bounds how much of the subscriber response is kept.
const maxResponseBody = 1000

// Target is the destination of one delivery attempt.
type Target struct {
	SubscriptionID string
	Endpoint       string
	// AuthType is one of bearer, basic, custom or empty. For custom the
	// token is a literal "Header-Name: value" pair.
	AuthType  string
	AuthToken string
	UserAgent string
}

// Outcome is the classified result of one POST.
type Outcome struct {
	StatusCode   int
	Success      bool
	Retriable    bool
	ResponseBody string
	ErrorMessage string
	DurationMs   int64
}

// Client posts notification payloads to subscribers.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a delivery client with the given request timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "gazeta-webhook/1.0"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Deliver POSTs the JSON body to the target and classifies the result.
// 2xx is success, 5xx and 429 and transport errors are retriable,
// every other status is a permanent failure.
func (c *Client) Deliver(ctx context.Context, target Target, body []byte, attempt int) Outcome {
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{
			ErrorMessage: fmt.Sprintf("build request: %v", err),
			DurationMs:   time.Since(started).Milliseconds(),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(attempt))
	req.Header.Set("X-Webhook-Subscription-Id", target.SubscriptionID)
	applyAuth(req, target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{
			Retriable:    true,
			ErrorMessage: fmt.Sprintf("post: %v", err),
			DurationMs:   time.Since(started).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	out := Outcome{
		StatusCode:   resp.StatusCode,
		ResponseBody: truncateBody(raw),
		DurationMs:   time.Since(started).Milliseconds(),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		out.Success = true
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		out.Retriable = true
		out.ErrorMessage = fmt.Sprintf("subscriber returned %d", resp.StatusCode)
	default:
		out.ErrorMessage = fmt.Sprintf("subscriber rejected with %d", resp.StatusCode)
	}
	return out
}

func applyAuth(req *http.Request, target Target) {
	if target.AuthToken == "" {
		return
	}
	switch target.AuthType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+target.AuthToken)
	case "basic":
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(target.AuthToken)))
	case "custom":
		name, value, ok := strings.Cut(target.AuthToken, ":")
		if ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
}

func truncateBody(raw []byte) string {
	if len(raw) > maxResponseBody {
		return string(raw[:maxResponseBody])
	}
	return string(raw)
}

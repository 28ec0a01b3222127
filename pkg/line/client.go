package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/txn2/factcheck-bot/pkg/metrics"
)

// DefaultAPIBase is the LINE Messaging API host.
const DefaultAPIBase = "https://api.line.me"

const replyPath = "/v2/bot/message/reply"

// maxReplyMessages is the API limit per reply call.
const maxReplyMessages = 5

// ClientConfig configures a ReplyClient.
type ClientConfig struct {
	APIBase     string
	AccessToken string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ReplyClient sends reply messages.
type ReplyClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewReplyClient creates a ReplyClient.
func NewReplyClient(cfg ClientConfig) (*ReplyClient, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("line channel access token is required")
	}
	base := cfg.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}
	return &ReplyClient{
		endpoint:    base + replyPath,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		limiter:     limiter,
	}, nil
}

type replyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

// Reply sends messages in answer to the event that carried replyToken.
func (c *ReplyClient) Reply(ctx context.Context, replyToken string, messages []Message) (err error) {
	defer func() { metrics.ObserveReply(err) }()

	if replyToken == "" {
		return fmt.Errorf("replying: reply token is required")
	}
	if len(messages) == 0 {
		return fmt.Errorf("replying: no messages")
	}
	if len(messages) > maxReplyMessages {
		return fmt.Errorf("replying: %d messages exceeds limit of %d", len(messages), maxReplyMessages)
	}

	body, err := json.Marshal(replyRequest{ReplyToken: replyToken, Messages: messages})
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for reply rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating reply request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("reply request failed: %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

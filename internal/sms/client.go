// Package sms is a Twilio-compatible messaging provider client. It
// implements the dispatcher's MessageSender port.
package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds SMS provider configuration
type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	FromNumber string
	APITimeout time.Duration
}

// Client sends outbound texts through the provider's REST API
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a new SMS client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.APITimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SendText delivers one message to a recipient phone number
func (c *Client) SendText(ctx context.Context, recipient, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountSID)

	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Failed to send SMS", zap.String("to", recipient), zap.Error(err))
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("SMS provider returned failure",
			zap.String("to", recipient),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return fmt.Errorf("SMS provider error: status=%d", resp.StatusCode)
	}

	c.logger.Info("SMS sent", zap.String("to", recipient), zap.Int("body_len", len(body)))
	return nil
}

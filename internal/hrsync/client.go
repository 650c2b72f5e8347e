// Package hrsync pushes confirmed license records to the HR system and
// raises supervisor alerts there. It implements the dispatcher's
// ExternalSync, SupervisorNotifier and SubmissionRequester ports.
package hrsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds HR-system client configuration
type Config struct {
	BaseURL    string
	APIKey     string
	APITimeout time.Duration
}

// Client talks to the HR system's REST API
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a new HR-sync client
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

// SyncLicense upserts a confirmed license record for an employee
func (c *Client) SyncLicense(ctx context.Context, employeeID string, payload map[string]any) error {
	body := map[string]any{
		"employee_id": employeeID,
		"license":     payload,
	}
	if err := c.post(ctx, "/api/v1/licenses/sync", body); err != nil {
		c.logger.Error("License sync failed", zap.String("employee_id", employeeID), zap.Error(err))
		return err
	}
	c.logger.Info("License synced", zap.String("employee_id", employeeID))
	return nil
}

// Notify raises a supervisor alert for an instance
func (c *Client) Notify(ctx context.Context, instanceUID, reason string) error {
	body := map[string]any{
		"instance_uid": instanceUID,
		"reason":       reason,
	}
	if err := c.post(ctx, "/api/v1/alerts/supervisor", body); err != nil {
		c.logger.Error("Supervisor alert failed", zap.String("instance_uid", instanceUID), zap.Error(err))
		return err
	}
	c.logger.Info("Supervisor alerted", zap.String("instance_uid", instanceUID), zap.String("reason", reason))
	return nil
}

// RequestSubmission asks the submission agent to file the prepared
// package with the licensing portal.
func (c *Client) RequestSubmission(ctx context.Context, instanceUID string, payload map[string]any) error {
	body := map[string]any{
		"instance_uid": instanceUID,
		"package":      payload,
	}
	if err := c.post(ctx, "/api/v1/submissions", body); err != nil {
		c.logger.Error("Submission request failed", zap.String("instance_uid", instanceUID), zap.Error(err))
		return err
	}
	c.logger.Info("Submission requested", zap.String("instance_uid", instanceUID))
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(respBody))
	}
	return nil
}

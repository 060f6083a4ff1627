package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// ExtractionRequest is the payload posted to the extraction webhook
type ExtractionRequest struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	UserID       uuid.UUID `json:"user_id"`
	VideoURL     string    `json:"video_url"`
	Platform     string    `json:"platform"`
}

// ExtractionResult is the normalized form of any extraction response
type ExtractionResult struct {
	SubmissionID *uuid.UUID
	JobID        string
	Status       models.SubmissionStatus
	RecipeID     string
	Recipe       *ExtractedRecipe
	Error        string
}

// ExtractionClient talks to the external recipe extraction service
type ExtractionClient interface {
	Submit(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
	Status(ctx context.Context, jobID string) (*ExtractionResult, error)
	FetchRecipe(ctx context.Context, recipeID string) (*ExtractedRecipe, error)
}

// UpstreamError describes a non-2xx answer from the extraction service
type UpstreamError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("extraction %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return types.ErrUpstream
}

const maxUpstreamBody = 2 << 20

// ExtractionClientConfig configures HTTPExtractionClient
type ExtractionClientConfig struct {
	WebhookURL   string
	StatusURL    string
	RecipeURL    string
	APIKey       string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// HTTPExtractionClient implements ExtractionClient over the webhook's HTTP API
type HTTPExtractionClient struct {
	cfg     ExtractionClientConfig
	client  *http.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewExtractionClient creates a new HTTPExtractionClient
func NewExtractionClient(cfg ExtractionClientConfig, m *metrics.Metrics, log *zap.Logger) *HTTPExtractionClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &HTTPExtractionClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		logger:  log.Named("extraction"),
	}
}

// Submit posts a video to the webhook. Submissions are not retried so a
// slow upstream never receives the same video twice.
func (c *HTTPExtractionClient) Submit(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, "submit", http.MethodPost, c.cfg.WebhookURL, payload)
	c.metrics.ExtractionCall("submit", err)
	if err != nil {
		return nil, err
	}

	result, err := ParseExtractionResponse(body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Extraction submitted",
		zap.String("submission_id", req.SubmissionID.String()),
		zap.String("status", string(result.Status)),
		zap.String("job_id", result.JobID),
	)
	return result, nil
}

// Status looks up the state of an asynchronous extraction job
func (c *HTTPExtractionClient) Status(ctx context.Context, jobID string) (*ExtractionResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", types.ErrInvalidInput)
	}
	body, err := c.getWithRetry(ctx, "status", joinURL(c.cfg.StatusURL, jobID))
	c.metrics.ExtractionCall("status", err)
	if err != nil {
		return nil, err
	}

	result, err := ParseExtractionResponse(body)
	if err != nil {
		return nil, err
	}
	if result.JobID == "" {
		result.JobID = jobID
	}
	return result, nil
}

// FetchRecipe loads a finished recipe by the extraction service's ID
func (c *HTTPExtractionClient) FetchRecipe(ctx context.Context, recipeID string) (*ExtractedRecipe, error) {
	if recipeID == "" {
		return nil, fmt.Errorf("%w: recipe id is required", types.ErrInvalidInput)
	}
	body, err := c.getWithRetry(ctx, "recipe", joinURL(c.cfg.RecipeURL, recipeID))
	c.metrics.ExtractionCall("recipe", err)
	if err != nil {
		return nil, err
	}

	result, err := ParseExtractionResponse(body)
	if err != nil {
		return nil, err
	}
	if result.Recipe == nil {
		return nil, fmt.Errorf("%w: recipe %s not present in response", ErrUnrecognizedResponse, recipeID)
	}
	if result.Recipe.ExternalID == "" {
		result.Recipe.ExternalID = recipeID
	}
	return result.Recipe, nil
}

func (c *HTTPExtractionClient) getWithRetry(ctx context.Context, op, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.do(ctx, op, http.MethodGet, endpoint, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.cfg.MaxAttempts {
			break
		}

		c.logger.Warn("Extraction request failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
		}
	}
	return nil, lastErr
}

func (c *HTTPExtractionClient) do(ctx context.Context, op, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", types.ErrUpstream, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s response: %v", types.ErrUpstream, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Operation: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func retryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 500 || upstream.StatusCode == http.StatusTooManyRequests
	}
	return errors.Is(err, types.ErrUpstream)
}

func joinURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(id)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

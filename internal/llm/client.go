package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/metrics"
)

// Config holds predictor service settings.
type Config struct {
	// BaseURL is the predictor service root, e.g. http://llm-service:8000.
	BaseURL string `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client talks to the predictor service. Each collaborator role maps onto a
// named signature endpoint; the service returns the signature's output fields
// as a flat string map.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a predictor service client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   cfg.BaseURL,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type predictRequest struct {
	Inputs map[string]string `json:"inputs"`
}

type predictResponse struct {
	Outputs map[string]string `json:"outputs"`
}

// predict posts the signature inputs and returns the signature outputs.
func (c *Client) predict(ctx context.Context, signature string, inputs map[string]string) (map[string]string, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.PredictorRequests.WithLabelValues(signature, status).Inc()
		metrics.PredictorLatency.WithLabelValues(signature).Observe(time.Since(start).Seconds())
	}()

	buf, err := json.Marshal(predictRequest{Inputs: inputs})
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("marshal %s request: %w", signature, err)
	}

	url := fmt.Sprintf("%s/predict/%s", c.base, signature)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("build %s request: %w", signature, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("predictor %s: %w", signature, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = "error"
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("predictor %s: status %d: %s", signature, resp.StatusCode, string(body))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		status = "error"
		return nil, fmt.Errorf("decode %s response: %w", signature, err)
	}

	c.logger.Debug("Predictor call completed",
		zap.String("signature", signature),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out.Outputs, nil
}

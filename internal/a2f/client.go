package a2f

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL        = "http://localhost:8011"
	DefaultPlayerInstance = "/World/audio2face/Player"
	DefaultLivelinkNode   = "/World/audio2face/StreamLivelink"
	DefaultTimeout        = 30 * time.Second

	pushAudioPath   = "/A2F/Player/PushAudioStream"
	exporterActPath = "/A2F/Exporter/Act"

	// error bodies are truncated to this many bytes
	maxErrorBody = 512
)

// Client provides HTTP access to the Audio2Face streaming player and exporter
type Client struct {
	config     Config
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains Audio2Face client configuration
type Config struct {
	BaseURL        string
	PlayerInstance string
	LivelinkNode   string
	Timeout        time.Duration
}

// PushAudioRequest is the body of a PushAudioStream call
type PushAudioRequest struct {
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate"`
	Instance   string `json:"instance"`
}

// ExporterActRequest is the body of an Exporter/Act call
type ExporterActRequest struct {
	NodePath string `json:"node_path"`
	Value    bool   `json:"value"`
}

// Response is the JSON envelope returned by the Audio2Face REST API.
// Fields stay empty when the service answers with something else.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new Audio2Face HTTP client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http or https, got %q", config.BaseURL)
	}

	if config.PlayerInstance == "" {
		config.PlayerInstance = DefaultPlayerInstance
	}

	if config.LivelinkNode == "" {
		config.LivelinkNode = DefaultLivelinkNode
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Config returns the effective configuration after defaults were applied.
func (c *Client) Config() Config { return c.config }

// PushAudio sends one buffer of PCM bytes to the streaming player.
func (c *Client) PushAudio(ctx context.Context, data []byte, sampleRate int) (*Response, error) {
	return c.post(ctx, "push_audio", pushAudioPath, PushAudioRequest{
		AudioData:  base64.StdEncoding.EncodeToString(data),
		SampleRate: sampleRate,
		Instance:   c.config.PlayerInstance,
	})
}

// SetExporterFlag sets the boolean flag of an exporter node.
func (c *Client) SetExporterFlag(ctx context.Context, nodePath string, value bool) (*Response, error) {
	return c.post(ctx, "exporter_act", exporterActPath, ExporterActRequest{
		NodePath: nodePath,
		Value:    value,
	})
}

// EnableLivelink turns on the StreamLivelink exporter so pushed audio is applied in real time.
func (c *Client) EnableLivelink(ctx context.Context) (*Response, error) {
	return c.SetExporterFlag(ctx, c.config.LivelinkNode, true)
}

// post performs a single JSON POST; failures are never retried
func (c *Client) post(ctx context.Context, op, path string, payload any) (*Response, error) {
	startTime := time.Now()
	c.incrementTotalRequests()

	resp, err := c.doRequest(ctx, op, c.config.BaseURL+path, payload)
	if err != nil {
		c.incrementFailedRequests()
		return nil, err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(time.Since(startTime))
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, op, url string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &RemoteError{Op: op, URL: url, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &RemoteError{Op: op, URL: url, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "A2F-Stream-Service/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RemoteError{Op: op, URL: url, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Op: op, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{
			Op:         op,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBody),
		}
	}

	var result Response
	_ = json.Unmarshal(respBody, &result)

	return &result, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}

// Close releases idle connections held by the transport.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

package deepseek

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
	"strconv"
	"strings"
	"time"

	"text-adapter/internal/domain"
)

const (
	defaultBaseURL     = "https://api.deepseek.com"
	defaultModel       = "deepseek-chat"
	defaultMaxTokens   = 8000
	defaultTemperature = 0.7
	defaultIdleTimeout = 120 * time.Second

	// maxReasonRunes bounds the upstream error text carried in a CompletionError.
	maxReasonRunes = 200
)

// Status is the outcome tag of a completion: an HTTP status code rendered as
// a string, or one of the transport-level values below.
type Status string

const (
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
)

// ErrEmptyResponse is wrapped by the CompletionError returned when the stream
// closed without delivering any content.
var ErrEmptyResponse = errors.New("deepseek: empty response")

// errIdleTimeout cancels a request that delivered nothing for the idle timeout.
var errIdleTimeout = errors.New("deepseek: no data within idle timeout")

// chatRequest is the request shape for a streamed chat completion.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
	Stream      bool                 `json:"stream"`
}

// CompletionError describes every unsuccessful completion: non-200 statuses,
// timeouts, transport failures and empty streams.
type CompletionError struct {
	Status     Status
	StatusCode int
	Reason     string
	Err        error
}

func (e *CompletionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deepseek: completion failed (%s): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("deepseek: completion failed (%s): %s: %v", e.Status, e.Reason, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the upstream status, or 0 for timeouts and
// transport failures.
func (e *CompletionError) HTTPStatusCode() int {
	return e.StatusCode
}

// Retryable reports whether repeating the same request may succeed.
func (e *CompletionError) Retryable() bool {
	switch e.Status {
	case StatusTimeout, StatusError:
		return true
	}
	return e.StatusCode >= 500
}

// Client streams chat completions from a DeepSeek (OpenAI-compatible)
// endpoint and reassembles them into one string.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	idleTimeout time.Duration
	httpClient  *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithIdleTimeout bounds how long the server may stay silent, both before the
// response headers and between stream lines. A stream that keeps delivering
// is never cut off.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// NewClient creates a Client authenticating with apiKey. The key is resolved
// once at process start; an empty key is a configuration error.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("deepseek: api key must not be empty")
	}
	c := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		idleTimeout: defaultIdleTimeout,
		httpClient:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Complete sends messages with stream=true and returns the concatenated
// content deltas in arrival order. The request is canceled only when the
// server stays silent for the idle timeout. Every failure is a
// *CompletionError.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", &CompletionError{Status: StatusError, Reason: "marshal request", Err: err}
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := time.AfterFunc(c.idleTimeout, func() { cancel(errIdleTimeout) })
	defer idle.Stop()
	touch := func() { idle.Reset(c.idleTimeout) }

	url := chatURL(c.baseURL)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &CompletionError{Status: StatusError, Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return "", c.transportError(reqCtx, err, start)
	}
	defer func() { _ = res.Body.Close() }()
	touch()

	slog.Debug("deepseek stream opened", "status", res.StatusCode)

	if res.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &CompletionError{
			Status:     Status(strconv.Itoa(res.StatusCode)),
			StatusCode: res.StatusCode,
			Reason:     truncateRunes(string(buf), maxReasonRunes),
		}
	}

	content, chunks, err := readStream(res.Body, touch)
	if err != nil {
		return "", c.transportError(reqCtx, err, start)
	}

	elapsed := time.Since(start)
	slog.Info("deepseek stream finished",
		"elapsed_sec", fmt.Sprintf("%.1f", elapsed.Seconds()),
		"chunks", chunks,
		"chars", len([]rune(content)),
	)

	if content == "" {
		return "", &CompletionError{
			Status:     Status(strconv.Itoa(http.StatusInternalServerError)),
			StatusCode: http.StatusInternalServerError,
			Reason:     "Empty response",
			Err:        ErrEmptyResponse,
		}
	}
	return content, nil
}

// transportError classifies a failed exchange. An idle-timeout cancellation
// reports the idle interval; any other deadline reports the time spent.
func (c *Client) transportError(ctx context.Context, err error, start time.Time) *CompletionError {
	elapsed := time.Since(start)
	if errors.Is(context.Cause(ctx), errIdleTimeout) {
		slog.Error("deepseek stream idle timeout",
			"idle_timeout_sec", c.idleTimeout.Seconds(),
			"elapsed_sec", fmt.Sprintf("%.1f", elapsed.Seconds()),
		)
		return &CompletionError{
			Status: StatusTimeout,
			Reason: timeoutReason(c.idleTimeout),
			Err:    fmt.Errorf("%w: %w", errIdleTimeout, err),
		}
	}
	if isTimeout(err) {
		slog.Error("deepseek request timed out", "elapsed_sec", fmt.Sprintf("%.1f", elapsed.Seconds()))
		return &CompletionError{
			Status: StatusTimeout,
			Reason: timeoutReason(elapsed.Round(time.Millisecond)),
			Err:    err,
		}
	}
	slog.Error("deepseek request failed", "err", err)
	return &CompletionError{Status: StatusError, Reason: err.Error(), Err: err}
}

func timeoutReason(d time.Duration) string {
	return "Timeout (" + strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "sec.)"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

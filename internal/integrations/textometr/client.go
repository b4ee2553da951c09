package textometr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"text-adapter/internal/domain"
)

const defaultTimeout = 30 * time.Second

type analyzeRequest struct {
	Text string `json:"text"`
}

// analyzeResponse holds the fixed analyzer fields. Level coverage fields are
// read separately through domain.LevelMetricFields.
type analyzeResponse struct {
	TextOK                *bool           `json:"text_ok"`
	TextErrorMessage      string          `json:"text_error_message"`
	LevelNumber           json.Number     `json:"level_number"`
	LevelComment          string          `json:"level_comment"`
	Words                 int             `json:"words"`
	Sentences             int             `json:"sentences"`
	ReadingForDetailSpeed string          `json:"reading_for_detail_speed"`
	SkimReadingSpeed      string          `json:"skim_reading_speed"`
	KeyWords              json.RawMessage `json:"key_words"`
}

// HTTPStatusError captures non-2xx analyzer responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("textometr: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client scores texts against the Textometr complexity analyzer.
type Client struct {
	url        string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("textometr: url must not be empty")
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Analyze sends text to the analyzer and decodes its metrics. Callers treat
// any error as "metrics unavailable".
func (c *Client) Analyze(ctx context.Context, text string) (*domain.AnalysisMetrics, error) {
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("textometr: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("textometr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("textometr: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("textometr: read response body: %w", err)
	}
	return decodeMetrics(raw)
}

func decodeMetrics(raw []byte) (*domain.AnalysisMetrics, error) {
	var resp analyzeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("textometr: decode response: %w", err)
	}
	if resp.TextOK != nil && !*resp.TextOK {
		return nil, fmt.Errorf("textometr: text rejected: %s", resp.TextErrorMessage)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("textometr: decode level fields: %w", err)
	}

	coverage := make(map[domain.Level]domain.LevelCoverage)
	for _, level := range domain.KnownLevels() {
		names, _ := level.MetricFields()
		var cov domain.LevelCoverage
		inRaw, hasIn := fields[names.InLevel]
		if hasIn {
			v, ok := decodePercent(inRaw)
			if !ok {
				slog.Warn("textometr: skipping unreadable level coverage", "field", names.InLevel, "value", string(inRaw))
				continue
			}
			cov.InLevel = v
		}
		notIn, hasNotIn := fields[names.NotInLevel]
		if hasNotIn {
			cov.NotInLevel = notIn
		}
		if hasIn || hasNotIn {
			coverage[level] = cov
		}
	}

	return &domain.AnalysisMetrics{
		LevelNumber:           resp.LevelNumber,
		LevelComment:          resp.LevelComment,
		WordCount:             resp.Words,
		SentenceCount:         resp.Sentences,
		ReadingForDetailSpeed: resp.ReadingForDetailSpeed,
		SkimReadingSpeed:      resp.SkimReadingSpeed,
		KeyWords:              resp.KeyWords,
		Coverage:              coverage,
	}, nil
}

// decodePercent reads a coverage value given either as a JSON number or as a
// numeric string with an optional trailing "%".
func decodePercent(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"text-adapter/internal/domain"
	"text-adapter/internal/integrations/deepseek"
)

const (
	defaultNativeLanguage = "en"
	termMask              = "…"

	msgTextRequired   = "Text is required"
	msgInvalidJSON    = "Invalid JSON response from DeepSeek"
	msgMissingAdapted = "Invalid response format: missing adapted_text"
)

type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (*domain.AnalysisMetrics, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type retryable interface {
	Retryable() bool
}

// AdaptService runs one adaptation end to end: prompt, completion, parsing,
// analysis of both text variants and assembly of the result envelope.
type AdaptService struct {
	llm      Completer
	analyzer Analyzer
	attempts int
}

// NewAdaptService builds the service. attempts bounds completion calls per
// adaptation; values below 1 mean a single call.
func NewAdaptService(llm Completer, analyzer Analyzer, attempts int) (*AdaptService, error) {
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if analyzer == nil {
		return nil, errors.New("usecase: analyzer must not be nil")
	}
	if attempts < 1 {
		attempts = 1
	}
	return &AdaptService{llm: llm, analyzer: analyzer, attempts: attempts}, nil
}

// Adapt never returns an error: every failure is reported in the envelope.
func (s *AdaptService) Adapt(ctx context.Context, req domain.AdaptationRequest) (res domain.AdaptationResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("adaptation panicked", "panic", r)
			res = failure(ErrorInternal, fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	if strings.TrimSpace(req.OriginalText) == "" {
		return failure(ErrorInvalidInput, msgTextRequired)
	}
	req.TargetLevel = domain.ParseLevel(string(req.TargetLevel))
	if strings.TrimSpace(req.NativeLanguage) == "" {
		req.NativeLanguage = defaultNativeLanguage
	}

	messages, fellBack := buildMessages(req)
	if fellBack {
		slog.Warn("no adaptation rules for level, using fallback rules",
			"level", req.TargetLevel, "fallback", fallbackLevel)
	}

	raw, err := s.complete(ctx, messages)
	if err != nil {
		return completionFailure(err)
	}

	payload, err := parseAdaptedPayload(raw)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) && perr.Kind == ParseMissingField {
			slog.Warn("completion missing required field", "field", perr.Field)
			return failure(ErrorUpstream, msgMissingAdapted)
		}
		slog.Warn("completion is not valid JSON", "err", err)
		return failure(ErrorUpstream, msgInvalidJSON)
	}

	withTerms := s.analyze(ctx, "with_terms", payload.AdaptedText)
	var withoutTerms *domain.AnalysisMetrics
	if withTerms != nil {
		withoutTerms = s.analyze(ctx, "without_terms", textWithoutTerms(payload))
	}

	return assembleResult(payload, withTerms, withoutTerms, req.TargetLevel)
}

// complete calls the model up to s.attempts times. Only failures that report
// themselves retryable are repeated, immediately and without backoff.
func (s *AdaptService) complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		raw, err := s.llm.Complete(ctx, messages)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var r retryable
		if !errors.As(err, &r) || !r.Retryable() || ctx.Err() != nil {
			break
		}
		if attempt < s.attempts {
			slog.Warn("completion failed, retrying", "attempt", attempt, "max_attempts", s.attempts, "err", err)
		}
	}
	return "", lastErr
}

func (s *AdaptService) analyze(ctx context.Context, variant, text string) *domain.AnalysisMetrics {
	m, err := s.analyzer.Analyze(ctx, text)
	if err != nil {
		slog.Warn("text analysis unavailable", "variant", variant, "err", err)
		return nil
	}
	return m
}

func completionFailure(err error) domain.AdaptationResult {
	reason := err.Error()
	var cerr *deepseek.CompletionError
	if errors.As(err, &cerr) {
		reason = cerr.Reason
	}
	code := ErrorUpstream
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		code = ErrorRateLimited
	}
	return failure(code, "DeepSeek API error: "+reason)
}

// textWithoutTerms prefers the model's own term-free rendition and otherwise
// masks every professional term in the adapted text.
func textWithoutTerms(p domain.AdaptedPayload) string {
	if strings.TrimSpace(p.AdaptedTextWithoutTerms) != "" {
		return p.AdaptedTextWithoutTerms
	}
	return maskTerms(p.AdaptedText, p.ProfessionalTerms)
}

// maskTerms replaces every occurrence of every term, ignoring case.
func maskTerms(text string, terms []domain.Term) string {
	names := make([]string, 0, len(terms))
	for _, t := range terms {
		if name := strings.TrimSpace(t.Term); name != "" {
			names = append(names, regexp.QuoteMeta(name))
		}
	}
	if len(names) == 0 {
		return text
	}
	// Longest first so a term never masks part of a longer one.
	sort.SliceStable(names, func(i, j int) bool {
		return len([]rune(names[i])) > len([]rune(names[j]))
	})
	re, err := regexp.Compile("(?i)(?:" + strings.Join(names, "|") + ")")
	if err != nil {
		return text
	}
	return re.ReplaceAllLiteralString(text, termMask)
}

func failure(code ErrorCode, msg string) domain.AdaptationResult {
	return domain.AdaptationResult{Success: false, Error: &msg, Code: string(code)}
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"

	"text-adapter/internal/domain"
)

type ParseErrorKind string

const (
	ParseInvalidJSON  ParseErrorKind = "InvalidJSON"
	ParseMissingField ParseErrorKind = "MissingField"
)

// ParseError reports a completion that could not be turned into an
// AdaptedPayload.
type ParseError struct {
	Kind  ParseErrorKind
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Kind == ParseMissingField {
		return fmt.Sprintf("usecase: parse completion: missing field %q", e.Field)
	}
	return fmt.Sprintf("usecase: parse completion: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// codeFence matches an opening ```json and a closing ``` at line boundaries.
var codeFence = regexp.MustCompile("(?m)^```json\\s*|\\s*```$")

type adaptedPayloadJSON struct {
	ProfessionalTerms       []domain.Term `json:"professional_terms"`
	AdaptedText             *string       `json:"adapted_text"`
	AdaptedTextWithoutTerms string        `json:"adapted_text_without_terms"`
	KeySentences            []string      `json:"key_sentences"`
}

func stripCodeFence(raw string) string {
	return codeFence.ReplaceAllString(raw, "")
}

// parseAdaptedPayload decodes a completion. adapted_text must be present and
// non-null; key_sentences are not checked against it.
func parseAdaptedPayload(raw string) (domain.AdaptedPayload, error) {
	var in adaptedPayloadJSON
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &in); err != nil {
		return domain.AdaptedPayload{}, &ParseError{Kind: ParseInvalidJSON, Err: err}
	}
	if in.AdaptedText == nil {
		return domain.AdaptedPayload{}, &ParseError{Kind: ParseMissingField, Field: "adapted_text"}
	}

	out := domain.AdaptedPayload{
		ProfessionalTerms:       in.ProfessionalTerms,
		AdaptedText:             *in.AdaptedText,
		AdaptedTextWithoutTerms: in.AdaptedTextWithoutTerms,
		KeySentences:            in.KeySentences,
	}
	if out.ProfessionalTerms == nil {
		out.ProfessionalTerms = []domain.Term{}
	}
	if out.KeySentences == nil {
		out.KeySentences = []string{}
	}
	return out, nil
}

package domain

import "encoding/json"

// AdaptationRequest is the immutable input of one adaptation.
type AdaptationRequest struct {
	OriginalText   string
	TargetLevel    Level
	NativeLanguage string
}

// Term is one professional term selected by the model.
type Term struct {
	Term             string   `json:"term"`
	Translation      string   `json:"translation"`
	Definition       string   `json:"definition"`
	DefinitionNative string   `json:"definition_native,omitempty"`
	Examples         []string `json:"examples"`
}

// AdaptedPayload is the structured model output. AdaptedText is always set
// on a payload that passed validation.
type AdaptedPayload struct {
	ProfessionalTerms       []Term
	AdaptedText             string
	AdaptedTextWithoutTerms string
	KeySentences            []string
}

// LevelCoverage is the analyzer's view of a text against one level.
type LevelCoverage struct {
	InLevel    float64
	NotInLevel json.RawMessage
}

// AnalysisMetrics is the subset of the linguistic analyzer response the
// service reports. Lists are kept as raw JSON and passed through unchanged.
type AnalysisMetrics struct {
	LevelNumber           json.Number
	LevelComment          string
	WordCount             int
	SentenceCount         int
	ReadingForDetailSpeed string
	SkimReadingSpeed      string
	KeyWords              json.RawMessage
	Coverage              map[Level]LevelCoverage
}

// AdaptationResult is the envelope returned to callers and serialized
// verbatim as the HTTP response body.
type AdaptationResult struct {
	Success bool            `json:"success"`
	Data    *AdaptationData `json:"data"`
	Error   *string         `json:"error"`

	// Code classifies failures for transport mapping. Empty on success.
	Code string `json:"-"`
}

type AdaptationData struct {
	AdaptedText string      `json:"adapted_text"`
	KeyElements KeyElements `json:"key_elements"`
	Statistics  Statistics  `json:"statistics"`
}

type KeyElements struct {
	KeySentences      []string `json:"key_sentences"`
	ProfessionalTerms []Term   `json:"professional_terms"`
}

type Statistics struct {
	TargetLevel      string            `json:"target_level"`
	TextWithTerms    *TextWithTerms    `json:"text_with_terms,omitempty"`
	TextWithoutTerms *TextWithoutTerms `json:"text_without_terms,omitempty"`
}

type TextWithTerms struct {
	LevelMetrics LevelMetrics    `json:"level_metrics"`
	Keywords     json.RawMessage `json:"keywords"`
	BasicMetrics BasicMetrics    `json:"basic_metrics"`
	InLevel      string          `json:"in_level"`
	NotInLevel   json.RawMessage `json:"not_in_level"`
}

type TextWithoutTerms struct {
	LevelMetrics LevelMetrics `json:"level_metrics"`
}

type LevelMetrics struct {
	LevelNumber  json.Number `json:"level_number"`
	LevelComment string      `json:"level_comment"`
}

type BasicMetrics struct {
	WordCount             int    `json:"word_count"`
	SentenceCount         int    `json:"sentence_count"`
	ReadingForDetailSpeed string `json:"reading_for_detail_speed"`
	SkimReadingSpeed      string `json:"skim_reading_speed"`
}

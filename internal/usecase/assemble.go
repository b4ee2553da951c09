package usecase

import (
	"encoding/json"
	"strconv"

	"text-adapter/internal/domain"
)

const msgStatisticsUnavailable = "Fail to fetch text statistics"

var emptyList = json.RawMessage("[]")

// assembleResult merges the parsed payload with the analyzer metrics. Without
// withTerms metrics the result keeps its data but reports success=false.
func assembleResult(payload domain.AdaptedPayload, withTerms, withoutTerms *domain.AnalysisMetrics, level domain.Level) domain.AdaptationResult {
	data := &domain.AdaptationData{
		AdaptedText: payload.AdaptedText,
		KeyElements: domain.KeyElements{
			KeySentences:      nonNilStrings(payload.KeySentences),
			ProfessionalTerms: nonNilTerms(payload.ProfessionalTerms),
		},
		Statistics: domain.Statistics{TargetLevel: string(level)},
	}

	if withTerms == nil {
		msg := msgStatisticsUnavailable
		return domain.AdaptationResult{
			Success: false,
			Data:    data,
			Error:   &msg,
			Code:    string(ErrorAnalysisUnavailable),
		}
	}

	inLevel, notInLevel := coverageFor(withTerms, level)
	data.Statistics.TextWithTerms = &domain.TextWithTerms{
		LevelMetrics: levelMetrics(withTerms),
		Keywords:     rawOrEmptyList(withTerms.KeyWords),
		BasicMetrics: domain.BasicMetrics{
			WordCount:             withTerms.WordCount,
			SentenceCount:         withTerms.SentenceCount,
			ReadingForDetailSpeed: withTerms.ReadingForDetailSpeed,
			SkimReadingSpeed:      withTerms.SkimReadingSpeed,
		},
		InLevel:    inLevel,
		NotInLevel: notInLevel,
	}
	if withoutTerms != nil {
		data.Statistics.TextWithoutTerms = &domain.TextWithoutTerms{
			LevelMetrics: levelMetrics(withoutTerms),
		}
	}
	return domain.AdaptationResult{Success: true, Data: data}
}

// coverageFor renders the in-level percentage and out-of-level list for
// level. Levels the analyzer did not report yield "0%" and [].
func coverageFor(m *domain.AnalysisMetrics, level domain.Level) (string, json.RawMessage) {
	cov, ok := m.Coverage[level]
	if !ok {
		return formatPercent(0), emptyList
	}
	return formatPercent(cov.InLevel), rawOrEmptyList(cov.NotInLevel)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func levelMetrics(m *domain.AnalysisMetrics) domain.LevelMetrics {
	n := m.LevelNumber
	if n == "" {
		n = "0"
	}
	return domain.LevelMetrics{LevelNumber: n, LevelComment: m.LevelComment}
}

func rawOrEmptyList(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return emptyList
	}
	return raw
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTerms(t []domain.Term) []domain.Term {
	if t == nil {
		return []domain.Term{}
	}
	return t
}

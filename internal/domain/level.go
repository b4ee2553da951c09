package domain

import "strings"

// Level is a target proficiency tier such as B1 or B2.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"

	DefaultLevel Level = LevelB2
)

// LevelMetricFields names the analyzer response fields that carry the
// in-level percentage and the out-of-level word list for one level.
type LevelMetricFields struct {
	InLevel    string
	NotInLevel string
}

var levelMetricFields = map[Level]LevelMetricFields{
	LevelA1: {InLevel: "inA1", NotInLevel: "not_inA1"},
	LevelA2: {InLevel: "inA2", NotInLevel: "not_inA2"},
	LevelB1: {InLevel: "inB1", NotInLevel: "not_inB1"},
	LevelB2: {InLevel: "inB2", NotInLevel: "not_inB2"},
	LevelC1: {InLevel: "inC1", NotInLevel: "not_inC1"},
	LevelC2: {InLevel: "inC2", NotInLevel: "not_inC2"},
}

// ParseLevel normalizes s. Empty input yields DefaultLevel; anything else is
// upper-cased and returned as is, known or not.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultLevel
	}
	return Level(s)
}

// MetricFields returns the analyzer field pair for l.
func (l Level) MetricFields() (LevelMetricFields, bool) {
	f, ok := levelMetricFields[l]
	return f, ok
}

// KnownLevels lists every level with an analyzer field mapping.
func KnownLevels() []Level {
	return []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}
}

package usecase

import (
	"fmt"
	"strings"

	"text-adapter/internal/domain"
)

// fallbackLevel supplies the rules for any level missing from adaptationRules.
const fallbackLevel = domain.LevelB2

var adaptationRules = map[domain.Level][]string{
	domain.LevelB1: {
		"Используй только короткие и простые предложения",
		"Заменяй пассивные конструкции на активные",
		"Преобразуй причастные и деепричастные обороты в отдельные предложения",
		"Используй только простые союзы: и, а, но, или, потому что, чтобы",
		"Один абзац = одна мысль, четкая последовательность: сначала → потом → затем",
	},
	domain.LevelB2: {
		"Используй простые и сложносочиненные предложения",
		"Допустимы предложения с союзами: поскольку, однако, в то время как",
		"Ограниченно используй причастные обороты (1-2 на абзац)",
		"Сохраняй причинно-следственные связи",
		"Абзац содержит не больше 3 связанных мыслей",
	},
}

// rulesFor returns the directives for level. fellBack is true when level has
// no rule set of its own and the B2 rules were used instead.
func rulesFor(level domain.Level) (rules []string, fellBack bool) {
	if r, ok := adaptationRules[level]; ok {
		return r, false
	}
	return adaptationRules[fallbackLevel], true
}

func buildSystemPrompt(nativeLanguage string) string {
	return strings.Join([]string{
		"Ты - помощник для адаптации учебных текстов для иностранных студентов.",
		"Твоя задача - выделить важные профессиональные термины для обучения и упростить текст до целевого уровня сложности.",
		"",
		"Формат ответа (строго JSON):",
		"{",
		`    "professional_terms": [`,
		"        {",
		`            "term": "термин в тексте в первоначальной форме, включая аббревиатуры",`,
		fmt.Sprintf(`            "translation": "перевод на %s",`, nativeLanguage),
		`            "definition": "объяснение на русском",`,
		`            "examples": ["пример 1 на русском", "пример 2 на русском"]`,
		"        }",
		"    ],",
		`    "adapted_text": "адаптированный текст с терминами.",`,
		`    "key_sentences": [`,
		`        "несколько ключевых предложений из adapted_text"`,
		"    ]",
		"}",
		"",
		"Каждое предложение в key_sentences ДОЛЖНО существовать в adapted_text.",
		"Совпадение должно быть 100% точным (регистр, пробелы, пунктуация).",
	}, "\n")
}

func buildUserPrompt(level domain.Level, rules []string, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Адаптируй текст до уровня сложности: %s.\n", level)
	b.WriteString("Правила:\n")
	for _, r := range rules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	b.WriteString("Когда получишь текст, верни результат в указанном JSON формате.\n")
	b.WriteString("Текст для адаптации:\n\n")
	b.WriteString(text)
	return b.String()
}

// buildMessages renders the system and user messages for req. The level is
// echoed as requested even when its rules fell back to B2.
func buildMessages(req domain.AdaptationRequest) ([]domain.ChatMessage, bool) {
	rules, fellBack := rulesFor(req.TargetLevel)
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildSystemPrompt(req.NativeLanguage)},
		{Role: domain.RoleUser, Content: buildUserPrompt(req.TargetLevel, rules, req.OriginalText)},
	}, fellBack
}

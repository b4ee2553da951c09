package deepseek

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	keepAlivePrefix = ":"
	dataPrefix      = "data:"
	doneSentinel    = "[DONE]"

	maxLineBytes = 1 << 20
)

type lineKind int

const (
	lineIgnored lineKind = iota // blank, keep-alive comment, or non-data field
	lineData
	lineDone
)

// streamChunk is the part of a chat.completion.chunk event we read.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// classifyLine splits one event-stream line into its kind and, for data
// lines, the payload with the field prefix removed.
func classifyLine(line string) (lineKind, string) {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, keepAlivePrefix) {
		return lineIgnored, ""
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return lineIgnored, ""
	}
	payload := strings.TrimPrefix(line, dataPrefix)
	payload = strings.TrimPrefix(payload, " ")
	if strings.TrimSpace(payload) == doneSentinel {
		return lineDone, ""
	}
	return lineData, payload
}

// decodeDelta returns the content delta carried by a data payload. A chunk
// without choices contributes the empty string.
func decodeDelta(payload string) (string, error) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", err
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

// readStream accumulates content deltas in arrival order until the [DONE]
// sentinel or end of input. Malformed payloads are logged and skipped. The
// returned count is the number of decoded chunks. onLine, when set, runs after
// every line read, keep-alives included.
func readStream(r io.Reader, onLine func()) (string, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		content strings.Builder
		chunks  int
	)
	for scanner.Scan() {
		if onLine != nil {
			onLine()
		}
		kind, payload := classifyLine(scanner.Text())
		switch kind {
		case lineIgnored:
			continue
		case lineDone:
			slog.Debug("deepseek stream terminated", "chunks", chunks)
			return content.String(), chunks, nil
		}

		delta, err := decodeDelta(payload)
		if err != nil {
			slog.Warn("deepseek: cannot parse chunk", "payload", truncateRunes(payload, 100), "err", err)
			continue
		}
		chunks++
		content.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", chunks, fmt.Errorf("deepseek: read stream: %w", err)
	}
	return content.String(), chunks, nil
}

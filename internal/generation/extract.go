package generation

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoPayload means no structured block could be isolated from the raw text.
var ErrNoPayload = errors.New("no structured payload found in response")

// ExtractJSONBlock isolates a JSON object embedded in raw model output.
// Models wrap payloads in markdown fences, prefix them with prose, or
// occasionally emit clean JSON; all three are handled. Returns ErrNoPayload
// when no balanced object can be found.
func ExtractJSONBlock(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrNoPayload
	}

	// Prefer a fenced block when present.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		// Skip a language tag like "json" on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			if block := strings.TrimSpace(rest[:end]); block != "" {
				text = block
			}
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoPayload
	}

	// Scan for the matching close brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrNoPayload
}

// DecodePlanPayload extracts and unmarshals a plan payload from raw model
// output.
func DecodePlanPayload(raw string) (*PlanPayload, error) {
	block, err := ExtractJSONBlock(raw)
	if err != nil {
		return nil, err
	}
	var payload PlanPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, ErrNoPayload
	}
	return &payload, nil
}

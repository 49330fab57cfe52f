package llm

import (
	"regexp"
	"strings"
)

var (
	pythonBlockRe = regexp.MustCompile("(?s)```python\\s*\\n(.*?)\\n```")
	anyBlockRe    = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*\\n(.*?)\\n```")
)

// ExtractPythonCode extracts the first fenced python code block from a
// generator response. Falls back to the first generic fenced block. Returns
// an empty string when no code block is present; callers treat that as an
// invalid candidate, not an error.
func ExtractPythonCode(content string) string {
	if match := pythonBlockRe.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1])
	}
	if match := anyBlockRe.FindStringSubmatch(content); match != nil {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// CleanJSONBlock removes markdown code block wrappers from JSON responses.
// LLMs often wrap JSON in ```json ... ``` blocks even when instructed not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

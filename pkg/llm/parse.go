package llm

import "strings"

// ExtractJSON finds and extracts a JSON object from a response that might
// contain markdown or surrounding prose.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	// Look for JSON in code blocks first (most reliable)
	if start := strings.Index(response, "```json"); start != -1 {
		start += 7 // len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	// Look for JSON in generic code blocks
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(content, "{") {
				return content
			}
		}
	}

	// If it starts with {, assume it's raw JSON
	if strings.HasPrefix(response, "{") {
		return extractJSONObject(response, 0)
	}

	// Try to find a JSON object anywhere in the response
	if start := strings.Index(response, "{"); start != -1 {
		return extractJSONObject(response, start)
	}

	return ""
}

// extractJSONObject extracts a complete JSON object starting at the given
// position, properly handling strings that may contain braces.
func extractJSONObject(s string, start int) string {
	if start >= len(s) || s[start] != '{' {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	// Braces weren't balanced
	return ""
}

// ExtractSQL pulls a SQL statement out of an LLM response, trying fenced
// code blocks first and falling back to treating the whole response as SQL
// when it starts with a SQL keyword.
func ExtractSQL(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```sql"); start != -1 {
		start += 6 // len("```sql")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return CleanSQL(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if LooksLikeSQL(content) {
				return CleanSQL(content)
			}
		}
	}

	if LooksLikeSQL(response) {
		return CleanSQL(response)
	}

	return ""
}

// LooksLikeSQL checks if text appears to be a SQL statement.
func LooksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	sqlKeywords := []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"}
	for _, kw := range sqlKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// CleanSQL normalizes SQL by trimming whitespace and removing trailing semicolons.
func CleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

// TruncateString truncates a string to maxLen, adding "..." if truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

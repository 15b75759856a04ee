package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON strips optional markdown fences from raw and unmarshals it into dst.
func DecodeJSON(raw string, dst any) error {
	clean := cleanJSONString(raw)
	if err := json.Unmarshal([]byte(clean), dst); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	return nil
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}

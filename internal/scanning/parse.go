package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/billscan/internal/table"
)

// parseRecordsJSON parses the records out of a model's text answer. The answer may
// be wrapped in markdown fences, and may be a bare array or an object with a
// "data" array.
func parseRecordsJSON(text string) ([]table.Record, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "[{")
	if start == -1 {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrMalformedResponse)
	}
	closing := "]"
	if text[start] == '{' {
		closing = "}"
	}
	end := strings.LastIndex(text, closing)
	if end < start {
		return nil, fmt.Errorf("%w: unterminated JSON in response", ErrMalformedResponse)
	}
	text = text[start : end+1]

	if strings.HasPrefix(text, "{") {
		var wrapped remoteResponse
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		text = string(wrapped.Data)
	}

	records, err := table.DecodeRecords([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return records, nil
}

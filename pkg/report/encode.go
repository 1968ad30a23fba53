package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// marshalIndent encodes v with two-space indent and without HTML escaping,
// so element texts like "<Back" survive readable.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

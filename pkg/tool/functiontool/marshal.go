package functiontool

import (
	"encoding/json"
	"fmt"
)

// mapToStruct converts model arguments into the typed Args value.
func mapToStruct(m map[string]any, target any) error {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return nil
}

package chat

import (
	"encoding/json"
	"log/slog"

	"github.com/kaptinlin/jsonrepair"
)

// parseArguments decodes tool-call argument JSON into a map. Malformed
// input is first run through jsonrepair; if it still cannot be decoded it
// degrades to an empty object so a bad tool call never fails the turn.
func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil && args != nil {
		return args
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err == nil {
		args = nil
		if err := json.Unmarshal([]byte(fixed), &args); err == nil && args != nil {
			return args
		}
	}
	slog.Warn("chat: malformed tool arguments, using empty object", "raw", raw)
	return map[string]any{}
}

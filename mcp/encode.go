package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/alpkeskin/gotoon"
)

// encodeOutput renders tool results as JSON (default) or TOON, a compact
// format that costs fewer tokens for agent consumers.
func encodeOutput(data any, format string) (string, error) {
	switch format {
	case "", "json":
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "toon":
		return gotoon.Encode(data)
	default:
		return "", fmt.Errorf("unknown format %q (expected json or toon)", format)
	}
}

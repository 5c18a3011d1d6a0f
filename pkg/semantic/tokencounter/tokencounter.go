// Package tokencounter estimates the prompt-token cost of surfacing a
// tool's description and schema to a model, so each `find` match can
// report an approximate token cost alongside its score. Results are
// limited by count only; nothing trims them to a token budget (§4.6, §6 —
// SPEC_FULL supplement: token/size-aware schema minification).
//
// The estimate is deliberately approximate: an exact count would need
// the caller's own tokenizer, which the gateway has no way to know in
// advance since it serves arbitrary MCP clients. A cheap, stable
// heuristic that never undercounts badly is more useful here than a
// precise count for one specific tokenizer.
package tokencounter

import (
	"bytes"
	"encoding/json"
)

// bytesPerToken approximates English-text and JSON token density for
// the common BPE tokenizers (roughly 4 bytes/token for prose, tighter
// for punctuation-heavy JSON). Using one constant for both keeps the
// estimate conservative rather than exact.
const bytesPerToken = 3.6

// Estimate returns an approximate token count for s, never returning 0
// for non-empty input.
func Estimate(s string) int {
	if s == "" {
		return 0
	}
	tokens := int(float64(len(s))/bytesPerToken + 0.5)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateTool returns the approximate token cost of surfacing name,
// description, and schema together, the way a `find` result or a `run`
// tool-listing renders them to a model.
func EstimateTool(name, description string, schema json.RawMessage) int {
	total := Estimate(name) + Estimate(description)
	if len(schema) > 0 {
		total += Estimate(Minify(schema))
	}
	return total
}

// Minify compacts schema to its smallest valid JSON encoding, stripping
// insignificant whitespace so token estimates (and what's actually sent
// over the wire) reflect the schema's real information content rather
// than its formatting.
func Minify(schema json.RawMessage) string {
	if len(schema) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, schema); err != nil {
		return string(schema)
	}
	return buf.String()
}

package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Helpers for reading values out of decoded JSON whose shape is not under
// our control. None of them fail; a missing or mistyped value reports ok=false.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Counts above this are capped so they stay exact for every JSON consumer
const maxCount = math.MaxInt32

// asCount reads a non-negative integer count. Negative values clamp to zero.
func asCount(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	if f < 0 {
		return 0, true
	}
	if f > maxCount {
		return maxCount, true
	}
	return int(math.Round(f)), true
}

// firstCount returns the first numeric value found under keys, looking at the
// block itself and then at its "summary" sub-object.
func firstCount(block map[string]any, keys []string) (int, bool) {
	for _, scope := range []map[string]any{block, asMap(block["summary"])} {
		if scope == nil {
			continue
		}
		for _, key := range keys {
			if n, ok := asCount(scope[key]); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// firstList returns the first list found under keys
func firstList(block map[string]any, keys []string) []any {
	if block == nil {
		return nil
	}
	for _, key := range keys {
		if l, ok := asList(block[key]); ok {
			return l
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(m[key]); s != "" {
			return s
		}
	}
	return ""
}

// firstMap returns the first object found under keys
func firstMap(m map[string]any, keys ...string) map[string]any {
	if m == nil {
		return nil
	}
	for _, key := range keys {
		if sub := asMap(m[key]); sub != nil {
			return sub
		}
	}
	return nil
}

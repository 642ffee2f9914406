package llm

import (
	"encoding/json"
	"fmt"
)

// ExtractJSON locates the last top-level {...} block in a model reply and
// returns it verbatim. Models add prose, markdown fences and other framing
// around the object despite instructions, so everything outside the balanced
// braces is ignored. Returns an ErrMalformedOutput-wrapped error when no
// complete object exists or the located span is not valid JSON.
func ExtractJSON(raw string) (json.RawMessage, error) {
	start, end := lastObjectSpan(raw)
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	span := raw[start:end]
	if !json.Valid([]byte(span)) {
		return nil, fmt.Errorf("%w: located block is not valid JSON", ErrMalformedOutput)
	}
	return json.RawMessage(span), nil
}

// DecodeLast extracts the last JSON object from raw and unmarshals it into v.
func DecodeLast(raw string, v any) error {
	block, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(block, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// lastObjectSpan scans raw for balanced top-level brace pairs, skipping
// braces inside string literals, and returns the [start,end) byte span of
// the last complete object, or (-1,-1).
func lastObjectSpan(raw string) (int, int) {
	bestStart, bestEnd := -1, -1
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					bestStart, bestEnd = start, i+1
				}
			}
		}
	}
	return bestStart, bestEnd
}

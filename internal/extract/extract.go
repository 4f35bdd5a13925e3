// Package extract pulls JSON values out of free-text model replies.
//
// Hosted models are not guaranteed to emit schema-pure JSON, so extraction
// is a best-effort span heuristic: the first opening delimiter and the last
// matching closing delimiter bound the candidate, which is then strictly
// decoded. Callers degrade to an empty value on failure; the returned error
// lets them log why (no span vs. broken JSON) without changing behavior.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSpan indicates the reply contained no bracketed region of the
// expected kind.
var ErrNoSpan = errors.New("extract: no bracketed span in reply")

// Object locates the outermost {...} span in reply and decodes it into out.
// Returns ErrNoSpan when no span exists, or a wrapped decode error when the
// span is not valid JSON. out is left untouched on failure.
func Object(reply string, out any) error {
	return decodeSpan(reply, '{', '}', out)
}

// Array locates the outermost [...] span in reply and decodes it into out.
func Array(reply string, out any) error {
	return decodeSpan(reply, '[', ']', out)
}

// decodeSpan slices reply between the first open and the last close
// delimiter. Using outer-first/outer-last means nested structures of the
// same kind are spanned whole; it is not a parser-correctness guarantee.
func decodeSpan(reply string, open, closing byte, out any) error {
	start := strings.IndexByte(reply, open)
	end := strings.LastIndexByte(reply, closing)
	if start < 0 || end <= start {
		return ErrNoSpan
	}
	span := reply[start : end+1]
	if err := json.Unmarshal([]byte(span), out); err != nil {
		return fmt.Errorf("extract: decode span: %w", err)
	}
	return nil
}

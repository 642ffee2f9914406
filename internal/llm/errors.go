package llm

import "errors"

// ErrMalformedOutput marks a model reply that could not be parsed into the
// expected shape. For required stages this is fatal to the job; best-effort
// stages may swallow it and continue with their previous value.
var ErrMalformedOutput = errors.New("malformed model output")

// IsMalformed reports whether err is (or wraps) ErrMalformedOutput.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}

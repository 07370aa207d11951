package segmenter

import (
	"fmt"
	"strings"
)

// DecodeError means an input is not a supported audio container or codec.
type DecodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v%s", e.Path, e.Err, tail(e.Stderr))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError means an output could not be produced in the requested encoding.
type EncodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v%s", e.Path, e.Err, tail(e.Stderr))
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// tail keeps the last stderr line, which is where ffmpeg puts the reason.
func tail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	lines := strings.Split(stderr, "\n")
	return " (" + strings.TrimSpace(lines[len(lines)-1]) + ")"
}

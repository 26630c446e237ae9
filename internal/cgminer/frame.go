package cgminer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Terminator is the byte the daemon appends to every response.
const Terminator byte = 0

// Request is the single command frame sent per connection.
type Request struct {
	Command string `json:"command"`
}

// EncodeRequest renders the wire frame: compact JSON followed by one newline.
// HTML escaping is disabled so '&', '<' and '>' in pool URLs go out verbatim.
func EncodeRequest(command string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Request{Command: command}); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// Complete reports whether buf holds a finished response. Any NUL anywhere
// counts, including one embedded mid-payload.
func Complete(buf []byte) bool {
	return bytes.IndexByte(buf, Terminator) >= 0
}

// CleanResponse strips every NUL byte and surrounding whitespace.
func CleanResponse(buf []byte) string {
	return strings.TrimSpace(strings.ReplaceAll(string(buf), "\x00", ""))
}

// DecodeResponse parses a cleaned response into a generic JSON value.
func DecodeResponse(cleaned string) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &ResponseParseError{Raw: cleaned, Err: err}
	}
	return out, nil
}

// Verb returns the command name without its pipe-delimited parameters.
func Verb(command string) string {
	verb, _, _ := strings.Cut(command, "|")
	return verb
}

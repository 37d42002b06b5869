// Package jsonutil extracts a JSON object from arbitrary, possibly
// adversarial, LLM text output. Every LLM-consuming caller in this module
// goes through Decoder — no call site strips fences or trims noise itself.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the input is empty or all whitespace.
var ErrEmptyResponse = errors.New("jsonutil: empty response")

// MalformedJSONError carries enough of the raw response for log inspection
// without dumping the whole (possibly huge) payload.
type MalformedJSONError struct {
	Head string
	Tail string
	Err  error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("jsonutil: malformed JSON (%v); head=%q tail=%q", e.Err, e.Head, e.Tail)
}

func (e *MalformedJSONError) Unwrap() error { return e.Err }

// Decoder extracts and parses a JSON object out of raw model text.
type Decoder struct {
	logger        *zap.Logger
	diagnosticDir string
}

// New builds a Decoder that writes undecodable responses under
// diagnosticDir, keyed by timestamp, for later inspection.
func New(logger *zap.Logger, diagnosticDir string) *Decoder {
	return &Decoder{logger: logger, diagnosticDir: diagnosticDir}
}

const fence = "```"

// Decode implements the algorithm in spec.md §4.3: strip an optional
// leading/trailing code fence, trim trailing non-JSON noise after the last
// balanced-looking close brace, then parse. It never indexes past a string's
// length and never returns a partial value — only a populated *out or one of
// ErrEmptyResponse / *MalformedJSONError.
func (d *Decoder) Decode(text string, out any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyResponse
	}

	stripped := stripFences(trimmed)
	boundsed := trimToBracedObject(stripped)

	if err := json.Unmarshal([]byte(boundsed), out); err != nil {
		d.persistDiagnostic(text, err)
		return &MalformedJSONError{
			Head: headN(text, 500),
			Tail: tailN(text, 200),
			Err:  err,
		}
	}

	return nil
}

// stripFences removes at most one opening ``` (optionally followed by a
// "json"/"JSON" language tag) and at most one closing ```. It tolerates any
// number of fence-delimited segments by always operating on the first and
// last occurrence rather than assuming a specific split length.
func stripFences(s string) string {
	if !strings.Contains(s, fence) {
		return s
	}

	first := strings.Index(s, fence)
	rest := s[first+len(fence):]

	// Drop an optional language tag on the same line as the opening fence.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			rest = rest[nl+1:]
		}
	}

	last := strings.LastIndex(rest, fence)
	if last >= 0 {
		rest = rest[:last]
	}

	return strings.TrimSpace(rest)
}

// trimToBracedObject trims whitespace and any trailing noise after the last
// '}' that closes the first '{'. If no braces are found at all, the input is
// returned unchanged so json.Unmarshal produces a normal syntax error.
func trimToBracedObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[start : end+1])
}

func headN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func tailN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (d *Decoder) persistDiagnostic(raw string, cause error) {
	if d.diagnosticDir == "" {
		return
	}
	if err := os.MkdirAll(d.diagnosticDir, 0o755); err != nil {
		if d.logger != nil {
			d.logger.Warn("failed to create diagnostic dir", zap.Error(err))
		}
		return
	}

	name := fmt.Sprintf("raw_response_%d.txt", time.Now().UnixNano())
	path := filepath.Join(d.diagnosticDir, name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		if d.logger != nil {
			d.logger.Warn("failed to persist diagnostic response", zap.Error(err))
		}
		return
	}

	if d.logger != nil {
		d.logger.Warn("persisted malformed LLM response",
			zap.String("path", path),
			zap.Error(cause),
		)
	}
}

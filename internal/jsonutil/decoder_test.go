package jsonutil

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

type plan struct {
	Bias string `json:"bias"`
}

func TestDecode_EmptyResponse(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	err := d.Decode("   \n\t  ", &out)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestDecode_PlainJSON(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	if err := d.Decode(`{"bias":"bullish"}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bias != "bullish" {
		t.Fatalf("got %q", out.Bias)
	}
}

func TestDecode_FencedWithLanguageTag(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	text := "```json\n{\"bias\":\"bearish\"}\n```"
	if err := d.Decode(text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bias != "bearish" {
		t.Fatalf("got %q", out.Bias)
	}
}

func TestDecode_FencedNoLanguageTag(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	text := "```\n{\"bias\":\"neutral\"}\n```"
	if err := d.Decode(text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecode_TrailingNoiseAfterObject(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	text := "{\"bias\":\"bullish\"}\n\nHope that helps! %"
	if err := d.Decode(text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecode_LeadingProseBeforeObject(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	text := "Sure, here is the plan:\n{\"bias\":\"bullish\"}"
	if err := d.Decode(text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestDecode_NeverPanics runs a corpus of synthetic adversarial responses
// and asserts the decoder always returns either success or one of the two
// documented error types — never an index/slice panic.
func TestDecode_NeverPanics(t *testing.T) {
	corpus := []string{
		"",
		"```",
		"``````",
		"```json",
		"```json\n```",
		"{",
		"}",
		"{{{{",
		"}}}}",
		"{\"bias\": \"bullish\"",        // truncated
		"{\"bias\": \"bull",              // truncated mid-string
		"```json\n{\"a\":1}\n```\n```json\n{\"b\":2}\n```", // multiple fences
		"%%%%%%%%%%",
		"null",
		"[]",
		"[1,2,3]",
		"\"just a string\"",
		"{\"nested\": {\"a\": [1,2,{\"b\":true}]}} trailing garbage here",
		string([]byte{0xff, 0xfe, 0x00}),
	}

	d := New(zap.NewNop(), t.TempDir())
	for i, text := range corpus {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("input %d panicked: %v (input=%q)", i, r, text)
				}
			}()
			var out map[string]any
			err := d.Decode(text, &out)
			if err != nil {
				var malformed *MalformedJSONError
				if !errors.Is(err, ErrEmptyResponse) && !errors.As(err, &malformed) {
					t.Fatalf("input %d returned unexpected error type: %v", i, err)
				}
			}
		}()
	}
}

func TestDecode_MalformedCarriesHeadAndTail(t *testing.T) {
	d := New(zap.NewNop(), t.TempDir())
	var out plan
	err := d.Decode("{not json at all", &out)
	var malformed *MalformedJSONError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedJSONError, got %v", err)
	}
	if malformed.Head == "" {
		t.Fatalf("expected non-empty head")
	}
}

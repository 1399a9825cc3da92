package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/llmos-bridge/bridge/pkg/config"
)

// defaultMaxOutputBytes caps what a single action may feed back to the
// model. Oversized output is a prompt-injection and cost vector both.
const defaultMaxOutputBytes = 64 * 1024

// TruncationMarker is appended whenever output is cut at the byte cap.
const TruncationMarker = "\n[output truncated]"

// injectionMotifs are phrases that, appearing inside tool output, try to
// address the model directly. They are neutralised, not removed, so the
// model still sees that something was there.
var injectionMotifs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)disregard (all )?(prior|previous|your) instructions`),
	regexp.MustCompile(`(?i)you are now`),
	regexp.MustCompile(`(?i)system prompt\s*:`),
	regexp.MustCompile(`(?i)new instructions\s*:`),
	regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|instructions)\s*>`),
}

var invisibleRunPattern = regexp.MustCompile(`[\x{200b}\x{200c}\x{200d}\x{2060}\x{feff}\x{202e}\x{202d}]`)

// Sanitizer normalises and bounds module output before it reaches the
// model or the template resolver. Sanitisation is applied to results,
// never to stored raw output.
type Sanitizer struct {
	maxBytes int
}

// NewSanitizer creates a sanitizer from configuration.
func NewSanitizer(cfg *config.SanitizerConfig) *Sanitizer {
	maxBytes := defaultMaxOutputBytes
	if cfg != nil && cfg.MaxOutputBytes > 0 {
		maxBytes = cfg.MaxOutputBytes
	}
	return &Sanitizer{maxBytes: maxBytes}
}

// Sanitize returns the model-safe form of raw module output.
func (s *Sanitizer) Sanitize(raw string) string {
	out := norm.NFKC.String(raw)
	out = invisibleRunPattern.ReplaceAllString(out, "")
	for _, motif := range injectionMotifs {
		out = motif.ReplaceAllStringFunc(out, neutralize)
	}
	if len(out) > s.maxBytes {
		out = truncateUTF8(out, s.maxBytes) + TruncationMarker
	}
	return out
}

// neutralize wraps a motif so it reads as quoted data, not an address to
// the model.
func neutralize(match string) string {
	return "[filtered: " + strings.ToLower(match) + "]"
}

// truncateUTF8 cuts at the byte cap without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}

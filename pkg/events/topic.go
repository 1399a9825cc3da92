package events

import (
	"fmt"
	"regexp"
	"strings"
)

// CompilePattern turns an MQTT-style topic pattern into a regexp.
// Normalisation: "/" separators become "."; "*" matches one segment
// ([^.]+); a trailing "#" matches zero or more segments.
//
// "#" anywhere other than the final segment is invalid.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	normalized := strings.ReplaceAll(pattern, "/", ".")
	if normalized == "" {
		return nil, fmt.Errorf("empty topic pattern")
	}

	segments := strings.Split(normalized, ".")
	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		switch seg {
		case "#":
			if i != len(segments)-1 {
				return nil, fmt.Errorf("invalid pattern %q: # only allowed as the final segment", pattern)
			}
			if i == 0 {
				// Bare "#" matches everything.
				return regexp.MustCompile(`^.+$`), nil
			}
			// Trailing #: the preceding segments plus zero or more.
			expr := "^" + strings.Join(parts, `\.`) + `(\..+)?$`
			return regexp.Compile(expr)
		case "*":
			parts = append(parts, `[^.]+`)
		case "":
			return nil, fmt.Errorf("invalid pattern %q: empty segment", pattern)
		default:
			parts = append(parts, regexp.QuoteMeta(seg))
		}
	}
	return regexp.Compile("^" + strings.Join(parts, `\.`) + "$")
}

// NormalizeTopic converts slash separators to dots.
func NormalizeTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

package tickets

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultPrefix      = "TKT-"
	DefaultNumberWidth = 5
)

// ExtractTicketNumber finds the first <prefix><digits> token in subject,
// case-insensitively and unanchored, and returns it with the configured prefix.
func ExtractTicketNumber(subject, prefix string) (string, bool) {
	if prefix == "" || subject == "" {
		return "", false
	}
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + `(\d+)`)
	match := pattern.FindStringSubmatch(subject)
	if match == nil {
		return "", false
	}
	return prefix + match[1], true
}

func FormatTicketNumber(prefix string, width int, n int64) string {
	if width <= 0 {
		width = DefaultNumberWidth
	}
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

package assignment

import (
	"errors"
	"regexp"
	"strings"
)

const labelPrefix = "Assigned to "

// ErrInvalidUsername rejects names the label encoding cannot carry.
var ErrInvalidUsername = errors.New("assignment: username must be non-empty and must not contain a comma")

var labelPattern = regexp.MustCompile(`Assigned to (.*)`)

// FormatLabel renders "Assigned to A, B" from names, de-duplicated in order
// of first appearance. No names renders the empty label.
func FormatLabel(names []string) string {
	names = dedupe(names)
	if len(names) == 0 {
		return ""
	}
	return labelPrefix + strings.Join(names, ", ")
}

// ParseLabel recovers the names from a label. Error labels and empty labels
// carry no names.
func ParseLabel(label string) []string {
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return nil
	}
	return dedupe(strings.Split(m[1], ","))
}

// ErrorLabel is written in place of the label when an assignment fails.
func ErrorLabel(msg string) string {
	return "Error: " + msg
}

func validUsername(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.Contains(name, ",")
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

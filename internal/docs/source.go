package docs

import (
	"strconv"
	"strings"
)

// TargetIDFromSource extracts the watched target ID from a crawl log source
// tag. Accepted forms are "tid:<id>", "tid:<id>:<seed>", "WTID:<id>" and a
// bare number.
func TargetIDFromSource(source string) (int64, bool) {
	source = strings.TrimSpace(source)
	if source == "" || source == "-" {
		return 0, false
	}
	raw := source
	if prefix, rest, ok := strings.Cut(source, ":"); ok {
		switch strings.ToLower(prefix) {
		case "tid", "wtid":
			raw, _, _ = strings.Cut(rest, ":")
		default:
			return 0, false
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

package strategy

import (
	"fmt"
	"strconv"
	"strings"
)

// Broker comment fields are length-limited, so position comments carry a
// numeric catalog key instead of the strategy name. The key encoding keeps
// every strategy unambiguous regardless of how short the comment field is.

// CommentFor encodes the strategy name into a position comment.
func CommentFor(name string) string {
	for i, s := range Catalog {
		if s.Name == name {
			return fmt.Sprintf("key-%d-bot", i)
		}
	}
	return "key--bot"
}

// NameFromComment decodes a position comment back into the strategy name.
// Returns "" for manual positions or foreign comments.
func NameFromComment(comment string) string {
	comment = strings.TrimSpace(comment)
	if !strings.HasPrefix(comment, "key-") || !strings.Contains(comment, "-bot") {
		return ""
	}
	parts := strings.Split(comment, "-")
	if len(parts) < 3 {
		return ""
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 || idx >= len(Catalog) {
		return ""
	}
	return Catalog[idx].Name
}

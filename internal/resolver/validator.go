package resolver

import (
	"fmt"
	"regexp"
	"strings"
)

// indexOnlyPattern matches placeholders that are purely an array indexer,
// e.g. [3] or [*], which can never select anything from the root object.
var indexOnlyPattern = regexp.MustCompile(`^\[(\d+|\*)\]$`)

// ValidateTemplate is the strict authoring-time guard for message
// templates. It is never consulted while rendering a message; Substitute
// stays lenient so a stale template degrades instead of failing delivery.
func ValidateTemplate(template string) []string {
	var issues []string

	if strings.Count(template, "{") != strings.Count(template, "}") {
		issues = append(issues, "mismatched '{' and '}' counts")
	}

	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		path := strings.TrimSpace(match[1])
		issues = append(issues, validatePath(path)...)
	}
	return issues
}

func validatePath(path string) []string {
	var issues []string

	if path == "" {
		return []string{"empty placeholder"}
	}
	if len(path) < 2 {
		issues = append(issues, fmt.Sprintf("placeholder %q is too short", path))
	}
	if indexOnlyPattern.MatchString(path) {
		issues = append(issues, fmt.Sprintf("placeholder %q is only an array index", path))
	}
	if strings.HasSuffix(path, ".") {
		issues = append(issues, fmt.Sprintf("placeholder %q ends in a dot", path))
	}
	if issue := checkBrackets(path); issue != "" {
		issues = append(issues, fmt.Sprintf("placeholder %q %s", path, issue))
	}
	return issues
}

func checkBrackets(path string) string {
	depth := 0
	for _, r := range path {
		switch r {
		case '[':
			depth++
			if depth > 1 {
				return "has nested square brackets"
			}
		case ']':
			depth--
			if depth < 0 {
				return "has an unmatched ']'"
			}
		}
	}
	if depth != 0 {
		return "has an unmatched '['"
	}
	for _, seg := range strings.Split(path, ".") {
		if strings.Count(seg, "[") > 1 {
			return "has more than one indexer in a segment"
		}
	}
	return ""
}

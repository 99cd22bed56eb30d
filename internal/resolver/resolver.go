// Package resolver evaluates placeholder path expressions against nested
// object graphs and renders {{path}} templates for outbound messages.
package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// placeholderPattern deliberately matches only non-brace content so a
// malformed template cannot trigger catastrophic backtracking.
var placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// segment is one dot-separated step of a path expression. index is -1
// unless the segment carries an [N] indexer; wildcard marks [*].
type segment struct {
	key      string
	index    int
	wildcard bool
}

func parseSegment(raw string) (segment, bool) {
	seg := segment{key: raw, index: -1}
	open := strings.IndexByte(raw, '[')
	if open < 0 {
		return seg, raw != ""
	}
	if !strings.HasSuffix(raw, "]") || open == 0 {
		return segment{}, false
	}
	inner := raw[open+1 : len(raw)-1]
	// one indexer per segment, nothing nested
	if strings.ContainsAny(inner, "[]") {
		return segment{}, false
	}
	seg.key = raw[:open]
	if inner == "*" {
		seg.wildcard = true
		return seg, true
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return segment{}, false
	}
	seg.index = n
	return seg, true
}

func parsePath(path string) ([]segment, bool) {
	parts := strings.Split(path, ".")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg, ok := parseSegment(part)
		if !ok {
			return nil, false
		}
		segments = append(segments, seg)
	}
	return segments, true
}

// Resolve evaluates a path expression against data and returns every value
// it selects. Missing keys, non-object intermediates and out-of-range
// indexes silently contribute nothing; a malformed path resolves to no
// values rather than an error.
func Resolve(path string, data any) []any {
	segments, ok := parsePath(strings.TrimSpace(path))
	if !ok {
		return nil
	}
	return evaluate(segments, data)
}

func evaluate(segments []segment, data any) []any {
	working := []any{data}
	for _, seg := range segments {
		next := make([]any, 0, len(working))
		for _, item := range working {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			value, ok := obj[seg.key]
			if !ok {
				continue
			}
			switch {
			case seg.wildcard:
				arr, ok := value.([]any)
				if !ok {
					continue
				}
				next = append(next, arr...)
			case seg.index >= 0:
				arr, ok := value.([]any)
				if !ok || seg.index >= len(arr) {
					continue
				}
				next = append(next, arr[seg.index])
			default:
				next = append(next, value)
			}
		}
		working = next
	}

	results := working[:0]
	for _, v := range working {
		if v != nil {
			results = append(results, v)
		}
	}
	if len(results) == 0 {
		return nil
	}
	return results
}

// Substitute replaces every {{path}} occurrence in template with the
// values resolved from data, joined by ", " when a path selects several.
// Rendering is lenient: an unresolvable path becomes the empty string so a
// missing optional field never breaks the whole message.
func Substitute(template string, data any) string {
	parsed := map[string][]segment{}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		segments, cached := parsed[path]
		if !cached {
			var ok bool
			segments, ok = parsePath(path)
			if !ok {
				segments = nil
			}
			parsed[path] = segments
		}
		if segments == nil {
			return ""
		}
		values := evaluate(segments, data)
		rendered := make([]string, 0, len(values))
		for _, v := range values {
			rendered = append(rendered, stringify(v))
		}
		return strings.Join(rendered, ", ")
	})
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Enumerate lists every resolvable leaf path in a sample object. Array
// fields are listed as field[*]; when the first element is itself an
// object its nested leaves are suggested under field[0].
func Enumerate(sample map[string]any) []string {
	var paths []string
	enumerateInto("", sample, &paths)
	return paths
}

func enumerateInto(prefix string, obj map[string]any, out *[]string) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch value := obj[key].(type) {
		case map[string]any:
			enumerateInto(full, value, out)
		case []any:
			*out = append(*out, full+"[*]")
			if len(value) > 0 {
				if first, ok := value[0].(map[string]any); ok {
					enumerateInto(full+"[0]", first, out)
				}
			}
		default:
			*out = append(*out, full)
		}
	}
}

package normalizer

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"lexroute/internal/domain"
)

// sectionIndex resolves headings and JSON keys to section keys.
type sectionIndex struct {
	byName map[string]string // normalized name -> section key
	specs  map[string]domain.SectionSpec
}

func newSectionIndex(specs []domain.SectionSpec) *sectionIndex {
	idx := &sectionIndex{
		byName: make(map[string]string),
		specs:  make(map[string]domain.SectionSpec, len(specs)),
	}
	for _, s := range specs {
		idx.specs[s.Key] = s
		for _, name := range s.Names() {
			nk := domain.NormalizeKey(name)
			if _, taken := idx.byName[nk]; !taken && nk != "" {
				idx.byName[nk] = s.Key
			}
		}
	}
	return idx
}

func (x *sectionIndex) lookup(name string) (string, bool) {
	key, ok := x.byName[domain.NormalizeKey(name)]
	return key, ok
}

// ignoredKeys are top-level keys models add that are handled elsewhere.
var ignoredKeys = map[string]bool{"disclaimer": true, "disclaimers": true}

// matchJSON maps top-level keys of obj to sections. A lone wrapper object
// such as {"legal_opinion": {...}} is unwrapped when its keys match more
// sections than the wrapper itself. Unmatched keys are returned sorted.
func (x *sectionIndex) matchJSON(obj map[string]any) (map[string]any, []string) {
	values, extras := x.matchKeys(obj)
	if len(obj) == 1 {
		for _, v := range obj {
			if inner, ok := v.(map[string]any); ok {
				if iv, ie := x.matchKeys(inner); len(iv) > len(values) {
					return iv, ie
				}
			}
		}
	}
	return values, extras
}

func (x *sectionIndex) matchKeys(obj map[string]any) (map[string]any, []string) {
	values := make(map[string]any)
	var extras []string
	for k, v := range obj {
		key, ok := x.lookup(k)
		if !ok {
			if !ignoredKeys[domain.NormalizeKey(k)] {
				extras = append(extras, k)
			}
			continue
		}
		if _, dup := values[key]; !dup || k == key {
			values[key] = v
		}
	}
	sort.Strings(extras)
	return values, extras
}

var (
	numberedHeading = regexp.MustCompile(`^\d{1,2}[.)]\s+(.+)$`)
	bulletPrefix    = regexp.MustCompile(`^(?:[-*•]|\d{1,3}[.)])\s+`)
	stepPrefix      = regexp.MustCompile(`(?i)^step\s*\d+\s*[:.)-]\s*`)
)

// matchText scans plain text for section headings. Recognized forms are
// Markdown headings, bold lines, "Title:" lines (with optional inline
// content) and numbered headings. Text before the first heading becomes the
// summary when the answer names no summary section of its own.
func (x *sectionIndex) matchText(text string) map[string]any {
	lines := make(map[string][]string)
	var (
		order    []string
		preamble []string
		current  string
	)
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if key, rest, ok := x.heading(t); ok {
			current = key
			if _, seen := lines[key]; !seen {
				order = append(order, key)
				lines[key] = nil
			}
			if rest != "" {
				lines[key] = append(lines[key], rest)
			}
			continue
		}
		item := cleanItem(t)
		if item == "" {
			continue
		}
		if current == "" {
			preamble = append(preamble, item)
		} else {
			lines[current] = append(lines[current], item)
		}
	}

	values := make(map[string]any)
	for _, key := range order {
		if len(lines[key]) == 0 {
			continue
		}
		values[key] = textValue(key, lines[key])
	}
	if _, ok := values[summaryKey]; !ok && len(values) > 0 && len(preamble) > 0 {
		if _, known := x.specs[summaryKey]; known {
			values[summaryKey] = strings.Join(preamble, " ")
		}
	}
	return values
}

// heading reports whether line is a section heading and returns any content
// that follows a "Title: content" heading.
func (x *sectionIndex) heading(line string) (key, rest string, ok bool) {
	candidate := strings.Trim(strings.TrimLeft(line, "#"), "*: ")
	if m := numberedHeading.FindStringSubmatch(candidate); m != nil {
		candidate = strings.Trim(m[1], "*: ")
	}

	if key, ok := x.lookup(candidate); ok {
		return key, "", true
	}
	// "Title: inline content"
	if i := strings.Index(candidate, ":"); i > 0 {
		if key, ok := x.lookup(strings.Trim(candidate[:i], "* ")); ok {
			return key, cleanItem(candidate[i+1:]), true
		}
	}
	return "", "", false
}

func cleanItem(s string) string {
	s = strings.TrimSpace(s)
	s = bulletPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.Trim(s, "*"))
}

// textSection is heading content for sections decoded from "Key: value"
// lines. lines keeps the original text for decoders that find no known key.
type textSection struct {
	kv    map[string]any
	lines []string
}

// textValue shapes heading content so the JSON decoders can consume it.
func textValue(key string, items []string) any {
	switch key {
	case summaryKey:
		return strings.Join(items, " ")
	case classificationKey, insightsKey, adviceKey:
		return textSection{kv: keyValues(items), lines: items}
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

// keyValues parses "Key: value" lines. Repeated keys collect into a list.
func keyValues(items []string) map[string]any {
	kv := make(map[string]any)
	for _, it := range items {
		i := strings.Index(it, ":")
		if i <= 0 || i > 40 {
			continue
		}
		k := domain.NormalizeKey(it[:i])
		v := strings.TrimSpace(it[i+1:])
		switch prev := kv[k].(type) {
		case nil:
			kv[k] = v
		case []any:
			kv[k] = append(prev, v)
		default:
			kv[k] = []any{prev, v}
		}
	}
	return kv
}

// extractJSONObject finds the outermost JSON object in text, tolerating
// code fences and surrounding prose.
func extractJSONObject(text string) (map[string]any, bool) {
	s := stripCodeFences(text)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		// Trailing prose may itself contain a brace; decode the first value only.
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		if dec.Decode(&obj) != nil {
			return nil, false
		}
	}
	return obj, len(obj) > 0
}

var codeFenceRe = regexp.MustCompile("(?si)```(?:json)?\\s*(.*?)\\s*```")

func stripCodeFences(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 && strings.Contains(m[1], "{") {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

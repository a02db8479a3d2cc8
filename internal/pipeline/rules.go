package pipeline

import (
	"regexp"
	"strings"
)

// sourceText is the line-oriented view every rule runs against.
type sourceText struct {
	text  string
	lines []string
}

func newSourceText(raw string) *sourceText {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	parts := strings.Split(text, "\n")
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = strings.TrimSpace(p)
	}
	return &sourceText{text: text, lines: lines}
}

// nonEmptyAfter returns up to n non-blank lines following index i.
func (s *sourceText) nonEmptyAfter(i, n int) []string {
	out := make([]string, 0, n)
	for j := i + 1; j < len(s.lines) && len(out) < n; j++ {
		if s.lines[j] != "" {
			out = append(out, s.lines[j])
		}
	}
	return out
}

// A rule yields a field value from the document or reports no match.
type rule interface {
	apply(src *sourceText) (string, bool)
}

// firstMatch tries rules in order; the first match wins.
func firstMatch(src *sourceText, rules ...rule) (string, bool) {
	for _, r := range rules {
		if v, ok := r.apply(src); ok {
			return v, true
		}
	}
	return "", false
}

// regexRule captures group 1 (or the whole match) of the first hit.
type regexRule struct {
	re *regexp.Regexp
}

func rx(pattern string) regexRule {
	return regexRule{re: regexp.MustCompile(pattern)}
}

func (r regexRule) apply(src *sourceText) (string, bool) {
	m := r.re.FindStringSubmatch(src.text)
	if m == nil {
		return "", false
	}
	v := m[0]
	if len(m) > 1 {
		v = m[1]
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// presenceRule yields value when the pattern occurs anywhere.
type presenceRule struct {
	re    *regexp.Regexp
	value string
}

func (r presenceRule) apply(src *sourceText) (string, bool) {
	if r.re.MatchString(src.text) {
		return r.value, true
	}
	return "", false
}

// linePrefixRule joins every line that starts with one of the prefixes.
// A prefix entry may require an extra substring on the same line.
type linePrefixRule struct {
	prefixes []linePrefix
	sep      string
}

type linePrefix struct {
	prefix   string
	contains string
}

func (r linePrefixRule) apply(src *sourceText) (string, bool) {
	var hits []string
	for _, line := range src.lines {
		for _, p := range r.prefixes {
			if strings.HasPrefix(line, p.prefix) && strings.Contains(line, p.contains) {
				hits = append(hits, line)
				break
			}
		}
	}
	if len(hits) == 0 {
		return "", false
	}
	return strings.Join(hits, r.sep), true
}

// allMatchesRule joins group 1 of every match.
type allMatchesRule struct {
	re  *regexp.Regexp
	sep string
}

func (r allMatchesRule) apply(src *sourceText) (string, bool) {
	matches := r.re.FindAllStringSubmatch(src.text, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if v := strings.TrimSpace(m[len(m)-1]); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, r.sep), true
}

// blockRule finds an anchor line and hands it plus the next follow
// non-blank lines to pick. pick decides whether the block is valid.
type blockRule struct {
	anchor *regexp.Regexp
	follow int
	pick   func(block []string) (string, bool)
}

func (r blockRule) apply(src *sourceText) (string, bool) {
	for i, line := range src.lines {
		if !r.anchor.MatchString(line) {
			continue
		}
		block := append([]string{line}, src.nonEmptyAfter(i, r.follow)...)
		if len(block) < r.follow+1 {
			continue
		}
		if v, ok := r.pick(block); ok {
			return v, true
		}
	}
	return "", false
}

// columnRule reads one column of the line following a header row, locating
// the column by the header word's position.
type columnRule struct {
	header *regexp.Regexp
	column string
}

func (r columnRule) apply(src *sourceText) (string, bool) {
	for i, line := range src.lines {
		if !r.header.MatchString(line) {
			continue
		}
		idx := indexOf(strings.Fields(line), r.column)
		next := src.nonEmptyAfter(i, 1)
		if idx < 0 || len(next) == 0 {
			continue
		}
		if fields := strings.Fields(next[0]); idx < len(fields) {
			return fields[idx], true
		}
	}
	return "", false
}

// tableRule collects rows after a header line. skip lines are dropped after
// the header; collection stops at a row whose first word has no digit.
type tableRule struct {
	header *regexp.Regexp
	skip   int
	row    func(fields []string) (string, bool)
	sep    string
}

func (r tableRule) apply(src *sourceText) (string, bool) {
	for i, line := range src.lines {
		if !r.header.MatchString(line) {
			continue
		}
		var rows []string
		for j := i + 1 + r.skip; j < len(src.lines); j++ {
			fields := strings.Fields(src.lines[j])
			if len(fields) == 0 {
				continue
			}
			if !strings.ContainsAny(fields[0], "0123456789") {
				break
			}
			if v, ok := r.row(fields); ok {
				rows = append(rows, v)
			}
		}
		if len(rows) > 0 {
			return strings.Join(rows, r.sep), true
		}
	}
	return "", false
}

func indexOf(items []string, want string) int {
	for i, it := range items {
		if it == want {
			return i
		}
	}
	return -1
}

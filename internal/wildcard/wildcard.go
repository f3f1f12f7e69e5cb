// Package wildcard implements path patterns with named `{wildcard}`
// placeholders: matching a concrete path against a pattern to extract
// bindings, and expanding a pattern with a known binding back into a path.
package wildcard

import (
	"fmt"
	"regexp"
	"strings"
)

// Binding maps wildcard names to the concrete strings captured from a match.
type Binding map[string]string

// InconsistentWildcardError reports a wildcard name bound to two different
// values within what must be a single consistent binding.
type InconsistentWildcardError struct {
	Name   string
	First  string
	Second string
}

func (e *InconsistentWildcardError) Error() string {
	return fmt.Sprintf("wildcard %q bound inconsistently: %q vs %q", e.Name, e.First, e.Second)
}

// UnboundWildcardError reports a pattern expansion that referenced a wildcard
// absent from the binding.
type UnboundWildcardError struct {
	Name    string
	Pattern string
}

func (e *UnboundWildcardError) Error() string {
	return fmt.Sprintf("wildcard %q in pattern %q has no bound value", e.Name, e.Pattern)
}

// segment is one literal or placeholder piece of a parsed pattern.
type segment struct {
	literal    string
	name       string // placeholder name, empty for literals
	constraint string // optional regexp constraint for the placeholder
}

// Pattern is a compiled path pattern. Compile once, match many times.
type Pattern struct {
	raw      string
	segments []segment
	names    []string
	re       *regexp.Regexp // nil when the pattern has no placeholders
	groups   []string       // wildcard name per capture group, parallel to re submatches
}

// Compile parses a raw pattern string. Placeholders take the form `{name}` or
// `{name,regexp}`; without a constraint a placeholder matches one or more
// characters within a single path segment (it never crosses a '/').
func Compile(raw string) (*Pattern, error) {
	p := &Pattern{raw: raw}

	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			p.segments = append(p.segments, segment{literal: rest})
			break
		}
		if open > 0 {
			p.segments = append(p.segments, segment{literal: rest[:open]})
		}
		closeIdx := matchingBrace(rest[open:])
		if closeIdx < 0 {
			return nil, fmt.Errorf("pattern %q: unclosed '{'", raw)
		}
		inner := rest[open+1 : open+closeIdx]
		rest = rest[open+closeIdx+1:]

		name, constraint := inner, ""
		if comma := strings.IndexByte(inner, ','); comma >= 0 {
			name, constraint = inner[:comma], inner[comma+1:]
		}
		if !validName(name) {
			return nil, fmt.Errorf("pattern %q: invalid wildcard name %q", raw, name)
		}
		p.segments = append(p.segments, segment{name: name, constraint: constraint})
		if !contains(p.names, name) {
			p.names = append(p.names, name)
		}
	}

	if len(p.names) == 0 {
		return p, nil
	}

	var sb strings.Builder
	sb.WriteString("\\A")
	for _, seg := range p.segments {
		if seg.name == "" {
			sb.WriteString(regexp.QuoteMeta(seg.literal))
			continue
		}
		constraint := seg.constraint
		if constraint == "" {
			constraint = "[^/]+?"
		}
		fmt.Fprintf(&sb, "(%s)", constraint)
		p.groups = append(p.groups, seg.name)
	}
	sb.WriteString("\\z")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: bad wildcard constraint: %w", raw, err)
	}
	p.re = re
	return p, nil
}

// MustCompile is Compile that panics on error, for static patterns in tests.
func MustCompile(raw string) *Pattern {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Names returns the distinct wildcard names, in order of first appearance.
func (p *Pattern) Names() []string { return p.names }

// HasWildcards reports whether the pattern contains any placeholder.
func (p *Pattern) HasWildcards() bool { return len(p.names) > 0 }

// Match matches a concrete path against the pattern. The boolean is false
// when the path does not fit the pattern's shape; that is an expected outcome
// during rule search, not an error. The error is non-nil only when the path
// does match shape-wise but binds the same wildcard name to different values.
func (p *Pattern) Match(path string) (Binding, bool, error) {
	if p.re == nil {
		if path == p.raw {
			return Binding{}, true, nil
		}
		return nil, false, nil
	}

	sub := p.re.FindStringSubmatch(path)
	if sub == nil {
		return nil, false, nil
	}

	binding := make(Binding, len(p.names))
	for i, name := range p.groups {
		value := sub[i+1]
		if prev, ok := binding[name]; ok {
			if prev != value {
				return nil, false, &InconsistentWildcardError{Name: name, First: prev, Second: value}
			}
			continue
		}
		binding[name] = value
	}
	return binding, true, nil
}

// Expand substitutes the binding into the pattern, producing a concrete path.
// Every wildcard in the pattern must be bound.
func (p *Pattern) Expand(binding Binding) (string, error) {
	if p.re == nil {
		return p.raw, nil
	}
	var sb strings.Builder
	for _, seg := range p.segments {
		if seg.name == "" {
			sb.WriteString(seg.literal)
			continue
		}
		value, ok := binding[seg.name]
		if !ok {
			return "", &UnboundWildcardError{Name: seg.name, Pattern: p.raw}
		}
		sb.WriteString(value)
	}
	return sb.String(), nil
}

// matchingBrace returns the index of the '}' closing the '{' at s[0],
// honoring nested braces inside regexp constraints like {n,\d{4}}.
func matchingBrace(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Package transform implements GNU tar's --transform name-rewriting
// rule: a sed-like "s/REGEX/REPLACE/FLAGS" expression applied to every
// archive member name, supporting the 'g' (global) and numeric
// occurrence flags and backreferences in REPLACE. The expression is
// compiled once into a Rule and replayed for every archive member name.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rule is one compiled "s/REGEX/REPLACE/FLAGS" expression.
type Rule struct {
	re       *regexp.Regexp
	replace  string
	global   bool
	occurrence int // 1-based; 0 means "first" (equivalent to occurrence 1)
}

// Parse compiles a sed-like expression of the form "s/REGEX/REPLACE/FLAGS".
// The delimiter need not be '/'; the first character after the leading
// 's' is taken as the delimiter, matching sed and GNU tar's own syntax.
func Parse(expr string) (*Rule, error) {
	if len(expr) < 2 || expr[0] != 's' {
		return nil, fmt.Errorf("transform: expression must start with 's<delim>'")
	}
	delim := expr[1]
	parts := splitUnescaped(expr[2:], delim)
	if len(parts) != 3 {
		return nil, fmt.Errorf("transform: expected exactly two %q delimiters", delim)
	}
	pattern, replace, flags := parts[0], parts[1], parts[2]

	r := &Rule{replace: replace}
	for _, f := range flags {
		switch f {
		case 'g':
			r.global = true
		case 'i':
			pattern = "(?i)" + pattern
		default:
			if f >= '0' && f <= '9' {
				n, _ := strconv.Atoi(string(f))
				r.occurrence = n
			} else {
				return nil, fmt.Errorf("transform: unknown flag %q", f)
			}
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("transform: bad regular expression: %w", err)
	}
	r.re = re
	return r, nil
}

// splitUnescaped splits s on delim, honoring a backslash escape of the
// delimiter itself.
func splitUnescaped(s string, delim byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == delim {
			cur.WriteByte(delim)
			i++
			continue
		}
		if s[i] == delim {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	parts = append(parts, cur.String())
	return parts
}

// Apply rewrites name per the rule: the first match only, unless the
// 'g' flag was given, in which case every non-overlapping match is
// rewritten. An explicit numeric-occurrence flag rewrites only that
// (1-based) match.
func (r *Rule) Apply(name string) string {
	if r.occurrence > 0 {
		count := 0
		return r.re.ReplaceAllStringFunc(name, func(m string) string {
			count++
			if count != r.occurrence {
				return m
			}
			return r.expand(m)
		})
	}
	if r.global {
		return r.re.ReplaceAllString(name, r.goReplace())
	}
	loc := r.re.FindStringSubmatchIndex(name)
	if loc == nil {
		return name
	}
	result := r.re.ExpandString(nil, r.goReplace(), name, loc)
	return name[:loc[0]] + string(result) + name[loc[1]:]
}

func (r *Rule) expand(match string) string {
	sub := r.re.FindStringSubmatchIndex(match)
	if sub == nil {
		return match
	}
	return string(r.re.ExpandString(nil, r.goReplace(), match, sub))
}

// goReplace converts sed-style "\1" backreferences in REPLACE to Go's
// regexp "$1" template syntax.
func (r *Rule) goReplace() string {
	var b strings.Builder
	s := r.replace
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			b.WriteByte('$')
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if s[i] == '$' {
			b.WriteString("$$")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

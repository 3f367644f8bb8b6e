package source

import (
	"fmt"
	"regexp"
)

// filterExpr splits "key<op>value". Keys never contain an operator character.
var filterExpr = regexp.MustCompile(`^([^=!~]+)(!=|!~|=|~)(.*)$`)

// ItemFilter is one simplestreams item filter such as "arch~(x86_64|amd64)".
type ItemFilter struct {
	Key   string
	Op    string
	Value string
	re    *regexp.Regexp
}

// ParseFilter parses key=value, key!=value, key~regex or key!~regex.
func ParseFilter(expr string) (ItemFilter, error) {
	m := filterExpr.FindStringSubmatch(expr)
	if m == nil {
		return ItemFilter{}, fmt.Errorf("invalid item filter %q: expected key=value, key!=value, key~regex or key!~regex", expr)
	}
	f := ItemFilter{Key: m[1], Op: m[2], Value: m[3]}
	if f.Op == "~" || f.Op == "!~" {
		re, err := regexp.Compile(f.Value)
		if err != nil {
			return ItemFilter{}, fmt.Errorf("invalid item filter %q: %w", expr, err)
		}
		f.re = re
	}
	return f, nil
}

// ParseFilters parses every expression, reporting the first invalid one.
func ParseFilters(exprs []string) ([]ItemFilter, error) {
	filters := make([]ItemFilter, 0, len(exprs))
	for _, e := range exprs {
		f, err := ParseFilter(e)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// Match tests the flattened item fields. A missing key compares as "".
// Regex filters match anywhere in the value.
func (f ItemFilter) Match(fields map[string]string) bool {
	v := fields[f.Key]
	switch f.Op {
	case "=":
		return v == f.Value
	case "!=":
		return v != f.Value
	case "~":
		return f.re.MatchString(v)
	case "!~":
		return !f.re.MatchString(v)
	default:
		return false
	}
}

func (f ItemFilter) String() string {
	return f.Key + f.Op + f.Value
}

func matchAll(filters []ItemFilter, fields map[string]string) bool {
	for _, f := range filters {
		if !f.Match(fields) {
			return false
		}
	}
	return true
}

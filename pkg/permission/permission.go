package permission

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies how a permission field was classified at construction.
type Kind int

const (
	KindLiteral Kind = iota
	KindWildcard
	KindPattern
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindWildcard:
		return "wildcard"
	case KindPattern:
		return "pattern"
	default:
		return "literal"
	}
}

// wildcardAlias is accepted interchangeably with "*".
const wildcardAlias = "all"

// regexMeta is the character set that promotes a field to a pattern.
const regexMeta = `.*+?[]{}()^$|\`

// matcher is a permission field with its kind resolved.
type matcher struct {
	raw  string
	kind Kind
	re   *regexp.Regexp
}

func classify(value string) Kind {
	if value == "*" || value == wildcardAlias {
		return KindWildcard
	}
	if strings.ContainsAny(value, regexMeta) {
		return KindPattern
	}
	return KindLiteral
}

// compilePattern anchors the expression so a pattern must cover the whole
// field. A value whose only metacharacter is "*" is treated as a glob and
// each star becomes ".*"; anything else is compiled as a regular expression
// as written.
func compilePattern(value string) (*regexp.Regexp, error) {
	expr := value
	if !strings.ContainsAny(value, strings.ReplaceAll(regexMeta, "*", "")) {
		expr = strings.ReplaceAll(regexp.QuoteMeta(value), `\*`, ".*")
	}
	return regexp.Compile("^(?:" + expr + ")$")
}

func newMatcher(value string) (matcher, error) {
	m := matcher{raw: value, kind: classify(value)}
	if m.kind == KindPattern {
		re, err := compilePattern(value)
		if err != nil {
			return matcher{}, fmt.Errorf("invalid pattern %q: %w", value, err)
		}
		m.re = re
	}
	return m, nil
}

// matches reports whether two fields satisfy each other. A wildcard on either
// side always matches; a pattern on either side matches the other's raw value.
func (m matcher) matches(other matcher) bool {
	if m.kind == KindWildcard || other.kind == KindWildcard {
		return true
	}
	if m.kind == KindPattern && m.re.MatchString(other.raw) {
		return true
	}
	if other.kind == KindPattern && other.re.MatchString(m.raw) {
		return true
	}
	return m.raw == other.raw
}

// Permission is an immutable (action, resource, conditions) triple. Construct
// one with New or MustNew; the zero value matches nothing.
type Permission struct {
	action     matcher
	resource   matcher
	conditions map[string]any
	key        string
}

// New builds a permission. Action and resource are lower-cased before
// classification. A field that classifies as a pattern but fails to compile
// is rejected.
func New(action, resource string, conditions map[string]any) (Permission, error) {
	am, err := newMatcher(strings.ToLower(strings.TrimSpace(action)))
	if err != nil {
		return Permission{}, fmt.Errorf("action: %w", err)
	}
	rm, err := newMatcher(strings.ToLower(strings.TrimSpace(resource)))
	if err != nil {
		return Permission{}, fmt.Errorf("resource: %w", err)
	}
	var conds map[string]any
	if len(conditions) > 0 {
		conds = make(map[string]any, len(conditions))
		for k, v := range conditions {
			conds[k] = v
		}
	}
	p := Permission{action: am, resource: rm, conditions: conds}
	p.key = buildKey(am.raw, rm.raw, conds)
	return p, nil
}

// MustNew is New for statically known permissions; it panics on error.
func MustNew(action, resource string, conditions map[string]any) Permission {
	p, err := New(action, resource, conditions)
	if err != nil {
		panic(err)
	}
	return p
}

// NewQuery builds a permission for the query side of a check. It never fails:
// a field that looks like a pattern but does not compile falls back to a
// literal, so malformed caller input can only fail to match.
func NewQuery(action, resource string) Permission {
	p, err := New(action, resource, nil)
	if err == nil {
		return p
	}
	am := matcher{raw: strings.ToLower(strings.TrimSpace(action)), kind: KindLiteral}
	rm := matcher{raw: strings.ToLower(strings.TrimSpace(resource)), kind: KindLiteral}
	return Permission{action: am, resource: rm, key: buildKey(am.raw, rm.raw, nil)}
}

func buildKey(action, resource string, conditions map[string]any) string {
	if len(conditions) == 0 {
		return action + "|" + resource
	}
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, conditions[k]))
	}
	return action + "|" + resource + "|" + strings.Join(parts, ",")
}

// Action returns the normalized action field.
func (p Permission) Action() string { return p.action.raw }

// Resource returns the normalized resource field.
func (p Permission) Resource() string { return p.resource.raw }

// ActionKind returns the classification of the action field.
func (p Permission) ActionKind() Kind { return p.action.kind }

// ResourceKind returns the classification of the resource field.
func (p Permission) ResourceKind() Kind { return p.resource.kind }

// Conditions returns a copy of the condition map.
func (p Permission) Conditions() map[string]any {
	if len(p.conditions) == 0 {
		return nil
	}
	out := make(map[string]any, len(p.conditions))
	for k, v := range p.conditions {
		out[k] = v
	}
	return out
}

// Key returns the hashable identity (action, resource, conditions), suitable
// for set membership.
func (p Permission) Key() string { return p.key }

// String returns "action:resource".
func (p Permission) String() string {
	return p.action.raw + ":" + p.resource.raw
}

// IsZero reports whether p was not built through a constructor.
func (p Permission) IsZero() bool { return p.key == "" }

// Exactness orders permissions for evaluation: both fields literal first,
// then wildcard-bearing, then pattern-bearing.
func (p Permission) Exactness() Kind {
	if p.action.kind == KindPattern || p.resource.kind == KindPattern {
		return KindPattern
	}
	if p.action.kind == KindWildcard || p.resource.kind == KindWildcard {
		return KindWildcard
	}
	return KindLiteral
}

// Matches reports whether both fields of p and q satisfy each other.
// Conditions do not participate in matching; they travel with the grant for
// callers that evaluate them downstream.
func (p Permission) Matches(q Permission) bool {
	if p.IsZero() || q.IsZero() {
		return false
	}
	return p.action.matches(q.action) && p.resource.matches(q.resource)
}

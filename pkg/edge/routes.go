package edge

import (
	"fmt"
	"regexp"
	"strings"
)

// Tier is a route's sensitivity classification. It controls which credential
// a request needs before the handler runs.
type Tier string

const (
	// TierPublic skips authentication entirely.
	TierPublic Tier = "public"

	// TierAuthenticated requires any verified user identity.
	TierAuthenticated Tier = "authenticated"

	// TierSensitive requires a verified user identity plus the rule's
	// scopes, roles or permission.
	TierSensitive Tier = "sensitive"

	// TierAdmin is TierSensitive plus whatever the MFA policy demands.
	TierAdmin Tier = "admin"

	// TierInternal requires a verified service token targeting this
	// service.
	TierInternal Tier = "internal"
)

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierPublic, TierAuthenticated, TierSensitive, TierAdmin, TierInternal:
		return true
	}
	return false
}

// Rule classifies requests matching a (path, method) pattern. Path patterns
// are literals, prefix globs with a trailing "*" (e.g. "/api/admin/*"), or
// regular expressions (detected by metacharacters, anchored on both ends).
// Method patterns are "*" or a pipe-separated verb list ("GET|HEAD").
type Rule struct {
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method" yaml:"method"`
	Tier   Tier   `json:"tier" yaml:"tier"`

	// RequiredScopes must all be granted by the credential. Enforced on
	// any user tier the rule declares them for.
	RequiredScopes []string `json:"required_scopes,omitempty" yaml:"required_scopes,omitempty"`

	// RequiredRoles is satisfied by holding any one listed role.
	RequiredRoles []string `json:"required_roles,omitempty" yaml:"required_roles,omitempty"`

	// RequiredPermission is an "action:resource" pair evaluated against
	// the caller's roles through the role checker.
	RequiredPermission string `json:"required_permission,omitempty" yaml:"required_permission,omitempty"`

	// RequiredOperations are the operations a service token must carry
	// (internal tier).
	RequiredOperations []string `json:"required_operations,omitempty" yaml:"required_operations,omitempty"`
}

type pathKind int

const (
	pathLiteral pathKind = iota
	pathPrefix
	pathRegex
)

type compiledRule struct {
	rule    Rule
	kind    pathKind
	literal string
	prefix  string
	pattern *regexp.Regexp
	methods map[string]struct{}
}

// pathMeta reports whether a path pattern needs regex treatment once the
// trailing-glob form is ruled out.
func pathMeta(p string) bool {
	return regexp.QuoteMeta(p) != p
}

func compileRule(r Rule) (compiledRule, error) {
	if !r.Tier.Valid() {
		return compiledRule{}, fmt.Errorf("edge: rule %q: unknown tier %q", r.Path, r.Tier)
	}
	if r.Path == "" {
		return compiledRule{}, fmt.Errorf("edge: rule with empty path")
	}
	if r.RequiredPermission != "" {
		action, resource, ok := strings.Cut(r.RequiredPermission, ":")
		if !ok || action == "" || resource == "" {
			return compiledRule{}, fmt.Errorf("edge: rule %q: permission %q is not action:resource", r.Path, r.RequiredPermission)
		}
	}

	c := compiledRule{rule: r}
	switch {
	case strings.HasSuffix(r.Path, "*") && !pathMeta(strings.TrimSuffix(r.Path, "*")):
		c.kind = pathPrefix
		c.prefix = strings.TrimSuffix(r.Path, "*")
	case pathMeta(r.Path):
		re, err := regexp.Compile("^(?:" + r.Path + ")$")
		if err != nil {
			return compiledRule{}, fmt.Errorf("edge: rule %q: %w", r.Path, err)
		}
		c.kind = pathRegex
		c.pattern = re
	default:
		c.kind = pathLiteral
		c.literal = r.Path
	}

	method := strings.TrimSpace(r.Method)
	if method != "" && method != "*" {
		c.methods = make(map[string]struct{})
		for _, m := range strings.Split(method, "|") {
			m = strings.ToUpper(strings.TrimSpace(m))
			if m == "" {
				return compiledRule{}, fmt.Errorf("edge: rule %q: empty method in %q", r.Path, r.Method)
			}
			c.methods[m] = struct{}{}
		}
	}
	return c, nil
}

func (c *compiledRule) matches(method, path string) bool {
	if c.methods != nil {
		if _, ok := c.methods[strings.ToUpper(method)]; !ok {
			return false
		}
	}
	switch c.kind {
	case pathLiteral:
		return path == c.literal
	case pathPrefix:
		return strings.HasPrefix(path, c.prefix)
	default:
		return c.pattern.MatchString(path)
	}
}

// RouteTable maps requests to sensitivity tiers. Rules are evaluated in the
// order given and the first match wins; requests matching nothing get the
// default tier.
type RouteTable struct {
	rules       []compiledRule
	defaultTier Tier
}

// NewRouteTable compiles rules into a table. An invalid tier, path pattern
// or method pattern fails construction.
func NewRouteTable(defaultTier Tier, rules ...Rule) (*RouteTable, error) {
	if !defaultTier.Valid() {
		return nil, fmt.Errorf("edge: unknown default tier %q", defaultTier)
	}
	t := &RouteTable{defaultTier: defaultTier}
	for _, r := range rules {
		c, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		t.rules = append(t.rules, c)
	}
	return t, nil
}

// MustNewRouteTable is NewRouteTable for static tables known to be valid.
func MustNewRouteTable(defaultTier Tier, rules ...Rule) *RouteTable {
	t, err := NewRouteTable(defaultTier, rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Match returns the first rule matching (method, path), or a synthetic rule
// carrying the default tier.
func (t *RouteTable) Match(method, path string) Rule {
	for i := range t.rules {
		if t.rules[i].matches(method, path) {
			return t.rules[i].rule
		}
	}
	return Rule{Path: path, Method: method, Tier: t.defaultTier}
}

// DefaultTier returns the tier applied to unmatched requests.
func (t *RouteTable) DefaultTier() Tier { return t.defaultTier }

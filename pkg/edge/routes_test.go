package edge

import (
	"testing"
)

func TestRouteTableMatch(t *testing.T) {
	table := MustNewRouteTable(TierAuthenticated,
		Rule{Path: "/healthz", Tier: TierPublic},
		Rule{Path: "/api/auth/login", Method: "POST", Tier: TierPublic},
		Rule{Path: "/api/admin/keys", Tier: TierSensitive},
		Rule{Path: "/api/admin/*", Tier: TierAdmin, RequiredRoles: []string{"admin"}},
		Rule{Path: "/api/billing/.+/invoices", Tier: TierSensitive, RequiredScopes: []string{"read:billing"}},
		Rule{Path: "/internal/sync", Method: "POST|PUT", Tier: TierInternal},
	)

	tests := []struct {
		name   string
		method string
		path   string
		want   Tier
	}{
		{"literal", "GET", "/healthz", TierPublic},
		{"literal with method", "POST", "/api/auth/login", TierPublic},
		{"method mismatch falls through", "GET", "/api/auth/login", TierAuthenticated},
		{"prefix glob", "DELETE", "/api/admin/users/42", TierAdmin},
		{"glob needs a suffix", "GET", "/api/admin", TierAuthenticated},
		{"first match wins", "GET", "/api/admin/keys", TierSensitive},
		{"regex", "GET", "/api/billing/acct-7/invoices", TierSensitive},
		{"regex anchored at both ends", "GET", "/api/billing/acct-7/invoices/9", TierAuthenticated},
		{"pipe separated methods", "PUT", "/internal/sync", TierInternal},
		{"method matching ignores case", "put", "/internal/sync", TierInternal},
		{"unlisted method on pipe rule", "DELETE", "/internal/sync", TierAuthenticated},
		{"unmatched path gets default", "GET", "/api/unknown", TierAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Match(tt.method, tt.path)
			if got.Tier != tt.want {
				t.Errorf("Match(%s %s).Tier = %q, want %q", tt.method, tt.path, got.Tier, tt.want)
			}
		})
	}
}

func TestRouteTableMatchReturnsRule(t *testing.T) {
	table := MustNewRouteTable(TierAuthenticated,
		Rule{Path: "/api/reports/*", Tier: TierSensitive, RequiredScopes: []string{"read:reports"}, RequiredPermission: "read:reports"},
	)

	got := table.Match("GET", "/api/reports/q3")
	if got.Tier != TierSensitive {
		t.Fatalf("Tier = %q, want %q", got.Tier, TierSensitive)
	}
	if len(got.RequiredScopes) != 1 || got.RequiredScopes[0] != "read:reports" {
		t.Errorf("RequiredScopes = %v, want [read:reports]", got.RequiredScopes)
	}
	if got.RequiredPermission != "read:reports" {
		t.Errorf("RequiredPermission = %q, want %q", got.RequiredPermission, "read:reports")
	}

	unmatched := table.Match("GET", "/other")
	if unmatched.Tier != TierAuthenticated {
		t.Errorf("unmatched Tier = %q, want default %q", unmatched.Tier, TierAuthenticated)
	}
	if len(unmatched.RequiredScopes) != 0 {
		t.Errorf("unmatched rule carries scopes %v", unmatched.RequiredScopes)
	}
}

func TestNewRouteTableRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name        string
		defaultTier Tier
		rule        Rule
	}{
		{"unknown tier", TierAuthenticated, Rule{Path: "/x", Tier: "vip"}},
		{"empty path", TierAuthenticated, Rule{Path: "", Tier: TierPublic}},
		{"bad regex", TierAuthenticated, Rule{Path: "/api/(", Tier: TierPublic}},
		{"empty method in list", TierAuthenticated, Rule{Path: "/x", Method: "GET||PUT", Tier: TierPublic}},
		{"permission missing resource", TierAuthenticated, Rule{Path: "/x", Tier: TierSensitive, RequiredPermission: "manage"}},
		{"permission empty action", TierAuthenticated, Rule{Path: "/x", Tier: TierSensitive, RequiredPermission: ":users"}},
		{"unknown default tier", "guest", Rule{Path: "/x", Tier: TierPublic}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRouteTable(tt.defaultTier, tt.rule); err == nil {
				t.Errorf("NewRouteTable accepted %+v", tt.rule)
			}
		})
	}
}

func TestTierValid(t *testing.T) {
	for _, tier := range []Tier{TierPublic, TierAuthenticated, TierSensitive, TierAdmin, TierInternal} {
		if !tier.Valid() {
			t.Errorf("%q.Valid() = false", tier)
		}
	}
	if Tier("root").Valid() {
		t.Error(`Tier("root").Valid() = true`)
	}
}

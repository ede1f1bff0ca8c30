package token

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
)

// ServiceIdentity is one registered service. Service tokens can only be
// issued by a registered identity and only verify while the issuer stays
// registered, so deregistration revokes outstanding tokens instantly.
type ServiceIdentity struct {
	ServiceName       string    `json:"service_name"`
	IdentityID        string    `json:"identity_id"`
	AllowedTargets    []string  `json:"allowed_targets"`
	AllowedOperations []string  `json:"allowed_operations"`
	CreatedAt         time.Time `json:"created_at"`
}

func (i *ServiceIdentity) clone() *ServiceIdentity {
	out := *i
	out.AllowedTargets = append([]string(nil), i.AllowedTargets...)
	out.AllowedOperations = append([]string(nil), i.AllowedOperations...)
	return &out
}

// RegisterService registers a service identity with its target and operation
// allowlists. Registering an existing name replaces the registration under a
// fresh identity id.
func (s *Service) RegisterService(ctx context.Context, name string, allowedTargets, allowedOperations []string) (*ServiceIdentity, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: empty service name", ErrServiceNotRegistered)
	}
	identity := &ServiceIdentity{
		ServiceName:       name,
		IdentityID:        uuid.NewString(),
		AllowedTargets:    normalizeSet(allowedTargets),
		AllowedOperations: normalizeSet(allowedOperations),
		CreatedAt:         s.clock(),
	}

	s.mu.Lock()
	s.services[name] = identity
	s.mu.Unlock()

	s.audit.LogCredential(ctx, audit.EventTypeServiceRegistered, name, audit.ResourceTypeService, identity.IdentityID, audit.EventStatusSuccess, "service registered")
	return identity.clone(), nil
}

// DeregisterService removes a service identity. Outstanding tokens it issued
// stop verifying immediately.
func (s *Service) DeregisterService(ctx context.Context, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))

	s.mu.Lock()
	identity, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrServiceNotRegistered, name)
	}
	delete(s.services, name)
	s.mu.Unlock()

	s.audit.LogCredential(ctx, audit.EventTypeServiceDeregistered, name, audit.ResourceTypeService, identity.IdentityID, audit.EventStatusSuccess, "service deregistered")
	return nil
}

// ServiceIdentityByName returns a copy of one registration.
func (s *Service) ServiceIdentityByName(name string) (*ServiceIdentity, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotRegistered, name)
	}
	return identity.clone(), nil
}

// ServiceIdentities returns copies of every registration, sorted by name.
func (s *Service) ServiceIdentities() []*ServiceIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ServiceIdentity, 0, len(s.services))
	for _, identity := range s.services {
		out = append(out, identity.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out
}

// IssueServiceToken signs a short-lived token asserting issuerName's
// identity to targetService, scoped to the requested operations. The
// issuer's registration must allow the target and every operation before
// anything is signed.
func (s *Service) IssueServiceToken(ctx context.Context, issuerName, targetService string, operations []string) (string, *Claims, error) {
	issuerName = strings.ToLower(strings.TrimSpace(issuerName))
	targetService = strings.ToLower(strings.TrimSpace(targetService))
	operations = normalizeSet(operations)

	s.mu.RLock()
	identity, ok := s.services[issuerName]
	s.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrServiceNotRegistered, issuerName)
	}
	if !allowlisted(identity.AllowedTargets, targetService) {
		s.audit.LogCredential(ctx, audit.EventTypeServiceTokenDenied, issuerName, audit.ResourceTypeService, targetService, audit.EventStatusDenied, "target not in allowlist")
		return "", nil, fmt.Errorf("%w: %q -> %q", ErrTargetNotAllowed, issuerName, targetService)
	}
	for _, op := range operations {
		if !allowlisted(identity.AllowedOperations, op) {
			s.audit.LogCredential(ctx, audit.EventTypeServiceTokenDenied, issuerName, audit.ResourceTypeService, targetService, audit.EventStatusDenied, "operation "+op+" not in allowlist")
			return "", nil, fmt.Errorf("%w: %q by %q", ErrOperationNotAllowed, op, issuerName)
		}
	}

	claims := s.newClaims(TypeService, issuerName, "", s.serviceTTL)
	claims.TargetService = targetService
	claims.AllowedOperations = operations
	claims.IdentityID = identity.IdentityID

	signed, err := s.sign(ctx, claims)
	if err != nil {
		return "", nil, err
	}
	s.audit.LogCredential(ctx, audit.EventTypeServiceTokenIssued, issuerName, audit.ResourceTypeService, targetService, audit.EventStatusSuccess, "service token issued")
	return signed, claims, nil
}

// VerifyServiceToken validates a service token for the receiving side.
// expectedTarget, when non-empty, must match the token's target service.
// The token's operations must cover requiredOperations, and the issuing
// service must still be registered.
func (s *Service) VerifyServiceToken(ctx context.Context, tokenString, expectedTarget string, requiredOperations []string) (*Claims, error) {
	claims, err := s.verify(ctx, tokenString)
	if err != nil {
		s.audit.LogAuthentication(ctx, audit.EventTypeTokenVerifyFailed, "", audit.EventStatusFailure, err.Error())
		return nil, err
	}
	if claims.TokenType != TypeService {
		return nil, fmt.Errorf("%w: %q presented as service token", ErrWrongTokenType, claims.TokenType)
	}
	if expectedTarget != "" && claims.TargetService != strings.ToLower(strings.TrimSpace(expectedTarget)) {
		s.audit.LogCredential(ctx, audit.EventTypeServiceTokenDenied, claims.Subject, audit.ResourceTypeService, claims.TargetService, audit.EventStatusDenied, "token targets a different service")
		return nil, fmt.Errorf("%w: token for %q verified by %q", ErrTargetNotAllowed, claims.TargetService, expectedTarget)
	}
	for _, op := range requiredOperations {
		if !allowlisted(claims.AllowedOperations, strings.ToLower(strings.TrimSpace(op))) {
			s.audit.LogCredential(ctx, audit.EventTypeServiceTokenDenied, claims.Subject, audit.ResourceTypeService, claims.TargetService, audit.EventStatusDenied, "token lacks operation "+op)
			return nil, fmt.Errorf("%w: %q", ErrOperationNotAllowed, op)
		}
	}

	s.mu.RLock()
	_, registered := s.services[claims.Subject]
	s.mu.RUnlock()
	if !registered {
		s.audit.LogCredential(ctx, audit.EventTypeServiceTokenDenied, claims.Subject, audit.ResourceTypeService, claims.TargetService, audit.EventStatusDenied, "issuing service no longer registered")
		return nil, fmt.Errorf("%w: %q", ErrServiceNotRegistered, claims.Subject)
	}
	return claims, nil
}

// normalizeSet lowercases, trims, deduplicates and sorts an allowlist.
func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// allowlisted reports whether value is in the set, or the set grants "*".
func allowlisted(set []string, value string) bool {
	for _, s := range set {
		if s == value || s == "*" {
			return true
		}
	}
	return false
}

// Package token issues and verifies the signed claim sets that carry
// identity through the platform: access/refresh pairs for users and
// short-lived service tokens for service-to-service calls.
//
// # Overview
//
// Tokens are JWTs signed with HMAC keys obtained from a secrets.KeyProvider.
// Every token records the id of the key that signed it, so verification
// keeps working across a key rotation as long as the old key remains
// resolvable. Verification fails closed with a distinct sentinel per failure
// mode (ErrTokenExpired, ErrInvalidSignature, ErrInvalidAudience, ...) so
// callers can branch with errors.Is.
//
//	keys := secrets.NewStaticProvider()
//	keys.SetKey("auth", secrets.Key{ID: "k1", Secret: secret})
//
//	svc := token.NewService(keys,
//		token.WithIssuer("dotmac-auth"),
//		token.WithAccessTTL(15*time.Minute),
//	)
//
//	pair, err := svc.IssuePair(ctx, "user-42", "tenant-1",
//		[]string{"read:billing"}, []string{"user"})
//	claims, err := svc.Verify(ctx, pair.AccessToken)
//
// # Refresh Semantics
//
// A refresh token carries the same identity as its access token with a
// longer lifetime and type "refresh"; Verify accepts it, but Refresh is the
// only operation that honors it and an access token can never be replayed
// there. Each refresh token is single use: the consumed token joins the
// revocation list when its replacement pair is minted.
//
// # Service Tokens
//
// Services register an identity naming which targets they may call and
// which operations they may request. IssueServiceToken enforces both
// allowlists before signing; VerifyServiceToken re-checks the target and
// operations on the receiving side and requires the issuer to still be
// registered, so deregistering a service revokes its outstanding tokens
// without waiting for expiry.
package token

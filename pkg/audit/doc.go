// Package audit provides structured security event logging for the dotmac
// authorization core.
//
// # Overview
//
// Every credential and authorization decision that matters for forensics is
// emitted as an AuditEvent: token issuance and verification failures, role
// changes, permission denials, session lifecycle, API key usage and rate
// limit hits. The package does not choose a sink; callers wire one or more
// Logger implementations at startup.
//
// # Loggers
//
//	NewNoOpLogger   - discards everything (auditing disabled)
//	NewFileLogger   - JSON lines with size-based rotation
//	NewLogrusLogger - structured entries through a logrus logger
//	NewMultiLogger  - ordered synchronous fan-out to several sinks
//	NewAsyncLogger  - bounded-queue wrapper keeping sink latency off the
//	                  request path; engines audit under their own locks
//
// # Request Context
//
// HTTP-facing callers attach RequestInfo to the context so every event
// logged further down the call chain carries the request id, caller IP and
// route:
//
//	ctx = audit.WithRequestInfo(ctx, audit.RequestInfoFromHTTP(r, requestID))
package audit

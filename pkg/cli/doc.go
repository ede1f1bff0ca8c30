// Package cli implements the authctl command-line interface for operating
// the auth service.
//
// # Overview
//
// authctl is the operator's tool for the credential and authorization
// planes: verifying tokens, answering permission questions, moving role
// configuration between files and a running service, and reading audit
// log files.
//
// # Commands
//
// verify: Check a token against the running service
//
//	authctl verify --token "$TOKEN"
//
// check: Ask whether a user or role set holds a permission
//
//	authctl check --user usr_123 --action read --resource audit_log
//	authctl check --roles operator,auditor --action manage --resource api_key
//
// push-roles: Upload a role configuration file
//
//	authctl push-roles --file roles.yaml --token "$ADMIN_TOKEN"
//
// pull-roles: Download the live role configuration
//
//	authctl pull-roles --out roles.yaml --token "$ADMIN_TOKEN"
//
// validate: Validate a role configuration file without a server
//
//	authctl validate --file roles.yaml
//
// audit: Filter and print a JSON-lines audit log file
//
//	authctl audit --file /var/log/dotmac/audit/audit.log --type authz.access_denied
//	authctl audit --file audit.log --user usr_123 --json
//
// # Configuration
//
// Service URL:
//
//	export DOTMAC_AUTH_URL="https://auth.example.com"
//	# Or use --server flag
//
// push-roles and pull-roles hit the management plane and need an admin
// bearer token; verify and check talk to the service without one, and
// validate and audit work on local files only.
//
// # Related Packages
//
//   - pkg/api: Serves the HTTP endpoints these commands call
//   - pkg/rbac: Validates role configuration locally
//   - pkg/audit: Event schema the audit command parses
package cli

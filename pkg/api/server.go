package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/apikey"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/rbac"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/session"
	"github.com/michaelayoade/dotmac-framework-sub001/pkg/token"
)

// Server is the management API over the credential engines. Route
// protection is the caller's concern; cmd/authd wraps the router with the
// edge middleware before serving it.
type Server struct {
	router *mux.Router

	tokens   *TokenHandlers
	sessions *SessionHandlers
	apikeys  *APIKeyHandlers
	rbac     *RBACHandlers
}

// NewServer creates a management API server over the given engines and
// registers all routes.
func NewServer(tokens *token.Service, sessions *session.Manager, keys *apikey.Engine, roles *rbac.Engine) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		tokens:   NewTokenHandlers(tokens, sessions),
		sessions: NewSessionHandlers(sessions),
		apikeys:  NewAPIKeyHandlers(keys),
		rbac:     NewRBACHandlers(roles),
	}
	s.tokens.RegisterRoutes(s.router)
	s.sessions.RegisterRoutes(s.router)
	s.apikeys.RegisterRoutes(s.router)
	s.rbac.RegisterRoutes(s.router)
	return s
}

// Router exposes the underlying router so callers can attach middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

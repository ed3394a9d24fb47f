package api

import (
	"net/http"
	"strings"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/httputil"
	"github.com/storefront-labs/threadline/pkg/middleware"
)

// authResponse is the payload returned by signup and signin.
type authResponse struct {
	User  *auth.User `json:"user"`
	Token string     `json:"token"`
}

// signUp handles POST /auth/signup.
func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !strings.Contains(req.Email, "@") {
		httputil.WriteBadRequest(w, "a valid email is required")
		return
	}
	if len(req.Password) < 6 {
		httputil.WriteBadRequest(w, "password must be at least 6 characters")
		return
	}

	user, token, err := s.authSvc.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, authResponse{User: user, Token: token})
}

// signIn handles POST /auth/signin.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	user, token, err := s.authSvc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, authResponse{User: user, Token: token})
}

// checkAuth handles GET /auth/check: returns the principal the gate resolved.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"ok":   true,
		"user": middleware.Principal(r),
	})
}

// Package api wires the HTTP surface: routing, request decoding, and the
// mapping from service errors to status codes. Controllers stay thin; the
// interesting work happens in pkg/auth and pkg/catalog.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/httputil"
	"github.com/storefront-labs/threadline/pkg/middleware"
)

// Server is the API server: router plus the services the handlers call.
type Server struct {
	router  *mux.Router
	authSvc *auth.Service
	cat     *catalog.Service
	gate    *middleware.AccessGate
	log     *logrus.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(authSvc *auth.Service, cat *catalog.Service, gate *middleware.AccessGate, log *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		authSvc: authSvc,
		cat:     cat,
		gate:    gate,
		log:     log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes declares each route together with its required-role set. The
// role sets live here, next to the routes, so the authorization surface is
// readable in one place.
func (s *Server) setupRoutes() {
	s.router.Use(httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
	))

	// Auth routes
	s.router.HandleFunc("/auth/signup", s.signUp).Methods("POST")
	s.router.HandleFunc("/auth/signin", s.signIn).Methods("POST")
	s.router.Handle("/auth/check", s.gate.Require()(http.HandlerFunc(s.checkAuth))).Methods("GET")

	// Catalog routes
	s.router.Handle("/products",
		s.gate.Require(auth.RoleAdmin)(http.HandlerFunc(s.createProduct))).Methods("POST")
	s.router.HandleFunc("/products", s.listProducts).Methods("GET")
	s.router.HandleFunc("/products/{term}", s.getProduct).Methods("GET")
	s.router.Handle("/products/{id}",
		s.gate.Require(auth.RoleAdmin)(http.HandlerFunc(s.updateProduct))).Methods("PATCH")
	s.router.Handle("/products/{id}",
		s.gate.Require(auth.RoleAdmin, auth.RoleSuperUser)(http.HandlerFunc(s.deleteProduct))).Methods("DELETE")
}

// Use installs additional router middleware, e.g. metrics instrumentation.
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

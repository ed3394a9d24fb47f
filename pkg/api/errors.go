package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/httputil"
	"github.com/storefront-labs/threadline/pkg/storage"
)

// writeServiceError maps service errors onto HTTP responses. Authentication
// and authorization failures stay distinguishable from not-found; anything
// unrecognized is logged with its cause and generalized to a 500 that leaks
// nothing.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrInactiveUser):
		httputil.WriteForbidden(w, "user is inactive")
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	case errors.Is(err, storage.ErrConflict):
		httputil.WriteConflict(w, "already exists")
	case errors.Is(err, catalog.ErrUpload):
		s.log.WithError(err).Warn("image upload failed")
		httputil.WriteBadGateway(w, "image upload failed")
	default:
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("unexpected service error")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}

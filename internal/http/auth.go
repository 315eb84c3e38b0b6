package http

import (
	"net/http"

	"flowmoney/internal/auth"
	"flowmoney/internal/core"
	flowlog "flowmoney/internal/log"
)

// authed requires a valid bearer token and stores the identity in the
// request context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Verifier == nil {
			s.writeError(w, r, flowlog.ComponentAuth, flowlog.OpRead, core.ErrUnauthorized)
			return
		}
		token, err := auth.TokenFromRequest(r)
		if err != nil {
			s.writeError(w, r, flowlog.ComponentAuth, flowlog.OpRead, err)
			return
		}
		id, err := s.deps.Verifier.Verify(token)
		if err != nil {
			flowlog.FromContext(r.Context()).WithComponent(flowlog.ComponentAuth).
				DebugContext(r.Context(), "Token rejected", flowlog.FieldError, err)
			s.writeError(w, r, flowlog.ComponentAuth, flowlog.OpRead, err)
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = flowlog.NewContext(ctx, flowlog.FromContext(ctx).With(flowlog.FieldUserID, id.UserID))
		next(w, r.WithContext(ctx))
	})
}

// admin is authed plus the admin role.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		if !id.Admin {
			writeErrorCode(w, http.StatusForbidden, "forbidden", "admin role required", "")
			return
		}
		next(w, r)
	})
}

func identityFrom(r *http.Request) (auth.Identity, bool) {
	return auth.FromContext(r.Context())
}

// userID is only called behind authed.
func userID(r *http.Request) string {
	id, _ := identityFrom(r)
	return id.UserID
}

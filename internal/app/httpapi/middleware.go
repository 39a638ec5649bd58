package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/taskforge/platform/internal/auth"
)

type identityHandler func(http.ResponseWriter, *http.Request, auth.Identity)

// withIdentity resolves the caller before the handler runs. With an auth
// manager configured it requires a bearer token; without one it trusts the
// X-Actor-Id and X-Actor-Role headers, which keeps local development and
// tests tokenless.
func (h *handler) withIdentity(next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.identity(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, actor)
	}
}

func (h *handler) identity(r *http.Request) (auth.Identity, error) {
	if h.auth != nil {
		raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if raw == "" {
			return auth.Identity{}, errors.New("missing bearer token")
		}
		return h.auth.Verify(raw)
	}

	subject := r.Header.Get("X-Actor-Id")
	if subject == "" {
		return auth.Identity{}, errors.New("missing X-Actor-Id header")
	}
	role := auth.Role(r.Header.Get("X-Actor-Role"))
	switch role {
	case auth.RoleAgent, auth.RolePublisher, auth.RoleAdmin:
	case "":
		role = auth.RoleAgent
	default:
		return auth.Identity{}, errors.New("unknown role " + string(role))
	}
	return auth.Identity{Subject: subject, Role: role}, nil
}

// statusRecorder captures the response code for audit and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps the mux with request logging, audit capture and, when
// metrics are configured, HTTP counters.
func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeLabel(r.URL.Path)

		if m := h.app.Metrics; m != nil {
			m.ObserveHTTP(r.Method, route, rec.status, elapsed)
		}

		actor, _ := h.identity(r)
		kind, id, action := resourceRef(r.URL.Path)
		h.audit.add(auditEntry{
			Time:       start.UTC(),
			User:       actor.Subject,
			Role:       string(actor.Role),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			Resource:   kind,
			ResourceID: id,
			Action:     action,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})

		h.log.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": elapsed.String(),
		}).Debug("request handled")
	})
}

// routeLabel collapses resource IDs so metric cardinality stays bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 1; i < len(parts); i += 2 {
		parts[i] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

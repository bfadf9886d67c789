package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireAdminAPI protects admin endpoints with the configured API key.
// With no key configured every admin request is refused.
func (s *Server) requireAdminAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminAPIKey == "" {
			s.log.Warn("Admin API accessed but ADMIN_API_KEY not set")
			s.respondError(w, http.StatusForbidden, "forbidden", "Admin API is disabled. Set ADMIN_API_KEY to enable it.")
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}
		if !tokenMatches(token, s.config.AdminAPIKey) {
			s.log.Warn("Invalid admin API key attempt", "remote_addr", r.RemoteAddr)
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireCronSecret authenticates the time-driven trigger. A missing secret
// means the trigger is not configured, which is reported as unavailable.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cronSecret == "" {
			s.log.Error("Scheduled generation called but CRON_SECRET not set", "remote_addr", r.RemoteAddr)
			s.respondError(w, http.StatusServiceUnavailable, "unavailable", "Scheduled generation is not configured")
			return
		}

		token, ok := bearerToken(r)
		if !ok || !tokenMatches(token, s.cronSecret) {
			s.log.Warn("Invalid cron secret attempt", "remote_addr", r.RemoteAddr)
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// cacheStaticAssets adds caching headers for generated images. Image file
// names are unique per generation, so they never change.
func cacheStaticAssets(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		next.ServeHTTP(w, r)
	})
}

// serveFiles serves dir under prefix without directory listings
func serveFiles(prefix, dir string) http.Handler {
	files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

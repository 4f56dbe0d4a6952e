package httpapi

import (
	"net/http"
	"strings"

	"github.com/antoniostano/interviewer/internal/config"
)

const corsAllowedMethods = "GET, POST, OPTIONS"

// corsMiddleware allows every origin when cfg.AllowAnyOrigin is set, which
// suits a local demo. Otherwise only cfg.CORSAllowedOrigins get CORS headers.
func corsMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	allowAny := cfg.AllowAnyOrigin
	allowed := cfg.CORSAllowedOrigins
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			ok := origin != "" && (allowAny || originAllowed(allowed, origin))

			if r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != "" {
				if !ok {
					http.Error(w, "cors preflight not allowed", http.StatusForbidden)
					return
				}
				setAllowOrigin(w, origin, allowAny)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				headers := r.Header.Get("Access-Control-Request-Headers")
				if strings.TrimSpace(headers) == "" {
					headers = "Content-Type"
				}
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if ok {
				setAllowOrigin(w, origin, allowAny)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setAllowOrigin(w http.ResponseWriter, origin string, allowAny bool) {
	if allowAny {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

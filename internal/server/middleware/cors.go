package middleware

import (
	"net/http"
	"strings"
)

// allowHeaders covers the JSON content type, the operator key, and the three
// caller signature headers checked by CallerAuth.
const allowHeaders = "Content-Type, Authorization, X-API-Key, " +
	HeaderCallerAddress + ", " + HeaderCallerTimestamp + ", " + HeaderCallerSignature

// CORS answers preflight requests and stamps the allow headers for origins
// on the configured list. An empty list, or a "*" entry, admits every origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				_, ok := allowed[strings.ToLower(origin)]
				if allowAll || ok {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", allowHeaders)
					h.Set("Access-Control-Max-Age", "86400")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

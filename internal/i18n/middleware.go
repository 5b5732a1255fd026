package i18n

import (
	"net/http"
)

// Middleware extracts the Accept-Language header and injects a printer into
// the context. The chosen language is echoed in Content-Language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := MatchLanguage(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", tag.String())

		ctx := WithPrinter(r.Context(), NewPrinter(tag))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package i18n

import "net/http"

// Middleware picks the request language from the "lang" query parameter or
// the Accept-Language header, falling back to the bundle default.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var langs []string
		if q := r.URL.Query().Get("lang"); q != "" {
			langs = append(langs, q)
		}
		if h := r.Header.Get("Accept-Language"); h != "" {
			langs = append(langs, h)
		}
		ctx := WithLocalizer(r.Context(), NewLocalizer(langs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

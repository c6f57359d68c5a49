package principal

import "net/http"

// Header names the request header carrying the acting identity.
const Header = "X-Actor"

// Middleware installs the X-Actor header value on the request context.
// Requests without the header fall back to System.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(Header); actor != "" {
			r = r.WithContext(With(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

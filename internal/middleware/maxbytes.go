package middleware

import (
	"net/http"
)

// DefaultMaxBodyBytes is the default maximum request body size (10 MiB), enough for one product image.
const DefaultMaxBodyBytes = 10 << 20

// MaxBytes limits the request body size. A declared Content-Length over the limit is
// refused with 413 up front; otherwise handlers see a *http.MaxBytesError from the body
// reader once maxBytes is exceeded.
func MaxBytes(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

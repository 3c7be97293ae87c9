package middleware

import (
	"net"
	"net/http"

	"github.com/mssola/useragent"

	"kycnet/pkg/requestcontext"
)

// ClientMetadata records the client IP and a normalized user agent so audit
// events can attribute calls without handlers touching raw headers.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ua := normalizeUserAgent(r.UserAgent())
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// normalizeUserAgent reduces the raw header to "browser/version (os)" so audit
// rows stay bounded and comparable.
func normalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	if os := ua.OS(); os != "" {
		return name + "/" + version + " (" + os + ")"
	}
	return name + "/" + version
}

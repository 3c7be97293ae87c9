package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "kycnet/pkg/domain"
	"kycnet/pkg/requestcontext"
)

// Claims represents the claims the middleware expects from the validator.
type Claims struct {
	CallerID string
}

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Revocations answers whether a caller identity has been revoked since its
// token was issued (a removed bank's tokens must die before they expire).
type Revocations interface {
	IsRevoked(ctx context.Context, caller id.BankID) (bool, error)
}

// RequireAuth validates the bearer token and stores the caller identity in
// the request context. The engine never authenticates; it only compares the
// identity this middleware has established.
func RequireAuth(validator JWTValidator, revocations Revocations, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			caller, err := id.ParseBankID(claims.CallerID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed caller claim",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			if revocations != nil {
				revoked, err := revocations.IsRevoked(ctx, caller)
				if err != nil {
					logger.ErrorContext(ctx, "revocation check failed",
						"error", err,
						"request_id", requestID,
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - revoked caller",
						"caller", caller.String(),
						"request_id", requestID,
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCallerID(ctx, caller)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

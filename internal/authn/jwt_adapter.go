package authn

import (
	"kycnet/internal/platform/middleware"
)

// JWTServiceAdapter narrows JWTService to the claims shape the auth
// middleware consumes.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{CallerID: claims.BankID}, nil
}

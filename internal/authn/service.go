package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	id "kycnet/pkg/domain"
	derrors "kycnet/pkg/domain-errors"
	"kycnet/pkg/platform/sentinel"
	"kycnet/pkg/requestcontext"
)

// RevocationList is the write side of the revocation store; the read side is
// consumed by the auth middleware.
type RevocationList interface {
	Revoke(ctx context.Context, bankID id.BankID, ttl time.Duration) error
}

// Token is the issuance response.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds
}

// Service provisions bank credentials and exchanges them for access tokens.
type Service struct {
	credentials     CredentialStore
	jwt             *JWTService
	revocations     RevocationList
	adminID         id.BankID
	adminSecretHash []byte
	tokenTTL        time.Duration
	logger          *slog.Logger
}

func NewService(
	credentials CredentialStore,
	jwtService *JWTService,
	revocations RevocationList,
	adminID id.BankID,
	adminSecretHash []byte,
	tokenTTL time.Duration,
	logger *slog.Logger,
) (*Service, error) {
	if credentials == nil {
		return nil, errors.New("authn: credential store is required")
	}
	if jwtService == nil {
		return nil, errors.New("authn: jwt service is required")
	}
	if adminID.IsZero() {
		return nil, errors.New("authn: admin identity is required")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("authn: token ttl must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		credentials:     credentials,
		jwt:             jwtService,
		revocations:     revocations,
		adminID:         adminID,
		adminSecretHash: adminSecretHash,
		tokenTTL:        tokenTTL,
		logger:          logger,
	}, nil
}

// IssueToken exchanges a bank ID and shared secret for a bearer token. The
// admin authenticates against the secret hash from config; member banks
// against their provisioned credential.
func (s *Service) IssueToken(ctx context.Context, bankID id.BankID, secret string) (Token, error) {
	hash := s.adminSecretHash
	if bankID != s.adminID {
		credential, err := s.credentials.Find(ctx, bankID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return Token{}, derrors.New(derrors.CodeUnauthorized, "invalid bank credentials")
		}
		if err != nil {
			return Token{}, derrors.Wrap(err, derrors.CodeInternal, "failed to load credentials")
		}
		hash = credential.SecretHash
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		s.logger.WarnContext(ctx, "token issuance rejected",
			"bank_id", bankID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return Token{}, derrors.New(derrors.CodeUnauthorized, "invalid bank credentials")
	}

	accessToken, err := s.jwt.GenerateAccessToken(bankID, s.tokenTTL)
	if err != nil {
		return Token{}, derrors.Wrap(err, derrors.CodeInternal, "failed to sign token")
	}
	return Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
	}, nil
}

// ProvisionCredential mints a fresh shared secret for a bank and stores its
// hash. Admin only. The plaintext is returned once and never persisted;
// calling again rotates the secret.
func (s *Service) ProvisionCredential(ctx context.Context, bankID id.BankID) (string, error) {
	caller := requestcontext.CallerID(ctx)
	if caller != s.adminID {
		return "", derrors.New(derrors.CodeNotAuthorized, "only the admin can provision credentials")
	}
	if bankID.IsZero() {
		return "", derrors.New(derrors.CodeBadRequest, "bank id is required")
	}

	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", derrors.Wrap(err, derrors.CodeInternal, "failed to hash secret")
	}
	if err := s.credentials.Save(ctx, Credential{
		BankID:     bankID,
		SecretHash: hash,
		CreatedAt:  requestcontext.Now(ctx),
	}); err != nil {
		return "", derrors.Wrap(err, derrors.CodeInternal, "failed to store credentials")
	}

	s.logger.InfoContext(ctx, "bank credential provisioned",
		"bank_id", bankID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return secret, nil
}

// Revoke deletes a bank's credential and lists it as revoked for the token
// lifetime, so outstanding tokens stop working immediately.
func (s *Service) Revoke(ctx context.Context, bankID id.BankID) error {
	if err := s.credentials.Delete(ctx, bankID); err != nil {
		return fmt.Errorf("delete credentials for %s: %w", bankID, err)
	}
	if s.revocations != nil {
		if err := s.revocations.Revoke(ctx, bankID, s.tokenTTL); err != nil {
			return fmt.Errorf("revoke outstanding tokens for %s: %w", bankID, err)
		}
	}
	return nil
}

package authn

import (
	"context"
	"time"

	id "kycnet/pkg/domain"
)

// Credential holds a member bank's bcrypt-hashed shared secret. The plaintext
// secret is shown exactly once at provisioning time and never stored.
type Credential struct {
	BankID     id.BankID
	SecretHash []byte
	CreatedAt  time.Time
}

// CredentialStore persists provisioned bank credentials.
type CredentialStore interface {
	Save(ctx context.Context, credential Credential) error
	Find(ctx context.Context, bankID id.BankID) (Credential, error)
	Delete(ctx context.Context, bankID id.BankID) error
}

// Package domain defines the typed identifiers shared across the registry.
//
// Identifiers are opaque keys supplied by the federation operator, not values
// the engine interprets. The zero value is the reserved "absent" sentinel: it
// is never a legal key, and parsing rejects it at every trust boundary so no
// record can be created under the sentinel.
package domain

import (
	"strings"

	dErrors "kycnet/pkg/domain-errors"
)

// Key size limits keep identifiers fixed-bound; they mirror the 32-byte keys
// of the upstream ledger without pinning callers to a binary encoding.
const maxKeyLen = 64

// BankID identifies a member bank. Distinct from Username at compile time so
// a caller identity can never be used where a customer key is expected.
type BankID string

// Username identifies a customer record. The username is the customer's key;
// there is no separate surrogate ID.
type Username string

// ParseBankID validates an inbound bank identifier.
func ParseBankID(s string) (BankID, error) {
	if err := validateKey(s, "bank id"); err != nil {
		return "", err
	}
	return BankID(s), nil
}

// ParseUsername validates an inbound customer username.
func ParseUsername(s string) (Username, error) {
	if err := validateKey(s, "username"); err != nil {
		return "", err
	}
	return Username(s), nil
}

func (id BankID) IsZero() bool   { return id == "" }
func (id BankID) String() string { return string(id) }

func (u Username) IsZero() bool   { return u == "" }
func (u Username) String() string { return string(u) }

func validateKey(s, kind string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeBadRequest, kind+" must not be empty")
	}
	if len(s) > maxKeyLen {
		return dErrors.New(dErrors.CodeBadRequest, kind+" exceeds maximum length")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return dErrors.New(dErrors.CodeBadRequest, kind+" must not contain whitespace")
	}
	return nil
}

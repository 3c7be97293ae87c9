// Package registry defines the entities and derived-status rules of the
// federated KYC registry: member banks, the customers they submit, and the
// validation requests the federation votes on.
package registry

import (
	id "kycnet/pkg/domain"
)

// Bank is a federation member. Existence is modeled by record presence in the
// store, never by a sentinel field value; RegNumber is non-empty on every
// stored record.
type Bank struct {
	ID        id.BankID
	Name      string
	RegNumber string

	// ComplaintsReported counts complaints filed against this bank. It only
	// grows; eligibility is derived from it after every complaint.
	ComplaintsReported int

	// KycCount counts this bank's open KYC requests. Incremented when the bank
	// files a request, decremented when that request is withdrawn.
	KycCount int

	// AllowedToVote is derived from the complaint ratio, or set directly by
	// the administrator.
	AllowedToVote bool
}

// Customer is a record submitted by its owning bank. Votes apply to the
// current Data value; modifying Data restarts voting from scratch.
type Customer struct {
	Username id.Username
	Data     string

	// KycStatus is derived: recomputed on every vote, never set by a caller.
	KycStatus bool

	UpVotes   int
	DownVotes int

	// Bank is the owning bank, fixed at creation. The owner can never vote on
	// its own record.
	Bank id.BankID
}

// KycRequest marks a customer's current data as pending federation review.
// At most one request exists per customer; the record's presence is the
// pending state, there is no separate status field.
type KycRequest struct {
	Username id.Username

	// Bank is the filer. Withdrawing the request reverses the filer's KycCount
	// increment.
	Bank id.BankID

	// Data is the customer data snapshot taken when the request was filed.
	Data string
}

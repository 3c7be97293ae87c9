// Package service implements the registry engine: the state-transition and
// eligibility-determination rules that votes, complaints, and membership
// changes drive. Every operation validates all of its preconditions before
// mutating anything, and runs inside a registry transaction, so a failed
// operation has no partial effect.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Auditor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kycnet/internal/audit"
	"kycnet/internal/registry"
	"kycnet/internal/registry/metrics"
	id "kycnet/pkg/domain"
	dErrors "kycnet/pkg/domain-errors"
	"kycnet/pkg/platform/sentinel"
	"kycnet/pkg/requestcontext"
)

// Auditor records one event per committed mutation. Emission is fail-closed:
// an auditor error aborts the operation and rolls back its transaction.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the registry engine. The administrator identity is fixed at
// construction and cannot change for the lifetime of the instance.
type Service struct {
	tx      registry.Tx
	admin   id.BankID
	auditor Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New constructs the engine. tx and auditor are required; admin must be a
// non-sentinel identity.
func New(tx registry.Tx, admin id.BankID, auditor Auditor, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if tx == nil {
		return nil, errors.New("registry tx runner is required")
	}
	if admin.IsZero() {
		return nil, errors.New("admin identity is required")
	}
	if auditor == nil {
		return nil, errors.New("auditor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:      tx,
		admin:   admin,
		auditor: auditor,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("kycnet/registry"),
	}, nil
}

// AddBank registers a new member bank with voting rights and zeroed counters.
// Admin only.
func (s *Service) AddBank(ctx context.Context, name string, bankID id.BankID, regNumber string) error {
	ctx, span := s.tracer.Start(ctx, "registry.AddBank",
		trace.WithAttributes(attribute.String("bank_id", bankID.String())))
	defer span.End()
	start := time.Now()

	total := -1
	err := func() error {
		if err := s.requireAdmin(ctx); err != nil {
			return err
		}
		if bankID.IsZero() {
			return dErrors.New(dErrors.CodeBadRequest, "bank id must not be the absent sentinel")
		}
		if name == "" || regNumber == "" {
			return dErrors.New(dErrors.CodeBadRequest, "bank name and registration number are required")
		}

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			if _, err := store.GetBank(ctx, bankID); err == nil {
				return dErrors.New(dErrors.CodeAlreadyExists, "bank already registered")
			} else if !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read bank")
			}

			bank := registry.Bank{
				ID:            bankID,
				Name:          name,
				RegNumber:     regNumber,
				AllowedToVote: true,
			}
			if err := store.CreateBank(ctx, bank); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "create bank")
			}

			if t, err := store.TotalBanks(ctx); err == nil {
				total = t
			}
			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionBankAdded,
				Actor:   s.admin.String(),
				Subject: bankID.String(),
			})
		})
	}()

	// Gauge moves only once the transaction has committed; a rolled-back
	// registration must not be visible anywhere, metrics included.
	if err == nil && total >= 0 {
		s.metrics.SetBanksTotal(total)
	}
	s.observe("add_bank", err, start)
	return err
}

// RemoveBank deletes a member bank entirely. Admin only. After deletion the
// record must read back as absent; anything else is an engine bug.
func (s *Service) RemoveBank(ctx context.Context, bankID id.BankID) error {
	ctx, span := s.tracer.Start(ctx, "registry.RemoveBank",
		trace.WithAttributes(attribute.String("bank_id", bankID.String())))
	defer span.End()
	start := time.Now()

	total := -1
	err := func() error {
		if err := s.requireAdmin(ctx); err != nil {
			return err
		}

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			if _, err := s.getBank(ctx, store, bankID); err != nil {
				return err
			}
			if err := store.DeleteBank(ctx, bankID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "delete bank")
			}

			// Defensive invariant assertion: a deleted record must be gone.
			if _, err := store.GetBank(ctx, bankID); !errors.Is(err, sentinel.ErrNotFound) {
				s.logger.ErrorContext(ctx, "bank record present after delete", "bank_id", bankID.String())
				return dErrors.New(dErrors.CodeInvariantViolation, "bank record present after delete")
			}

			if t, err := store.TotalBanks(ctx); err == nil {
				total = t
			}
			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionBankRemoved,
				Actor:   s.admin.String(),
				Subject: bankID.String(),
			})
		})
	}()

	if err == nil && total >= 0 {
		s.metrics.SetBanksTotal(total)
	}
	s.observe("remove_bank", err, start)
	return err
}

// SetBankVotingEligibility overwrites a bank's eligibility flag directly,
// bypassing the complaint-ratio rule until the next recomputation. Admin only.
func (s *Service) SetBankVotingEligibility(ctx context.Context, bankID id.BankID, allowed bool) error {
	ctx, span := s.tracer.Start(ctx, "registry.SetBankVotingEligibility",
		trace.WithAttributes(attribute.String("bank_id", bankID.String()), attribute.Bool("allowed", allowed)))
	defer span.End()
	start := time.Now()

	err := func() error {
		if err := s.requireAdmin(ctx); err != nil {
			return err
		}

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			bank, err := s.getBank(ctx, store, bankID)
			if err != nil {
				return err
			}
			bank.AllowedToVote = allowed
			if err := store.UpdateBank(ctx, bank); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update bank")
			}
			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionBankEligibilitySet,
				Actor:   s.admin.String(),
				Subject: bankID.String(),
				Outcome: eligibilityOutcome(allowed),
			})
		})
	}()

	s.observe("set_bank_voting_eligibility", err, start)
	return err
}

// AddCustomer creates a customer record owned by the calling bank.
func (s *Service) AddCustomer(ctx context.Context, username id.Username, data string) error {
	ctx, span := s.tracer.Start(ctx, "registry.AddCustomer",
		trace.WithAttributes(attribute.String("username", username.String())))
	defer span.End()
	start := time.Now()

	err := func() error {
		caller := requestcontext.CallerID(ctx)
		if username.IsZero() {
			return dErrors.New(dErrors.CodeBadRequest, "username must not be the absent sentinel")
		}

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			if err := s.requireValidBank(ctx, store, caller); err != nil {
				return err
			}
			if _, err := store.GetCustomer(ctx, username); err == nil {
				return dErrors.New(dErrors.CodeAlreadyExists, "customer already exists")
			} else if !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read customer")
			}

			customer := registry.Customer{
				Username: username,
				Data:     data,
				Bank:     caller,
			}
			if err := store.CreateCustomer(ctx, customer); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "create customer")
			}
			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionCustomerAdded,
				Actor:   caller.String(),
				Subject: username.String(),
			})
		})
	}()

	s.observe("add_customer", err, start)
	return err
}

// ModifyCustomer overwrites a customer's data and restarts voting: vote counts
// and every vote marker for the username reset, and any pending KYC request is
// withdrawn (reversing the filer's request counter). The derived KYC status is
// untouched until the next vote recomputes it.
func (s *Service) ModifyCustomer(ctx context.Context, username id.Username, data string) error {
	ctx, span := s.tracer.Start(ctx, "registry.ModifyCustomer",
		trace.WithAttributes(attribute.String("username", username.String())))
	defer span.End()
	start := time.Now()

	err := func() error {
		caller := requestcontext.CallerID(ctx)

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			if err := s.requireValidBank(ctx, store, caller); err != nil {
				return err
			}
			customer, err := s.getCustomer(ctx, store, username)
			if err != nil {
				return err
			}

			if err := s.withdrawRequestIfPresent(ctx, store, username); err != nil {
				return err
			}

			customer.Data = data
			customer.UpVotes = 0
			customer.DownVotes = 0
			if err := store.UpdateCustomer(ctx, customer); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update customer")
			}
			if err := store.ClearVotes(ctx, username); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "clear vote markers")
			}

			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionCustomerModified,
				Actor:   caller.String(),
				Subject: username.String(),
			})
		})
	}()

	s.observe("modify_customer", err, start)
	return err
}

// ViewCustomer returns the full customer record.
func (s *Service) ViewCustomer(ctx context.Context, username id.Username) (registry.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "registry.ViewCustomer")
	defer span.End()
	start := time.Now()

	var customer registry.Customer
	err := s.tx.RunInReadTx(ctx, func(ctx context.Context, store registry.Store) error {
		var err error
		customer, err = s.getCustomer(ctx, store, username)
		return err
	})

	s.observe("view_customer", err, start)
	return customer, err
}

// AddKycRequest files the customer's current data for federation review.
// One active request per customer; the filer's request counter grows by one.
func (s *Service) AddKycRequest(ctx context.Context, username id.Username, data string) error {
	ctx, span := s.tracer.Start(ctx, "registry.AddKycRequest",
		trace.WithAttributes(attribute.String("username", username.String())))
	defer span.End()
	start := time.Now()

	err := func() error {
		caller := requestcontext.CallerID(ctx)

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			callerBank, err := s.validBank(ctx, store, caller)
			if err != nil {
				return err
			}
			if _, err := s.getCustomer(ctx, store, username); err != nil {
				return err
			}
			if _, err := store.GetRequest(ctx, username); err == nil {
				return dErrors.New(dErrors.CodeAlreadyExists, "customer already has an active KYC request")
			} else if !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read request")
			}

			request := registry.KycRequest{
				Username: username,
				Bank:     caller,
				Data:     data,
			}
			if err := store.CreateRequest(ctx, request); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "create request")
			}

			callerBank.KycCount++
			if err := store.UpdateBank(ctx, callerBank); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update bank")
			}

			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionRequestAdded,
				Actor:   caller.String(),
				Subject: username.String(),
			})
		})
	}()

	s.observe("add_kyc_request", err, start)
	return err
}

// RemoveKycRequest withdraws a customer's pending request. The counter
// decrement reverses the filer's increment, regardless of which valid bank
// withdraws the request.
func (s *Service) RemoveKycRequest(ctx context.Context, username id.Username) error {
	ctx, span := s.tracer.Start(ctx, "registry.RemoveKycRequest",
		trace.WithAttributes(attribute.String("username", username.String())))
	defer span.End()
	start := time.Now()

	err := func() error {
		caller := requestcontext.CallerID(ctx)

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			if _, err := store.GetRequest(ctx, username); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "no active KYC request for customer")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "read request")
			}
			if err := s.requireValidBank(ctx, store, caller); err != nil {
				return err
			}

			if err := s.withdrawRequest(ctx, store, username); err != nil {
				return err
			}

			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionRequestRemoved,
				Actor:   caller.String(),
				Subject: username.String(),
			})
		})
	}()

	s.observe("remove_kyc_request", err, start)
	return err
}

// UpVoteCustomer casts an approving vote on the customer's current data and
// recomputes the derived KYC status.
func (s *Service) UpVoteCustomer(ctx context.Context, username id.Username) error {
	return s.vote(ctx, username, voteUp)
}

// DownVoteCustomer casts a rejecting vote on the customer's current data and
// recomputes the derived KYC status.
func (s *Service) DownVoteCustomer(ctx context.Context, username id.Username) error {
	return s.vote(ctx, username, voteDown)
}

type voteDirection string

const (
	voteUp   voteDirection = "up"
	voteDown voteDirection = "down"
)

func (s *Service) vote(ctx context.Context, username id.Username, direction voteDirection) error {
	operation := "upvote_customer"
	action := audit.ActionCustomerUpvoted
	if direction == voteDown {
		operation = "downvote_customer"
		action = audit.ActionCustomerDownvoted
	}

	ctx, span := s.tracer.Start(ctx, "registry.VoteCustomer",
		trace.WithAttributes(
			attribute.String("username", username.String()),
			attribute.String("direction", string(direction)),
		))
	defer span.End()
	start := time.Now()

	err := func() error {
		caller := requestcontext.CallerID(ctx)

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			callerBank, err := s.validBank(ctx, store, caller)
			if err != nil {
				return err
			}
			if !callerBank.AllowedToVote {
				return dErrors.New(dErrors.CodeNotEligible, "bank is not eligible to vote")
			}

			voted, err := store.HasVoted(ctx, username, caller)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read vote marker")
			}
			if voted {
				return dErrors.New(dErrors.CodeAlreadyVoted, "bank already voted on current customer data")
			}

			customer, err := s.getCustomer(ctx, store, username)
			if err != nil {
				return err
			}
			if _, err := store.GetRequest(ctx, username); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeNotFound, "no active KYC request for customer")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "read request")
			}
			if customer.Bank == caller {
				return dErrors.New(dErrors.CodeSelfVote, "bank cannot vote on its own customer")
			}

			if direction == voteUp {
				customer.UpVotes++
			} else {
				customer.DownVotes++
			}

			total, err := store.TotalBanks(ctx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read total banks")
			}
			customer.KycStatus = registry.DetermineKycStatus(total, customer.UpVotes, customer.DownVotes)

			if err := store.UpdateCustomer(ctx, customer); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update customer")
			}
			if err := store.MarkVoted(ctx, username, caller); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "mark vote")
			}

			s.metrics.IncrementVote(string(direction), customer.KycStatus)
			return s.auditor.Emit(ctx, audit.Event{
				Action:  action,
				Actor:   caller.String(),
				Subject: username.String(),
				Outcome: kycOutcome(customer.KycStatus),
			})
		})
	}()

	s.observe(operation, err, start)
	return err
}

// ReportBank files a complaint against a bank and recomputes its voting
// eligibility from the complaint ratio.
func (s *Service) ReportBank(ctx context.Context, bankID id.BankID) error {
	ctx, span := s.tracer.Start(ctx, "registry.ReportBank",
		trace.WithAttributes(attribute.String("bank_id", bankID.String())))
	defer span.End()
	start := time.Now()

	err := func() error {
		caller := requestcontext.CallerID(ctx)

		return s.tx.RunInTx(ctx, func(ctx context.Context, store registry.Store) error {
			bank, err := s.getBank(ctx, store, bankID)
			if err != nil {
				return err
			}

			bank.ComplaintsReported++

			total, err := store.TotalBanks(ctx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "read total banks")
			}
			wasEligible := bank.AllowedToVote
			bank.AllowedToVote = registry.DetermineVotingEligibility(total, bank.ComplaintsReported)
			if wasEligible && !bank.AllowedToVote {
				s.metrics.IncrementEligibilityRevocation()
			}

			if err := store.UpdateBank(ctx, bank); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update bank")
			}

			return s.auditor.Emit(ctx, audit.Event{
				Action:  audit.ActionBankReported,
				Actor:   caller.String(),
				Subject: bankID.String(),
				Outcome: eligibilityOutcome(bank.AllowedToVote),
			})
		})
	}()

	s.observe("report_bank", err, start)
	return err
}

// GetBankComplaints returns the complaint count for a bank.
func (s *Service) GetBankComplaints(ctx context.Context, bankID id.BankID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetBankComplaints")
	defer span.End()
	start := time.Now()

	var complaints int
	err := s.tx.RunInReadTx(ctx, func(ctx context.Context, store registry.Store) error {
		bank, err := s.getBank(ctx, store, bankID)
		if err != nil {
			return err
		}
		complaints = bank.ComplaintsReported
		return nil
	})

	s.observe("get_bank_complaints", err, start)
	return complaints, err
}

// ViewBankDetails returns the full bank record.
func (s *Service) ViewBankDetails(ctx context.Context, bankID id.BankID) (registry.Bank, error) {
	ctx, span := s.tracer.Start(ctx, "registry.ViewBankDetails")
	defer span.End()
	start := time.Now()

	var bank registry.Bank
	err := s.tx.RunInReadTx(ctx, func(ctx context.Context, store registry.Store) error {
		var err error
		bank, err = s.getBank(ctx, store, bankID)
		return err
	})

	s.observe("view_bank_details", err, start)
	return bank, err
}

// withdrawRequestIfPresent removes a pending request when one exists; absence
// is not an error (used by ModifyCustomer).
func (s *Service) withdrawRequestIfPresent(ctx context.Context, store registry.Store, username id.Username) error {
	if _, err := store.GetRequest(ctx, username); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "read request")
	}
	return s.withdrawRequest(ctx, store, username)
}

// withdrawRequest deletes a pending request and reverses the filer's counter
// increment. The filer may have been removed from the federation since filing;
// in that case there is no counter left to reverse.
func (s *Service) withdrawRequest(ctx context.Context, store registry.Store, username id.Username) error {
	request, err := store.GetRequest(ctx, username)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read request")
	}
	if err := store.DeleteRequest(ctx, username); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete request")
	}

	// Defensive invariant assertion: a deleted record must be gone.
	if _, err := store.GetRequest(ctx, username); !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "kyc request present after delete", "username", username.String())
		return dErrors.New(dErrors.CodeInvariantViolation, "kyc request present after delete")
	}

	filer, err := store.GetBank(ctx, request.Bank)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "read filer bank")
	}
	if filer.KycCount > 0 {
		filer.KycCount--
		if err := store.UpdateBank(ctx, filer); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update filer bank")
		}
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context) error {
	if requestcontext.CallerID(ctx) != s.admin {
		return dErrors.New(dErrors.CodeNotAuthorized, "administrator rights required")
	}
	return nil
}

// validBank resolves the caller to a registered bank, translating absence
// into the InvalidBank precondition failure.
func (s *Service) validBank(ctx context.Context, store registry.Store, caller id.BankID) (registry.Bank, error) {
	if caller.IsZero() {
		return registry.Bank{}, dErrors.New(dErrors.CodeInvalidBank, "caller is not a registered bank")
	}
	bank, err := store.GetBank(ctx, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return registry.Bank{}, dErrors.New(dErrors.CodeInvalidBank, "caller is not a registered bank")
		}
		return registry.Bank{}, dErrors.Wrap(err, dErrors.CodeInternal, "read caller bank")
	}
	return bank, nil
}

func (s *Service) requireValidBank(ctx context.Context, store registry.Store, caller id.BankID) error {
	_, err := s.validBank(ctx, store, caller)
	return err
}

// getBank reads a target bank, translating absence into NotFound.
func (s *Service) getBank(ctx context.Context, store registry.Store, bankID id.BankID) (registry.Bank, error) {
	bank, err := store.GetBank(ctx, bankID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return registry.Bank{}, dErrors.New(dErrors.CodeNotFound, "bank not found")
		}
		return registry.Bank{}, dErrors.Wrap(err, dErrors.CodeInternal, "read bank")
	}
	return bank, nil
}

func (s *Service) getCustomer(ctx context.Context, store registry.Store, username id.Username) (registry.Customer, error) {
	customer, err := store.GetCustomer(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return registry.Customer{}, dErrors.New(dErrors.CodeNotFound, "customer not found")
		}
		return registry.Customer{}, dErrors.Wrap(err, dErrors.CodeInternal, "read customer")
	}
	return customer, nil
}

func (s *Service) observe(operation string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(start))
}

func eligibilityOutcome(allowed bool) string {
	if allowed {
		return "eligible"
	}
	return "ineligible"
}

func kycOutcome(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

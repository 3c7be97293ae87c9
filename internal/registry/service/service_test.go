package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"kycnet/internal/audit"
	auditmemory "kycnet/internal/audit/store/memory"
	"kycnet/internal/registry/store/memory"
	id "kycnet/pkg/domain"
	dErrors "kycnet/pkg/domain-errors"
	"kycnet/pkg/requestcontext"
)

const adminID = id.BankID("admin")

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	events  *auditmemory.Store
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.events = auditmemory.New()

	var err error
	s.service, err = New(memory.NewTxRunner(s.store), adminID, audit.NewPublisher(s.events), nil, nil)
	s.Require().NoError(err)
}

// asAdmin / asBank inject the caller identity the way the auth middleware does.
func (s *ServiceSuite) asAdmin() context.Context {
	return requestcontext.WithCallerID(context.Background(), adminID)
}

func (s *ServiceSuite) asBank(bank id.BankID) context.Context {
	return requestcontext.WithCallerID(context.Background(), bank)
}

// addBanks registers the given banks as admin, failing the test on error.
func (s *ServiceSuite) addBanks(banks ...id.BankID) {
	for _, bank := range banks {
		s.Require().NoError(s.service.AddBank(s.asAdmin(), "Bank "+bank.String(), bank, "REG-"+bank.String()))
	}
}

// =============================================================================
// Constructor
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil tx runner returns error", func() {
		_, err := New(nil, adminID, audit.NewPublisher(s.events), nil, nil)
		s.Error(err)
		s.Contains(err.Error(), "tx runner is required")
	})

	s.Run("sentinel admin identity returns error", func() {
		_, err := New(memory.NewTxRunner(s.store), "", audit.NewPublisher(s.events), nil, nil)
		s.Error(err)
	})

	s.Run("nil auditor returns error", func() {
		_, err := New(memory.NewTxRunner(s.store), adminID, nil, nil, nil)
		s.Error(err)
	})
}

// =============================================================================
// Bank membership
// =============================================================================

func (s *ServiceSuite) TestAddBank() {
	s.Run("non-admin caller is rejected", func() {
		err := s.service.AddBank(s.asBank("bank-a"), "Bank A", "bank-a", "REG-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("admin registers bank with eligibility and zero counters", func() {
		s.Require().NoError(s.service.AddBank(s.asAdmin(), "Bank A", "bank-a", "REG-1"))

		bank, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.Equal("Bank A", bank.Name)
		s.Equal("REG-1", bank.RegNumber)
		s.True(bank.AllowedToVote)
		s.Zero(bank.ComplaintsReported)
		s.Zero(bank.KycCount)
	})

	s.Run("duplicate registration conflicts", func() {
		err := s.service.AddBank(s.asAdmin(), "Bank A again", "bank-a", "REG-2")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("empty registration number is rejected", func() {
		err := s.service.AddBank(s.asAdmin(), "Bank X", "bank-x", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("audit event emitted", func() {
		s.Len(s.events.ByAction(audit.ActionBankAdded), 1)
	})
}

func (s *ServiceSuite) TestRemoveBank() {
	s.addBanks("bank-a", "bank-b")

	s.Run("non-admin caller is rejected", func() {
		err := s.service.RemoveBank(s.asBank("bank-a"), "bank-b")
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("removing unknown bank is not found", func() {
		err := s.service.RemoveBank(s.asAdmin(), "bank-zzz")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("add then remove restores the membership count and erases the record", func() {
		ctx := context.Background()
		before, err := s.store.TotalBanks(ctx)
		s.Require().NoError(err)

		s.Require().NoError(s.service.AddBank(s.asAdmin(), "Bank C", "bank-c", "REG-3"))
		s.Require().NoError(s.service.RemoveBank(s.asAdmin(), "bank-c"))

		after, err := s.store.TotalBanks(ctx)
		s.Require().NoError(err)
		s.Equal(before, after)

		_, err = s.service.ViewBankDetails(s.asAdmin(), "bank-c")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSetBankVotingEligibility() {
	s.addBanks("bank-a")

	s.Run("admin overrides the flag directly", func() {
		s.Require().NoError(s.service.SetBankVotingEligibility(s.asAdmin(), "bank-a", false))
		bank, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.False(bank.AllowedToVote)
	})

	s.Run("non-admin caller is rejected", func() {
		err := s.service.SetBankVotingEligibility(s.asBank("bank-a"), "bank-a", true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})
}

// =============================================================================
// Customers
// =============================================================================

func (s *ServiceSuite) TestAddCustomer() {
	s.addBanks("bank-a")

	s.Run("unregistered caller is rejected", func() {
		err := s.service.AddCustomer(s.asBank("stranger"), "alice", "doc-v1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidBank))
	})

	s.Run("bank creates customer it owns", func() {
		s.Require().NoError(s.service.AddCustomer(s.asBank("bank-a"), "alice", "doc-v1"))

		customer, err := s.service.ViewCustomer(s.asBank("bank-a"), "alice")
		s.Require().NoError(err)
		s.Equal(id.BankID("bank-a"), customer.Bank)
		s.Equal("doc-v1", customer.Data)
		s.False(customer.KycStatus)
		s.Zero(customer.UpVotes)
		s.Zero(customer.DownVotes)
	})

	s.Run("duplicate username conflicts", func() {
		err := s.service.AddCustomer(s.asBank("bank-a"), "alice", "doc-v2")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})
}

func (s *ServiceSuite) TestModifyCustomer() {
	s.addBanks("bank-a", "bank-b", "bank-c")
	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-a"), "alice", "doc-v1"))
	s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-a"), "alice", "doc-v1"))
	s.Require().NoError(s.service.UpVoteCustomer(s.asBank("bank-b"), "alice"))

	s.Run("resets votes and markers and withdraws the pending request", func() {
		s.Require().NoError(s.service.ModifyCustomer(s.asBank("bank-a"), "alice", "doc-v2"))

		customer, err := s.service.ViewCustomer(s.asBank("bank-a"), "alice")
		s.Require().NoError(err)
		s.Equal("doc-v2", customer.Data)
		s.Zero(customer.UpVotes)
		s.Zero(customer.DownVotes)

		// Request gone: voting needs a new one.
		err = s.service.UpVoteCustomer(s.asBank("bank-b"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		// Filer's counter reversed by the implicit withdrawal.
		filer, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.Zero(filer.KycCount)
	})

	s.Run("voting restarts for the new data", func() {
		s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-a"), "alice", "doc-v2"))
		// bank-b voted on doc-v1; the marker reset allows a fresh vote on doc-v2.
		s.Require().NoError(s.service.UpVoteCustomer(s.asBank("bank-b"), "alice"))

		customer, err := s.service.ViewCustomer(s.asBank("bank-a"), "alice")
		s.Require().NoError(err)
		s.Equal(1, customer.UpVotes)
	})

	s.Run("unknown customer is not found", func() {
		err := s.service.ModifyCustomer(s.asBank("bank-a"), "nobody", "doc")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// KYC requests
// =============================================================================

func (s *ServiceSuite) TestKycRequestLifecycle() {
	s.addBanks("bank-a", "bank-b")
	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-a"), "alice", "doc-v1"))

	s.Run("request for unknown customer is not found", func() {
		err := s.service.AddKycRequest(s.asBank("bank-a"), "nobody", "doc")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("filing increments the filer counter", func() {
		s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-a"), "alice", "doc-v1"))
		bank, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.Equal(1, bank.KycCount)
	})

	s.Run("second active request conflicts", func() {
		err := s.service.AddKycRequest(s.asBank("bank-b"), "alice", "doc-v1")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("withdrawal by another bank still reverses the filer counter", func() {
		s.Require().NoError(s.service.RemoveKycRequest(s.asBank("bank-b"), "alice"))

		filer, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.Zero(filer.KycCount)

		withdrawer, err := s.service.ViewBankDetails(s.asAdmin(), "bank-b")
		s.Require().NoError(err)
		s.Zero(withdrawer.KycCount)
	})

	s.Run("withdrawing again is not found", func() {
		err := s.service.RemoveKycRequest(s.asBank("bank-a"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Voting
// =============================================================================

func (s *ServiceSuite) TestVoting() {
	s.addBanks("bank-a", "bank-b", "bank-c")
	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-a"), "alice", "doc-v1"))

	s.Run("vote without an active request is not found", func() {
		err := s.service.UpVoteCustomer(s.asBank("bank-b"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-a"), "alice", "doc-v1"))

	s.Run("owner cannot vote on its own customer", func() {
		err := s.service.UpVoteCustomer(s.asBank("bank-a"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeSelfVote))
	})

	s.Run("unregistered caller is rejected", func() {
		err := s.service.DownVoteCustomer(s.asBank("stranger"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidBank))
	})

	s.Run("first upvote approves under strict majority", func() {
		s.Require().NoError(s.service.UpVoteCustomer(s.asBank("bank-b"), "alice"))
		customer, err := s.service.ViewCustomer(s.asBank("bank-a"), "alice")
		s.Require().NoError(err)
		s.Equal(1, customer.UpVotes)
		s.Zero(customer.DownVotes)
		s.True(customer.KycStatus)
	})

	s.Run("tie is not approved", func() {
		s.Require().NoError(s.service.DownVoteCustomer(s.asBank("bank-c"), "alice"))
		customer, err := s.service.ViewCustomer(s.asBank("bank-a"), "alice")
		s.Require().NoError(err)
		s.Equal(1, customer.UpVotes)
		s.Equal(1, customer.DownVotes)
		s.False(customer.KycStatus)
	})

	s.Run("second vote on unchanged data is rejected", func() {
		err := s.service.UpVoteCustomer(s.asBank("bank-b"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))

		// Direction does not matter: one vote per bank per data version.
		err = s.service.DownVoteCustomer(s.asBank("bank-b"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	})
}

func (s *ServiceSuite) TestVoting_RatioOverrideInLargeFederation() {
	// Twelve banks: the down-vote ratio override is active (> 10 members).
	banks := []id.BankID{
		"bank-01", "bank-02", "bank-03", "bank-04", "bank-05", "bank-06",
		"bank-07", "bank-08", "bank-09", "bank-10", "bank-11", "bank-12",
	}
	s.addBanks(banks...)
	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-01"), "alice", "doc-v1"))
	s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-01"), "alice", "doc-v1"))

	// Seven upvotes: clear majority, approved.
	for _, bank := range banks[1:8] {
		s.Require().NoError(s.service.UpVoteCustomer(s.asBank(bank), "alice"))
	}
	customer, err := s.service.ViewCustomer(s.asBank("bank-01"), "alice")
	s.Require().NoError(err)
	s.True(customer.KycStatus)

	// Four downvotes push 100*4/12 = 33, still at the threshold: majority holds.
	for _, bank := range banks[8:12] {
		s.Require().NoError(s.service.DownVoteCustomer(s.asBank(bank), "alice"))
	}
	customer, err = s.service.ViewCustomer(s.asBank("bank-01"), "alice")
	s.Require().NoError(err)
	s.Equal(7, customer.UpVotes)
	s.Equal(4, customer.DownVotes)
	s.True(customer.KycStatus)

	// A thirteenth bank's downvote crosses the threshold: 100*5/13 = 38 > 33,
	// rejected despite the 7:5 majority.
	s.addBanks("bank-13")
	s.Require().NoError(s.service.DownVoteCustomer(s.asBank("bank-13"), "alice"))
	customer, err = s.service.ViewCustomer(s.asBank("bank-01"), "alice")
	s.Require().NoError(err)
	s.Equal(7, customer.UpVotes)
	s.Equal(5, customer.DownVotes)
	s.False(customer.KycStatus)
}

// =============================================================================
// Complaints and eligibility
// =============================================================================

func (s *ServiceSuite) TestReportBank() {
	s.addBanks("bank-a", "bank-b", "bank-c")
	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-b"), "alice", "doc-v1"))
	s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-b"), "alice", "doc-v1"))

	s.Run("unknown bank is not found", func() {
		err := s.service.ReportBank(s.asBank("bank-b"), "bank-zzz")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("single complaint of three banks keeps eligibility", func() {
		// 100*1/3 = 33, at but not over the threshold.
		s.Require().NoError(s.service.ReportBank(s.asBank("bank-b"), "bank-a"))

		complaints, err := s.service.GetBankComplaints(s.asBank("bank-b"), "bank-a")
		s.Require().NoError(err)
		s.Equal(1, complaints)

		bank, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.True(bank.AllowedToVote)
	})

	s.Run("second complaint revokes eligibility", func() {
		// 100*2/3 = 66 > 33.
		s.Require().NoError(s.service.ReportBank(s.asBank("bank-c"), "bank-a"))

		bank, err := s.service.ViewBankDetails(s.asAdmin(), "bank-a")
		s.Require().NoError(err)
		s.False(bank.AllowedToVote)
	})

	s.Run("ineligible bank cannot vote", func() {
		err := s.service.UpVoteCustomer(s.asBank("bank-a"), "alice")
		s.True(dErrors.HasCode(err, dErrors.CodeNotEligible))
	})
}

// =============================================================================
// The end-to-end scenario from the acceptance checklist
// =============================================================================

func (s *ServiceSuite) TestScenario_ThreeBankFederation() {
	s.addBanks("bank-a", "bank-b", "bank-c")

	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-a"), "alice", "passport-scan-1"))
	s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-a"), "alice", "passport-scan-1"))

	// B upvotes: 1-0, approved.
	s.Require().NoError(s.service.UpVoteCustomer(s.asBank("bank-b"), "alice"))
	customer, err := s.service.ViewCustomer(s.asBank("bank-a"), "alice")
	s.Require().NoError(err)
	s.Equal(1, customer.UpVotes)
	s.Equal(0, customer.DownVotes)
	s.True(customer.KycStatus)

	// C downvotes: 1-1 tie, not approved.
	s.Require().NoError(s.service.DownVoteCustomer(s.asBank("bank-c"), "alice"))
	customer, err = s.service.ViewCustomer(s.asBank("bank-a"), "alice")
	s.Require().NoError(err)
	s.Equal(1, customer.UpVotes)
	s.Equal(1, customer.DownVotes)
	s.False(customer.KycStatus)

	// B tries again on unchanged data.
	err = s.service.UpVoteCustomer(s.asBank("bank-b"), "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
}

// =============================================================================
// Audit trail
// =============================================================================

func (s *ServiceSuite) TestAuditTrail() {
	// Three members so one complaint sits exactly at the 33% threshold and
	// bank-a stays eligible.
	s.addBanks("bank-a", "bank-b", "bank-c")
	s.Require().NoError(s.service.AddCustomer(s.asBank("bank-a"), "alice", "doc-v1"))
	s.Require().NoError(s.service.AddKycRequest(s.asBank("bank-a"), "alice", "doc-v1"))
	s.Require().NoError(s.service.UpVoteCustomer(s.asBank("bank-b"), "alice"))
	s.Require().NoError(s.service.ReportBank(s.asBank("bank-b"), "bank-a"))

	votes := s.events.ByAction(audit.ActionCustomerUpvoted)
	s.Require().Len(votes, 1)
	s.Equal("bank-b", votes[0].Actor)
	s.Equal("alice", votes[0].Subject)
	s.Equal("approved", votes[0].Outcome)

	reports := s.events.ByAction(audit.ActionBankReported)
	s.Require().Len(reports, 1)
	s.Equal("eligible", reports[0].Outcome)

	// Failed operations leave no trail.
	countBefore := len(s.events.Events())
	err := s.service.UpVoteCustomer(s.asBank("bank-b"), "alice")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	s.Len(s.events.Events(), countBefore)
}

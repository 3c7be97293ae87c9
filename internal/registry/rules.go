package registry

// Derived-status rules. Pure functions: no I/O, no side effects. Services call
// them after every mutation that can change an outcome; nothing transitions a
// status directly.

// ratioThresholdPct is the integer percentage above which the down-vote or
// complaint ratio overrides other signals.
const ratioThresholdPct = 33

// minFederationForRatio is the federation size the down-vote ratio override
// needs before it applies. Below this a single bank's down-vote would swing
// the percentage, so strict vote majority decides alone.
const minFederationForRatio = 10

// DetermineKycStatus derives a customer's KYC approval from the current vote
// counts and federation size. Integer division is intentional: it matches the
// ledger the federation migrated from, so thresholds land on the same side.
func DetermineKycStatus(totalBanks, upVotes, downVotes int) bool {
	if totalBanks > minFederationForRatio && (100*downVotes)/totalBanks > ratioThresholdPct {
		return false
	}
	return upVotes > downVotes
}

// DetermineVotingEligibility derives whether a bank may vote from its
// complaint count and the federation size. An empty federation cannot produce
// a meaningful ratio, so eligibility defaults to true.
func DetermineVotingEligibility(totalBanks, complaints int) bool {
	if totalBanks == 0 {
		return true
	}
	return (100*complaints)/totalBanks <= ratioThresholdPct
}

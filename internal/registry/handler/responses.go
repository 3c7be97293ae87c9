package handler

import "kycnet/internal/registry"

type bankResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number"`
	ComplaintsReported int    `json:"complaints_reported"`
	KycCount           int    `json:"kyc_count"`
	AllowedToVote      bool   `json:"allowed_to_vote"`
}

func toBankResponse(bank registry.Bank) bankResponse {
	return bankResponse{
		ID:                 bank.ID.String(),
		Name:               bank.Name,
		RegistrationNumber: bank.RegNumber,
		ComplaintsReported: bank.ComplaintsReported,
		KycCount:           bank.KycCount,
		AllowedToVote:      bank.AllowedToVote,
	}
}

type customerResponse struct {
	Username  string `json:"username"`
	Data      string `json:"data"`
	KycStatus bool   `json:"kyc_status"`
	UpVotes   int    `json:"up_votes"`
	DownVotes int    `json:"down_votes"`
	Bank      string `json:"bank"`
}

func toCustomerResponse(customer registry.Customer) customerResponse {
	return customerResponse{
		Username:  customer.Username.String(),
		Data:      customer.Data,
		KycStatus: customer.KycStatus,
		UpVotes:   customer.UpVotes,
		DownVotes: customer.DownVotes,
		Bank:      customer.Bank.String(),
	}
}

type complaintsResponse struct {
	BankID     string `json:"bank_id"`
	Complaints int    `json:"complaints"`
}

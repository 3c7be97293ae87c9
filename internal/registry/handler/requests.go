package handler

// Request payloads. Identifiers arrive as opaque strings and are parsed into
// typed keys at this boundary.

type addBankRequest struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number"`
}

type setEligibilityRequest struct {
	Allowed bool `json:"allowed"`
}

type addCustomerRequest struct {
	Username string `json:"username"`
	Data     string `json:"data"`
}

type modifyCustomerRequest struct {
	Data string `json:"data"`
}

type addKycRequestRequest struct {
	Data string `json:"data"`
}

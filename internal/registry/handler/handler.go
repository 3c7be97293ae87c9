// Package handler is the thin HTTP layer over the registry engine. It parses
// identifiers at the trust boundary and delegates; no business logic lives
// here so transport concerns stay isolated.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycnet/internal/registry"
	id "kycnet/pkg/domain"
	"kycnet/pkg/platform/httputil"
	"kycnet/pkg/requestcontext"
)

// Service defines the engine operations the handler exposes.
type Service interface {
	AddBank(ctx context.Context, name string, bankID id.BankID, regNumber string) error
	RemoveBank(ctx context.Context, bankID id.BankID) error
	SetBankVotingEligibility(ctx context.Context, bankID id.BankID, allowed bool) error
	ViewBankDetails(ctx context.Context, bankID id.BankID) (registry.Bank, error)
	GetBankComplaints(ctx context.Context, bankID id.BankID) (int, error)
	ReportBank(ctx context.Context, bankID id.BankID) error

	AddCustomer(ctx context.Context, username id.Username, data string) error
	ModifyCustomer(ctx context.Context, username id.Username, data string) error
	ViewCustomer(ctx context.Context, username id.Username) (registry.Customer, error)

	AddKycRequest(ctx context.Context, username id.Username, data string) error
	RemoveKycRequest(ctx context.Context, username id.Username) error
	UpVoteCustomer(ctx context.Context, username id.Username) error
	DownVoteCustomer(ctx context.Context, username id.Username) error
}

// CredentialRevoker ends a removed bank's access ahead of token expiry.
type CredentialRevoker interface {
	Revoke(ctx context.Context, bankID id.BankID) error
}

// Handler wires registry endpoints to the engine.
type Handler struct {
	service Service
	revoker CredentialRevoker
	logger  *slog.Logger
}

// New constructs a registry handler. revoker may be nil when token revocation
// is not configured.
func New(service Service, revoker CredentialRevoker, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		revoker: revoker,
		logger:  logger,
	}
}

// Register mounts the registry endpoints on the router. Auth middleware is
// applied by the caller; every route below assumes an established caller
// identity.
func (h *Handler) Register(r chi.Router) {
	r.Post("/banks", h.handleAddBank)
	r.Get("/banks/{bankID}", h.handleViewBankDetails)
	r.Delete("/banks/{bankID}", h.handleRemoveBank)
	r.Put("/banks/{bankID}/eligibility", h.handleSetEligibility)
	r.Get("/banks/{bankID}/complaints", h.handleGetComplaints)
	r.Post("/banks/{bankID}/complaints", h.handleReportBank)

	r.Post("/customers", h.handleAddCustomer)
	r.Get("/customers/{username}", h.handleViewCustomer)
	r.Put("/customers/{username}", h.handleModifyCustomer)
	r.Post("/customers/{username}/kyc-request", h.handleAddKycRequest)
	r.Delete("/customers/{username}/kyc-request", h.handleRemoveKycRequest)
	r.Post("/customers/{username}/upvote", h.handleUpVote)
	r.Post("/customers/{username}/downvote", h.handleDownVote)
}

func (h *Handler) handleAddBank(w http.ResponseWriter, r *http.Request) {
	var req addBankRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	bankID, err := id.ParseBankID(req.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.AddBank(r.Context(), req.Name, bankID, req.RegistrationNumber); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResult("bank registered"))
}

func (h *Handler) handleRemoveBank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bankID, err := id.ParseBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveBank(ctx, bankID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Best effort: the membership change is already committed; a revocation
	// failure only delays lockout until the token expires.
	if h.revoker != nil {
		if err := h.revoker.Revoke(ctx, bankID); err != nil {
			h.logger.ErrorContext(ctx, "failed to revoke removed bank's tokens",
				"bank_id", bankID.String(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, toResult("bank removed"))
}

func (h *Handler) handleSetEligibility(w http.ResponseWriter, r *http.Request) {
	bankID, err := id.ParseBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req setEligibilityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetBankVotingEligibility(r.Context(), bankID, req.Allowed); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult("eligibility updated"))
}

func (h *Handler) handleViewBankDetails(w http.ResponseWriter, r *http.Request) {
	bankID, err := id.ParseBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	bank, err := h.service.ViewBankDetails(r.Context(), bankID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBankResponse(bank))
}

func (h *Handler) handleGetComplaints(w http.ResponseWriter, r *http.Request) {
	bankID, err := id.ParseBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	complaints, err := h.service.GetBankComplaints(r.Context(), bankID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, complaintsResponse{
		BankID:     bankID.String(),
		Complaints: complaints,
	})
}

func (h *Handler) handleReportBank(w http.ResponseWriter, r *http.Request) {
	bankID, err := id.ParseBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ReportBank(r.Context(), bankID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult("complaint recorded"))
}

func (h *Handler) handleAddCustomer(w http.ResponseWriter, r *http.Request) {
	var req addCustomerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	username, err := id.ParseUsername(req.Username)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.AddCustomer(r.Context(), username, req.Data); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResult("customer created"))
}

func (h *Handler) handleModifyCustomer(w http.ResponseWriter, r *http.Request) {
	username, err := id.ParseUsername(chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req modifyCustomerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ModifyCustomer(r.Context(), username, req.Data); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult("customer updated"))
}

func (h *Handler) handleViewCustomer(w http.ResponseWriter, r *http.Request) {
	username, err := id.ParseUsername(chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	customer, err := h.service.ViewCustomer(r.Context(), username)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCustomerResponse(customer))
}

func (h *Handler) handleAddKycRequest(w http.ResponseWriter, r *http.Request) {
	username, err := id.ParseUsername(chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addKycRequestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.AddKycRequest(r.Context(), username, req.Data); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResult("kyc request filed"))
}

func (h *Handler) handleRemoveKycRequest(w http.ResponseWriter, r *http.Request) {
	username, err := id.ParseUsername(chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveKycRequest(r.Context(), username); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult("kyc request withdrawn"))
}

func (h *Handler) handleUpVote(w http.ResponseWriter, r *http.Request) {
	h.handleVote(w, r, h.service.UpVoteCustomer)
}

func (h *Handler) handleDownVote(w http.ResponseWriter, r *http.Request) {
	h.handleVote(w, r, h.service.DownVoteCustomer)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request, vote func(context.Context, id.Username) error) {
	username, err := id.ParseUsername(chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := vote(r.Context(), username); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult("vote recorded"))
}

func toResult(message string) map[string]string {
	return map[string]string{"result": message}
}

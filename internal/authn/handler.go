package authn

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "kycnet/pkg/domain"
	"kycnet/pkg/platform/httputil"
)

type tokenRequest struct {
	BankID string `json:"bank_id"`
	Secret string `json:"secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type credentialResponse struct {
	BankID string `json:"bank_id"`
	Secret string `json:"secret"`
}

// Handler exposes token issuance and credential provisioning.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublic mounts the unauthenticated token endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/token", h.handleIssueToken)
}

// RegisterProtected mounts admin-only credential provisioning; the caller
// must already be authenticated by the surrounding middleware.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/banks/{bankID}/credentials", h.handleProvisionCredential)
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	bankID, err := id.ParseBankID(req.BankID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	token, err := h.service.IssueToken(r.Context(), bankID, req.Secret)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
	})
}

func (h *Handler) handleProvisionCredential(w http.ResponseWriter, r *http.Request) {
	bankID, err := id.ParseBankID(chi.URLParam(r, "bankID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	secret, err := h.service.ProvisionCredential(r.Context(), bankID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, credentialResponse{
		BankID: bankID.String(),
		Secret: secret,
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/internal/usecases"
)

type HTTPHandler struct {
	logger    *slog.Logger
	validator TransactionValidator
	recovery  RecoveryWorkflow
	users     UserSearcher

	adminGuard *AdminGuard
	feed       *FeedManager
}

func NewHTTPHandler(
	logger *slog.Logger,
	validator TransactionValidator,
	recovery RecoveryWorkflow,
	users UserSearcher,
	adminGuard *AdminGuard,
	feed *FeedManager,
) *HTTPHandler {
	return &HTTPHandler{
		logger:     logger,
		validator:  validator,
		recovery:   recovery,
		users:      users,
		adminGuard: adminGuard,
		feed:       feed,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Public endpoint: end users submit the hash of the transfer they made.
	router.HandleFunc("/validate-transaction", h.ValidateTransaction).Methods("POST")

	// Operator endpoints behind the shared-secret guard.
	admin := router.NewRoute().Subrouter()
	admin.Use(h.adminGuard.Middleware)
	admin.HandleFunc("/payment-recoveries", h.ListPaymentRecoveries).Methods("GET")
	admin.HandleFunc("/payment-recoveries/{id}/process", h.ProcessPaymentRecovery).Methods("POST")
	admin.HandleFunc("/users/search", h.SearchUsers).Methods("GET")
	admin.HandleFunc("/ws/payment-recoveries", h.feed.HandleConnection).Methods("GET")
}

type claimantIdentityPayload struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	GithubLogin   string `json:"github_login"`
	WalletAddress string `json:"wallet_address"`
}

type validateTransactionRequest struct {
	TransactionHash  string                   `json:"transaction_hash"`
	ClaimantIdentity *claimantIdentityPayload `json:"claimant_identity"`
}

func (h *HTTPHandler) ValidateTransaction(w http.ResponseWriter, r *http.Request) {
	var req validateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionHash == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: transaction_hash")
		return
	}
	if req.ClaimantIdentity == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: claimant_identity")
		return
	}

	result, err := h.validator.ValidateAndActivate(r.Context(), usecases.ValidationRequest{
		TransactionHash: req.TransactionHash,
		Claimant:        toClaimant(*req.ClaimantIdentity),
	})
	if err != nil {
		h.logger.Error("Transaction validation failed", "error", err, "tx_hash", req.TransactionHash)
		writeError(w, statusForError(err), usecases.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": result.Message,
		"user_id": result.UserID,
	})
}

func (h *HTTPHandler) ListPaymentRecoveries(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = entities.CasePendingReview
	}

	cases, err := h.recovery.List(r.Context(), status)
	if err != nil {
		h.logger.Error("Failed to list payment recoveries", "error", err, "status", status)
		writeError(w, statusForError(err), usecases.UserMessage(err))
		return
	}
	if cases == nil {
		cases = []entities.RecoveryCase{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recoveries": cases,
		"total":      len(cases),
	})
}

type processRecoveryRequest struct {
	Action        string                   `json:"action"`
	MatchedUserID string                   `json:"matched_user_id"`
	AdminNotes    string                   `json:"admin_notes"`
	NewIdentity   *claimantIdentityPayload `json:"new_identity"`
	ProcessedBy   string                   `json:"processed_by"`
}

func (h *HTTPHandler) ProcessPaymentRecovery(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	var req processRecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: action")
		return
	}

	input := usecases.DisposeInput{
		CaseID:      caseID,
		Action:      req.Action,
		ProcessedBy: req.ProcessedBy,
	}
	if req.MatchedUserID != "" {
		input.MatchedUserID = &req.MatchedUserID
	}
	if req.AdminNotes != "" {
		input.AdminNotes = &req.AdminNotes
	}
	if req.NewIdentity != nil {
		identity := toNewIdentity(*req.NewIdentity)
		input.NewIdentity = &identity
	}

	result, err := h.recovery.Dispose(r.Context(), input)
	if err != nil {
		h.logger.Error("Failed to dispose recovery case", "error", err, "case_id", caseID, "action", req.Action)
		writeError(w, statusForError(err), usecases.UserMessage(err))
		return
	}

	response := map[string]any{
		"success": true,
		"message": result.Message,
	}
	if result.UserID != nil {
		response["user_id"] = *result.UserID
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if len(query) < 2 {
		writeError(w, http.StatusBadRequest, "Query must be at least 2 characters")
		return
	}

	users, err := h.users.SearchUsers(r.Context(), query)
	if err != nil {
		h.logger.Error("User search failed", "error", err, "query", query)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if users == nil {
		users = []entities.User{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": len(users),
	})
}

func toClaimant(payload claimantIdentityPayload) usecases.Claimant {
	if payload.UserID != "" {
		userID := payload.UserID
		return usecases.Claimant{UserID: &userID}
	}
	identity := toNewIdentity(payload)
	return usecases.Claimant{Identity: &identity}
}

func toNewIdentity(payload claimantIdentityPayload) entities.NewIdentity {
	identity := entities.NewIdentity{Username: payload.Username}
	if payload.Email != "" {
		identity.Email = &payload.Email
	}
	if payload.GithubLogin != "" {
		identity.GithubLogin = &payload.GithubLogin
	}
	if payload.WalletAddress != "" {
		identity.WalletAddress = &payload.WalletAddress
	}
	return identity
}

// statusForError translates the error taxonomy into HTTP statuses. The
// message sent to the client comes from usecases.UserMessage, which already
// hides chain and storage detail.
func statusForError(err error) int {
	if errors.Is(err, usecases.ErrCaseNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, usecases.ErrUserNotFound) {
		return http.StatusBadRequest
	}

	switch usecases.KindOf(err) {
	case usecases.KindValidation, usecases.KindConflict, usecases.KindUnconfirmed,
		usecases.KindChainQuery, usecases.KindConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

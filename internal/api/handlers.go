/**
 * @description
 * This file defines the HTTP handlers for the onboarding-service's API
 * endpoints. Handlers are responsible for parsing requests, calling the
 * appropriate service method, and writing the response.
 *
 * @dependencies
 * - Standard Go libraries for HTTP, JSON, etc.
 * - Chi router for URL parameter handling.
 * - The service's internal packages for app logic and middleware.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/transferhub/onboarding-service/internal/app"
	"github.com/transferhub/onboarding-service/internal/domain"
	"github.com/transferhub/onboarding-service/pkg/middleware"
)

// SubmissionHandler holds the dependencies for submission-related handlers.
type SubmissionHandler struct {
	service *app.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(service *app.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

// CreateSubmissionRequest defines the expected JSON body for submitting a
// verification document.
type CreateSubmissionRequest struct {
	Category       string `json:"category"`
	FirstName      string `json:"first_name,omitempty"`
	MiddleName     string `json:"middle_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	IDDocumentType string `json:"id_document_type,omitempty"`
	AddressText    string `json:"address_text,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
	Country        string `json:"country"`
	DocumentRef    string `json:"document_ref"`
}

// CreateSubmission handles ingestion of a new verification submission for the
// authenticated user.
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub := &domain.VerificationSubmission{
		UserID:         userID,
		Category:       domain.SubmissionCategory(req.Category),
		FirstName:      req.FirstName,
		MiddleName:     req.MiddleName,
		LastName:       req.LastName,
		DateOfBirth:    req.DateOfBirth,
		IDDocumentType: req.IDDocumentType,
		AddressText:    req.AddressText,
		DocumentType:   req.DocumentType,
		Country:        req.Country,
		DocumentRef:    req.DocumentRef,
	}

	created, err := h.service.Ingest(r.Context(), sub)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListSubmissions handles listing the authenticated user's submissions.
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	submissions, err := h.service.List(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, submissions)
}

// ReviewSubmissionRequest defines the request payload for a review decision.
type ReviewSubmissionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// ReviewSubmission handles the internal endpoint applying an approve, reject
// or reset decision to a submission.
func (h *SubmissionHandler) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "id")

	var req ReviewSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.Review(r.Context(), submissionID, domain.ReviewAction(req.Action), req.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "submission not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PurgeSubmission handles the internal endpoint for administrative deletion of
// a submission. Refused once provisioned resources depend on the user.
func (h *SubmissionHandler) PurgeSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "id")

	err := h.service.Purge(r.Context(), submissionID)
	if err != nil {
		if errors.Is(err, app.ErrPurgeBlocked) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "submission not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CustomerHandler holds the dependencies for customer-related handlers.
type CustomerHandler struct {
	orchestrator *app.Orchestrator
	synchronizer *app.Synchronizer
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(orchestrator *app.Orchestrator, synchronizer *app.Synchronizer) *CustomerHandler {
	return &CustomerHandler{orchestrator: orchestrator, synchronizer: synchronizer}
}

// CreateCustomer handles the user-initiated creation of a provider customer.
// The override flag is only honored on the internal variant.
func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.createCustomer(w, r, app.CreateCustomerInput{UserID: userID, Source: "api"})
}

// CreateInternalCustomerRequest defines the request payload for the internal
// customer creation endpoint.
type CreateInternalCustomerRequest struct {
	UserID        string `json:"user_id"`
	AdminOverride bool   `json:"admin_override"`
}

// CreateInternalCustomer handles server-to-server customer creation, including
// the administrative override channel.
func (h *CustomerHandler) CreateInternalCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateInternalCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	h.createCustomer(w, r, app.CreateCustomerInput{
		UserID:        req.UserID,
		AdminOverride: req.AdminOverride,
		Source:        "internal",
	})
}

func (h *CustomerHandler) createCustomer(w http.ResponseWriter, r *http.Request, input app.CreateCustomerInput) {
	result, err := h.orchestrator.CreateCustomer(r.Context(), input)
	if err != nil {
		var validationErr *app.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":          "validation failed",
				"errors":         validationErr.Errors,
				"missing_fields": validationErr.MissingFields,
				"warnings":       validationErr.Warnings,
			})
			return
		}
		var incompleteErr *app.PayloadIncompleteError
		if errors.As(err, &incompleteErr) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// RequestTermsLink handles issuing a terms-of-service acceptance link for the
// authenticated user.
func (h *CustomerHandler) RequestTermsLink(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	link, err := h.orchestrator.RequestTermsLink(r.Context(), userID)
	if err != nil {
		if errors.Is(err, app.ErrAgreementOnFile) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// ConfirmAgreementRequest defines the request payload for confirming that a
// terms link was signed.
type ConfirmAgreementRequest struct {
	LinkID string `json:"link_id"`
}

// ConfirmAgreement handles confirming a signed terms-of-service agreement.
func (h *CustomerHandler) ConfirmAgreement(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ConfirmAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.LinkID == "" {
		http.Error(w, "link_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.orchestrator.ConfirmAgreement(r.Context(), userID, req.LinkID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// GetStatus handles the read-through cached canonical status view for the
// authenticated user.
func (h *CustomerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.synchronizer.GetStatus(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// TriggerSync handles the internal endpoint for manually triggering a status
// sync for a user.
func (h *CustomerHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	result, err := h.synchronizer.Sync(r.Context(), userID)
	if err != nil {
		if errors.Is(err, app.ErrNoProviderCustomer) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// If encoding fails, we can't send a JSON error, so just log it.
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

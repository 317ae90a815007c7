package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/service/gate"
	"github.com/marketsafe/checkout-risk-backend/internal/service/linkage"
	"github.com/marketsafe/checkout-risk-backend/internal/service/verification"
)

// GateService is the assessment entry point the API depends on.
type GateService interface {
	Assess(ctx context.Context, in gate.BuildInput) (*gate.Outcome, error)
	GetAssessment(ctx context.Context, id uuid.UUID) (*risk.Assessment, error)
}

// VerificationService handles step-up submissions.
type VerificationService interface {
	Verify(ctx context.Context, tokenValue, code string) (*verification.VerifyResult, error)
}

// LinkageService attaches created orders to assessments.
type LinkageService interface {
	Link(ctx context.Context, assessmentID uuid.UUID, orderIDs []uuid.UUID) (*linkage.LinkResult, error)
	Links(ctx context.Context, assessmentID uuid.UUID) ([]risk.OrderLink, []risk.StoreLink, error)
}

// JustificationService reads and regenerates justifications.
type JustificationService interface {
	Get(ctx context.Context, assessmentID uuid.UUID) (*risk.Justification, error)
	Regenerate(ctx context.Context, assessmentID uuid.UUID) (*risk.Justification, error)
}

// Handler carries the service dependencies for the HTTP surface.
type Handler struct {
	gate          GateService
	verification  VerificationService
	linkage       LinkageService
	justification JustificationService
	validate      *validator.Validate
	logger        *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(gateSvc GateService, verificationSvc VerificationService, linkageSvc LinkageService, justificationSvc JustificationService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		gate:          gateSvc,
		verification:  verificationSvc,
		linkage:       linkageSvc,
		justification: justificationSvc,
		validate:      validator.New(),
		logger:        logger,
	}
}

// CreateAssessment handles POST /api/v1/assessments.
func (h *Handler) CreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req createAssessmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	outcome, err := h.gate.Assess(r.Context(), req.toBuildInput(clientIP(r)))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAssessmentOutcomeResponse(outcome))
}

// GetAssessment handles GET /api/v1/assessments/{id}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	assessment, err := h.gate.GetAssessment(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// LinkAssessment handles POST /api/v1/assessments/{id}/links.
func (h *Handler) LinkAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req linkRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.linkage.Link(r.Context(), id, req.OrderIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newLinkResponse(result))
}

// GetLinks handles GET /api/v1/assessments/{id}/links.
func (h *Handler) GetLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	orderLinks, storeLinks, err := h.linkage.Links(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessment_id": id,
		"orders":        orderLinks,
		"stores":        storeLinks,
	})
}

// Verify handles POST /api/v1/verifications/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.verification.Verify(r.Context(), req.Token, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Status:       result.Status,
		AssessmentID: result.AssessmentID,
		Decision:     result.Decision,
	})
}

// GetJustification handles GET /api/v1/assessments/{id}/justification.
func (h *Handler) GetJustification(w http.ResponseWriter, r *http.Request) {
	h.serveJustification(w, r, h.justification.Get)
}

// RegenerateJustification handles POST /api/v1/assessments/{id}/justification.
func (h *Handler) RegenerateJustification(w http.ResponseWriter, r *http.Request) {
	h.serveJustification(w, r, h.justification.Regenerate)
}

func (h *Handler) serveJustification(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*risk.Justification, error)) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	j, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, justificationResponse{
		AssessmentID: id,
		Text:         j.Text,
		Source:       j.Source,
		GeneratedAt:  j.GeneratedAt,
	})
}

// decode unmarshals and validates the request body. A false return means a
// response was already written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		field := ""
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Namespace()
		}
		writeValidationError(w, h.logger, field)
		return false
	}
	return true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, h.logger, errors.NewValidationError("INVALID_ID", "path id is not a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// clientIP resolves the originating address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

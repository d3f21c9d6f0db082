package http

import (
	"log/slog"
	"net/http"
	"time"

	mw "github.com/lorrc/turnos-queue/internal/adapters/primary/http/middleware"
	"github.com/lorrc/turnos-queue/internal/adapters/primary/validation"
	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

const pairingCodeLength = 6

// DisplayHandler handles display pairing. Code generation is an operator
// action; redemption is unauthenticated since the display has no credential
// yet.
type DisplayHandler struct {
	pairingService ports.PairingService
	errorHandler   *ErrorHandler
	logger         *slog.Logger
}

// NewDisplayHandler creates a new display handler
func NewDisplayHandler(
	pairingService ports.PairingService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *DisplayHandler {
	return &DisplayHandler{
		pairingService: pairingService,
		errorHandler:   errorHandler,
		logger:         logger.With("handler", "display"),
	}
}

// PairingCodeResponse is the JSON representation of a generated pairing code
type PairingCodeResponse struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expiresAt"`
}

// PairRequest defines the expected JSON body for redeeming a pairing code
type PairRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Validate validates the pair request
func (r *PairRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("code", r.Code).
		Length("code", r.Code, pairingCodeLength)
	v.MaxLength("name", r.Name, 100)

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// PairResponse carries the paired display and its device token
type PairResponse struct {
	Display *domain.Display `json:"display"`
	Token   string          `json:"token"`
}

// HandleGeneratePairingCode handles POST /displays/pairing-codes. The code is
// scoped to the operator's tenant.
func (h *DisplayHandler) HandleGeneratePairingCode(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	code, err := h.pairingService.GeneratePairingCode(r.Context(), claims.TenantID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteCreated(w, PairingCodeResponse{
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt.Format(time.RFC3339),
	})
}

// HandlePair handles POST /displays/pair
func (h *DisplayHandler) HandlePair(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[PairRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	display, token, err := h.pairingService.Pair(r.Context(), req.Code, req.Name)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.Info("display paired", "display_id", display.ID, "tenant_id", display.TenantID)

	WriteSuccess(w, PairResponse{
		Display: display,
		Token:   token,
	})
}

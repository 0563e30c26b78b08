package commerce

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/freightdesk/internal/platform/httpx"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// PublicHandler serves the anonymous token endpoints.
type PublicHandler struct {
	logger    *slog.Logger
	gateway   *Gateway
	validator *validator.Validate
}

// NewPublicHandler constructs a PublicHandler.
func NewPublicHandler(logger *slog.Logger, gateway *Gateway) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{logger: logger, gateway: gateway, validator: validator.New()}
}

func (h *PublicHandler) fetch(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.gateway.FetchByToken(r.Context(), kind, chi.URLParam(r, "token"))
		if err != nil {
			h.fail(w, "fetch by token", err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}

func (h *PublicHandler) accept(w http.ResponseWriter, r *http.Request) {
	view, err := h.gateway.Accept(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, "accept by token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *PublicHandler) reject(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if r.ContentLength != 0 && !decodeAndValidate(h.validator, w, r, &req) {
		return
	}
	view, err := h.gateway.Reject(r.Context(), chi.URLParam(r, "token"), req.Reason)
	if err != nil {
		h.fail(w, "reject by token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *PublicHandler) requestChanges(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeAndValidate(h.validator, w, r, &req) {
		return
	}
	view, err := h.gateway.RequestChanges(r.Context(), chi.URLParam(r, "token"), req.Comment)
	if err != nil {
		h.fail(w, "request changes by token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *PublicHandler) quotePDF(w http.ResponseWriter, r *http.Request) {
	body, filename, err := h.gateway.QuotePDF(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, "render public pdf", err)
		return
	}
	httpx.Binary(w, "application/pdf", filename, body)
}

func (h *PublicHandler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		// Same body for every lookup failure.
		httpx.RespondNotFound(w, errDocumentNotFound.Error())
		return
	}
	logFailure(h.logger, op, err)
	httpx.RespondError(w, err)
}

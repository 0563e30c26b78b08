package commerce

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/freightdesk/internal/platform/httpx"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// IdempotencyGuard claims client request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}

const paymentScope = "invoice-payment"

// Handler serves the staff JSON API for quotes and invoices.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency IdempotencyGuard
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// WithIdempotency makes payment registration honour the Idempotency-Key header.
func (h *Handler) WithIdempotency(guard IdempotencyGuard) *Handler {
	h.idempotency = guard
	return h
}

type documentDetail struct {
	Document *Document      `json:"document"`
	View     DocumentView   `json:"view"`
	History  []HistoryEntry `json:"history"`
	Allowed  []Status       `json:"allowed_transitions"`
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		var req CreateRequest
		if !h.decode(w, r, &req) {
			return
		}
		doc, err := h.service.Create(r.Context(), kind, req, actor)
		if err != nil {
			h.fail(w, "create document", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Kind:   kind,
			Status: Status(strings.ToUpper(q.Get("status"))),
			Search: q.Get("search"),
		}
		if raw := q.Get("client_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httpx.RespondError(w, shared.Validation("client_id", "must be an integer"))
				return
			}
			filter.ClientID = &id
		}
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		filter.Offset, _ = strconv.Atoi(q.Get("offset"))

		docs, total, err := h.service.List(r.Context(), filter)
		if err != nil {
			h.fail(w, "list documents", err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"data":       docs,
			"pagination": shared.NewPagination(filter.Limit, filter.Offset, total),
		})
	}
}

func (h *Handler) get(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		detail, err := h.loadDetail(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "get document", err)
			return
		}
		httpx.JSON(w, http.StatusOK, detail)
	}
}

func (h *Handler) loadDetail(ctx context.Context, kind Kind, id int64) (documentDetail, error) {
	var detail documentDetail
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		doc, err := h.service.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		detail.Document = doc
		return nil
	})

	g.Go(func() error {
		entries, err := h.service.History(ctx, kind, id)
		if err != nil {
			return err
		}
		detail.History = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return documentDetail{}, err
	}
	detail.View = h.service.View(detail.Document)
	detail.Allowed = machineFor(kind).Allowed(detail.Document.Status)
	return detail, nil
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req UpdateRequest
		if !h.decode(w, r, &req) {
			return
		}
		doc, err := h.service.Update(r.Context(), kind, id, req, actor)
		if err != nil {
			h.fail(w, "update document", err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) changeStatus(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req StatusRequest
		if !h.decode(w, r, &req) {
			return
		}
		doc, err := h.service.ChangeStatus(r.Context(), kind, id, req, actor)
		if err != nil {
			h.fail(w, "change status", err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) send(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req SendRequest
		if r.ContentLength != 0 && !h.decode(w, r, &req) {
			return
		}
		doc, err := h.service.Send(r.Context(), kind, id, req, actor)
		if err != nil {
			h.fail(w, "send document", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, doc)
	}
}

func (h *Handler) history(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		entries, err := h.service.History(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "load history", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
	}
}

func (h *Handler) pdf(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		body, filename, err := h.service.PDF(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "render pdf", err)
			return
		}
		httpx.Binary(w, "application/pdf", filename, body)
	}
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.ConvertToInvoice(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "convert quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, paymentScope); err != nil {
			h.fail(w, "claim idempotency key", err)
			return
		}
	}
	doc, err := h.service.RegisterPayment(r.Context(), id, req, actor)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if releaseErr := h.idempotency.Release(context.WithoutCancel(r.Context()), key, paymentScope); releaseErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", releaseErr))
			}
		}
		h.fail(w, "register payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Guest {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeAndValidate(h.validator, w, r, dst)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	logFailure(h.logger, op, err)
	httpx.RespondError(w, err)
}

func decodeAndValidate(v *validator.Validate, w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.RespondError(w, shared.Validation(jsonField(verrs[0].Namespace()), "failed on %s", verrs[0].Tag()))
			return false
		}
		httpx.RespondError(w, shared.Validation("", "%s", err.Error()))
		return false
	}
	return true
}

// jsonField turns a validator namespace such as CreateRequest.Lines[0].Unit into lines[0].unit.
func jsonField(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		namespace = namespace[i+1:]
	}
	return strings.ToLower(namespace)
}

// logFailure logs unexpected errors; client errors stay quiet.
func logFailure(logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, shared.ErrDuplicate),
		errors.Is(err, shared.ErrConcurrencyConflict):
		logger.Debug(op+" rejected", slog.Any("error", err))
	default:
		logger.Error(op+" failed", slog.Any("error", err))
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("id", "invalid document id"))
		return 0, false
	}
	return id, true
}

package fulfillment

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages fulfillment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	audit    *shared.AuditLogger
	idem     *shared.IdempotencyStore
}

// NewHandler builds Handler instance. Audit and idempotency are optional;
// nil disables them.
func NewHandler(logger *slog.Logger, service *Service, audit *shared.AuditLogger, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), audit: audit, idem: idem}
}

// MountRoutes registers fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/issues/{id}", h.getIssue)
	r.Get("/orders/{orderID}/issues", h.listIssues)
	r.Post("/orders/{orderID}/issues", h.postGoodsIssue)
}

func (h *Handler) getIssue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid issue id")
		return
	}

	note, err := h.service.GetIssue(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) listIssues(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	notes, err := h.service.ListIssues(r.Context(), orderID)
	if err != nil {
		h.logger.Error("list goods issues", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notes)
}

func (h *Handler) postGoodsIssue(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	var input PostGoodsIssueInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondValidation(w, err)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "fulfillment"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	note, err := h.service.PostGoodsIssue(r.Context(), orderID, input)
	if err != nil {
		if idemKey != "" && h.idem != nil {
			if delErr := h.idem.Delete(context.WithoutCancel(r.Context()), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.logger.Warn("goods issue rejected", slog.Int64("order_id", orderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			Action:   "goods_issue.posted",
			Entity:   "sales_order",
			EntityID: strconv.FormatInt(orderID, 10),
			Meta:     map[string]any{"number": note.Number, "amount": note.IssueAmount},
		}); err != nil {
			h.logger.Warn("audit record", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, note)
}

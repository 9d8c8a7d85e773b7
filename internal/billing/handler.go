package billing

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

// Handler manages billing endpoints.
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

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.generateInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Post("/{id}/send", h.sendInvoice)
		r.Get("/{id}/payments", h.listPayments)
		r.Post("/{id}/reconcile", h.reconcile)
	})
	r.Post("/payments", h.createPayment)
	r.Post("/payments/{id}/confirm", h.confirmPayment)
	r.Post("/payments/{id}/fail", h.failPayment)
	r.Get("/orders/{orderID}/invoices", h.listInvoices)
	r.Get("/orders/{orderID}/debt", h.getDebt)
}

func (h *Handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	var input GenerateInvoiceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondValidation(w, err)
		return
	}

	invoice, err := h.service.GenerateInvoice(r.Context(), input)
	if err != nil {
		h.logger.Warn("generate invoice rejected", slog.Int64("order_id", input.OrderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}

	invoice, err := h.service.SendInvoice(r.Context(), id)
	if err != nil {
		h.logger.Warn("send invoice rejected", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), orderID)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}

	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var input CreatePaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondValidation(w, err)
		return
	}

	payment, err := h.service.CreatePaymentRemain(r.Context(), input)
	if err != nil {
		h.logger.Warn("create payment rejected", slog.Int64("invoice_id", input.InvoiceID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "billing"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	payment, err := h.service.MarkPaymentSuccess(r.Context(), id)
	if err != nil {
		if idemKey != "" && h.idem != nil {
			if delErr := h.idem.Delete(context.WithoutCancel(r.Context()), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.logger.Warn("confirm payment rejected", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			Action:   "payment.confirmed",
			Entity:   "payment_remain",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"invoice_id": payment.InvoiceID, "amount": payment.Amount},
		}); err != nil {
			h.logger.Warn("audit record", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) failPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}

	payment, err := h.service.MarkPaymentFailed(r.Context(), id)
	if err != nil {
		h.logger.Warn("fail payment rejected", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}

	if err := h.service.Reconcile(r.Context(), id); err != nil {
		h.logger.Error("reconcile invoice", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) getDebt(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}

	debt, err := h.service.GetDebt(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, debt)
}

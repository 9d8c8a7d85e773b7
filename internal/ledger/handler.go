package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler manages lot ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers lot ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots/{id}", h.getLot)
	r.Get("/lots/{id}/adjustments", h.listAdjustments)
	r.Get("/products/{productID}/lots", h.listLotsByProduct)
	r.Post("/adjustments", h.adjustFromPhysicalCount)
	r.Post("/fulfillment-plan", h.planFulfillment)
}

func (h *Handler) getLot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid lot id")
		return
	}

	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) listLotsByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}

	lots, err := h.service.ListLotsByProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("list lots", slog.Int64("product_id", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid lot id")
		return
	}

	adjustments, err := h.service.ListAdjustments(r.Context(), id)
	if err != nil {
		h.logger.Error("list adjustments", slog.Int64("lot_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustments)
}

func (h *Handler) adjustFromPhysicalCount(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondValidation(w, err)
		return
	}

	adjustment, err := h.service.AdjustFromPhysicalCount(r.Context(), input)
	if err != nil {
		h.logger.Error("physical count adjustment", slog.Int64("lot_id", input.LotID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustment)
}

type planRequest struct {
	Requests []PickRequest `json:"requests" validate:"required,min=1,dive"`
}

func (h *Handler) planFulfillment(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}

	plan, err := h.service.PlanFulfillment(r.Context(), req.Requests)
	if err != nil {
		h.logger.Error("fulfillment plan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

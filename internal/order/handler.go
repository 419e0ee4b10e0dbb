package order

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/procurehub/internal/platform/httpx"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

// Handler exposes the vendor order HTTP API.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs Handler.
func NewHandler(svc *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, logger: logger}
}

// MountRoutes attaches order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests/{requestID}/orders", h.createFromApproval)
	r.Get("/requests/{requestID}/orders", h.listByRequest)
	r.Get("/vendors/{vendorID}/orders", h.listByVendor)
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/history", h.history)
		r.Get("/timeline", h.timeline)
		r.Post("/confirm", h.confirm)
		r.Post("/status", h.updateStatus)
	})
}

type orderView struct {
	ID                    int64      `json:"id"`
	OrderNumber           string     `json:"order_number"`
	ReferenceID           string     `json:"reference_id"`
	RequestID             int64      `json:"request_id"`
	VendorID              int64      `json:"vendor_id"`
	ItemDescription       string     `json:"item_description"`
	OrderedQuantity       int64      `json:"ordered_quantity"`
	UnitPrice             string     `json:"unit_price"`
	TotalPrice            string     `json:"total_price"`
	Status                Status     `json:"status"`
	StatusDisplay         string     `json:"status_display"`
	StatusColor           string     `json:"status_color"`
	ConfirmedAt           *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedByVendor     bool       `json:"confirmed_by_vendor"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ShippedAt             *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt           *time.Time `json:"delivered_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	TrackingNumber        string     `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
	ActualDeliveryDate    *time.Time `json:"actual_delivery_date,omitempty"`
	VendorNotes           string     `json:"vendor_notes,omitempty"`
	AdminNotes            string     `json:"admin_notes,omitempty"`
	CreatedBy             int64      `json:"created_by"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func toOrderView(o VendorOrder) orderView {
	return orderView{
		ID:                    o.ID,
		OrderNumber:           o.OrderNumber,
		ReferenceID:           o.ReferenceID,
		RequestID:             o.RequestID,
		VendorID:              o.VendorID,
		ItemDescription:       o.ItemDescription,
		OrderedQuantity:       o.OrderedQuantity,
		UnitPrice:             o.UnitPrice.String(),
		TotalPrice:            o.TotalPrice.String(),
		Status:                o.Status,
		StatusDisplay:         o.Status.Display(),
		StatusColor:           o.Status.Color(),
		ConfirmedAt:           o.ConfirmedAt,
		ConfirmedByVendor:     o.ConfirmedByVendor,
		ProcessingStartedAt:   o.ProcessingStartedAt,
		ShippedAt:             o.ShippedAt,
		DeliveredAt:           o.DeliveredAt,
		CompletedAt:           o.CompletedAt,
		CancelledAt:           o.CancelledAt,
		TrackingNumber:        o.TrackingNumber,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		ActualDeliveryDate:    o.ActualDeliveryDate,
		VendorNotes:           o.VendorNotes,
		AdminNotes:            o.AdminNotes,
		CreatedBy:             o.CreatedBy,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

type creationResultView struct {
	OrdersCreated  int             `json:"orders_created"`
	Orders         []orderView     `json:"orders"`
	Failures       []VendorFailure `json:"failures,omitempty"`
	SkippedVendors []int64         `json:"skipped_vendors,omitempty"`
}

func param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidation("invalid " + name)
	}
	return id, nil
}

func (h *Handler) createFromApproval(w http.ResponseWriter, r *http.Request) {
	requestID, err := param(r, "requestID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CreateFromApprovalInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.RequestID = requestID
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	result, err := h.svc.CreateFromApproval(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view := creationResultView{
		OrdersCreated:  result.OrdersCreated,
		Orders:         make([]orderView, 0, len(result.Orders)),
		Failures:       result.Failures,
		SkippedVendors: result.SkippedVendors,
	}
	for _, o := range result.Orders {
		view.Orders = append(view.Orders, toOrderView(o))
	}
	status := http.StatusCreated
	if result.OrdersCreated == 0 {
		status = http.StatusOK
	}
	httpx.OK(w, status, "order creation finished", view)
}

func (h *Handler) listByRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := param(r, "requestID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, err := h.svc.ListByRequest(r.Context(), requestID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	httpx.OK(w, http.StatusOK, "", views)
}

func (h *Handler) listByVendor(w http.ResponseWriter, r *http.Request) {
	vendorID, err := param(r, "vendorID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, err := h.svc.ListByVendor(r.Context(), vendorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	httpx.OK(w, http.StatusOK, "", views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", toOrderView(o))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	history, err := h.svc.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type historyView struct {
		OldStatus Status    `json:"old_status,omitempty"`
		NewStatus Status    `json:"new_status"`
		ChangedBy int64     `json:"changed_by"`
		Notes     string    `json:"notes,omitempty"`
		ChangedAt time.Time `json:"changed_at"`
	}
	views := make([]historyView, 0, len(history))
	for _, entry := range history {
		views = append(views, historyView{
			OldStatus: entry.OldStatus,
			NewStatus: entry.NewStatus,
			ChangedBy: entry.ChangedBy,
			Notes:     entry.Notes,
			ChangedAt: entry.ChangedAt,
		})
	}
	httpx.OK(w, http.StatusOK, "", views)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", o.TimelineEvents())
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ConfirmInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.OrderID = id
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	o, err := h.svc.Confirm(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "order confirmed", toOrderView(o))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateStatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.OrderID = id
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	o, err := h.svc.UpdateStatus(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "order status updated", toOrderView(o))
}

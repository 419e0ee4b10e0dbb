package request

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

// Handler exposes the purchase request HTTP API.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs Handler.
func NewHandler(svc *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, logger: logger}
}

// MountRoutes attaches request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.remove)
			r.Post("/submit", h.submit)
			r.Post("/start-vendor-upload", h.startVendorUpload)
			r.Post("/start-analysis", h.startAnalysis)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
		})
	})
}

type itemView struct {
	ID            int64   `json:"id"`
	ProductID     int64   `json:"product_id"`
	Quantity      int64   `json:"quantity"`
	UnitPrice     *string `json:"unit_price,omitempty"`
	TotalPrice    string  `json:"total_price"`
	Specification string  `json:"specification,omitempty"`
}

type requestView struct {
	ID                   int64      `json:"id"`
	ReferenceID          string     `json:"reference_id"`
	RequestNumber        string     `json:"request_number"`
	RequesterID          int64      `json:"requester_id"`
	DepartmentID         int64      `json:"department_id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	TotalBudget          string     `json:"total_budget"`
	RequiredDate         time.Time  `json:"required_date,omitempty"`
	Priority             Priority   `json:"priority"`
	Status               Status     `json:"status"`
	BudgetYear           int        `json:"budget_year"`
	BudgetCategory       string     `json:"budget_category"`
	VendorUploadDeadline time.Time  `json:"vendor_upload_deadline"`
	AnalysisDeadline     time.Time  `json:"analysis_deadline"`
	ApprovalDeadline     time.Time  `json:"approval_deadline"`
	ApprovalNotes        string     `json:"approval_notes,omitempty"`
	ApprovedBy           int64      `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty"`
	RejectionReason      string     `json:"rejection_reason,omitempty"`
	RejectedBy           int64      `json:"rejected_by,omitempty"`
	RejectedAt           *time.Time `json:"rejected_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	Items                []itemView `json:"items,omitempty"`
}

func toItemViews(items []Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		v := itemView{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			TotalPrice:    item.TotalPrice.String(),
			Specification: item.Specification,
		}
		if item.UnitPrice != nil {
			s := item.UnitPrice.String()
			v.UnitPrice = &s
		}
		views = append(views, v)
	}
	return views
}

func toRequestView(pr PurchaseRequest, items []Item) requestView {
	return requestView{
		ID:                   pr.ID,
		ReferenceID:          pr.ReferenceID,
		RequestNumber:        pr.RequestNumber,
		RequesterID:          pr.RequesterID,
		DepartmentID:         pr.DepartmentID,
		Title:                pr.Title,
		Description:          pr.Description,
		TotalBudget:          pr.TotalBudget.String(),
		RequiredDate:         pr.RequiredDate,
		Priority:             pr.Priority,
		Status:               pr.Status,
		BudgetYear:           pr.BudgetYear,
		BudgetCategory:       pr.BudgetCategory,
		VendorUploadDeadline: pr.VendorUploadDeadline,
		AnalysisDeadline:     pr.AnalysisDeadline,
		ApprovalDeadline:     pr.ApprovalDeadline,
		ApprovalNotes:        pr.ApprovalNotes,
		ApprovedBy:           pr.ApprovedBy,
		ApprovedAt:           pr.ApprovedAt,
		RejectionReason:      pr.RejectionReason,
		RejectedBy:           pr.RejectedBy,
		RejectedAt:           pr.RejectedAt,
		CreatedAt:            pr.CreatedAt,
		UpdatedAt:            pr.UpdatedAt,
		Items:                toItemViews(items),
	}
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidation("invalid request id")
	}
	return id, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	pr, items, err := h.svc.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "purchase request created", toRequestView(pr, items))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Status: Status(q.Get("status")),
		Search: q.Get("search"),
	}
	if v := q.Get("department_id"); v != "" {
		filters.DepartmentID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("requester_id"); v != "" {
		filters.RequesterID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		filters.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filters.Offset, _ = strconv.Atoi(v)
	}
	requests, err := h.svc.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]requestView, 0, len(requests))
	for _, pr := range requests {
		views = append(views, toRequestView(pr, nil))
	}
	httpx.OK(w, http.StatusOK, "", views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pr, items, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", toRequestView(pr, items))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	pr, items, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "purchase request updated", toRequestView(pr, items))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ActorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		in = ActorInput{}
	}
	if err := h.svc.Delete(r.Context(), id, in.ActorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "purchase request deleted", nil)
}

func (h *Handler) actorTransition(w http.ResponseWriter, r *http.Request, fn func(int64, int64) (PurchaseRequest, error), message string) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ActorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	pr, err := fn(id, in.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, message, toRequestView(pr, nil))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.actorTransition(w, r, func(id, actorID int64) (PurchaseRequest, error) {
		return h.svc.Submit(r.Context(), id, actorID)
	}, "purchase request submitted")
}

func (h *Handler) startVendorUpload(w http.ResponseWriter, r *http.Request) {
	h.actorTransition(w, r, func(id, actorID int64) (PurchaseRequest, error) {
		return h.svc.StartVendorUpload(r.Context(), id, actorID)
	}, "vendor upload window opened")
}

func (h *Handler) startAnalysis(w http.ResponseWriter, r *http.Request) {
	h.actorTransition(w, r, func(id, actorID int64) (PurchaseRequest, error) {
		return h.svc.StartAnalysis(r.Context(), id, actorID)
	}, "analysis started")
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ApproveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.RequestID = id
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	pr, err := h.svc.Approve(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "purchase request approved", toRequestView(pr, nil))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RejectInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.RequestID = id
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	pr, err := h.svc.Reject(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "purchase request rejected", toRequestView(pr, nil))
}

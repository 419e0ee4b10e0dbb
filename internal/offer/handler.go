package offer

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

// Handler exposes the vendor offer HTTP API.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs Handler.
func NewHandler(svc *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, logger: logger}
}

// MountRoutes attaches offer routes. Submission and listing hang off the
// owning request; per-offer operations use the offer id.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requests/{requestID}/offers", func(r chi.Router) {
		r.Get("/", h.listByRequest)
		r.Post("/", h.submit)
		r.Post("/begin-review", h.beginReview)
		r.Post("/finalize", h.finalize)
	})
	r.Route("/offers/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/select", h.selectLineItems)
		r.Post("/analysis", h.storeAnalysis)
	})
}

type lineItemView struct {
	ID               int64      `json:"id"`
	RequestItemID    int64      `json:"request_item_id,omitempty"`
	VendorUnitPrice  string     `json:"vendor_unit_price"`
	VendorQuantity   int64      `json:"vendor_quantity"`
	VendorTotalPrice string     `json:"vendor_total_price"`
	Specifications   string     `json:"specifications,omitempty"`
	Brand            string     `json:"brand,omitempty"`
	Category         string     `json:"category,omitempty"`
	IsSelected       bool       `json:"is_selected"`
	SelectedQuantity int64      `json:"selected_quantity,omitempty"`
	SelectedBy       int64      `json:"selected_by,omitempty"`
	SelectedAt       *time.Time `json:"selected_at,omitempty"`
	SelectionNotes   string     `json:"selection_notes,omitempty"`
}

type attachmentView struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	Checksum   string    `json:"checksum,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type analysisView struct {
	PriceScore      int                 `json:"price_score"`
	QualityScore    int                 `json:"quality_score"`
	DeliveryScore   int                 `json:"delivery_score"`
	ReputationScore int                 `json:"reputation_score"`
	PaymentScore    int                 `json:"payment_score"`
	TotalScore      string              `json:"total_score"`
	Recommendation  RecommendationLevel `json:"recommendation"`
	Method          string              `json:"method,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedBy       int64               `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
}

type offerView struct {
	ID               int64            `json:"id"`
	ReferenceID      string           `json:"reference_id"`
	RequestID        int64            `json:"request_id"`
	VendorID         int64            `json:"vendor_id"`
	Status           Status           `json:"status"`
	TotalQuotedPrice string           `json:"total_quoted_price"`
	DeliveryTimeDays int              `json:"delivery_time_days"`
	PaymentTerms     string           `json:"payment_terms,omitempty"`
	QualityRating    int              `json:"quality_rating,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LineItems        []lineItemView   `json:"line_items,omitempty"`
	Attachments      []attachmentView `json:"attachments,omitempty"`
	Analysis         *analysisView    `json:"analysis,omitempty"`
}

func toOfferView(o VendorOffer, items []LineItem, attachments []Attachment, analysis *Analysis) offerView {
	view := offerView{
		ID:               o.ID,
		ReferenceID:      o.ReferenceID,
		RequestID:        o.RequestID,
		VendorID:         o.VendorID,
		Status:           o.Status,
		TotalQuotedPrice: o.TotalQuotedPrice.String(),
		DeliveryTimeDays: o.DeliveryTimeDays,
		PaymentTerms:     o.PaymentTerms,
		QualityRating:    o.QualityRating,
		Notes:            o.Notes,
		SubmittedAt:      o.SubmittedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	for _, item := range items {
		view.LineItems = append(view.LineItems, lineItemView{
			ID:               item.ID,
			RequestItemID:    item.RequestItemID,
			VendorUnitPrice:  item.VendorUnitPrice.String(),
			VendorQuantity:   item.VendorQuantity,
			VendorTotalPrice: item.VendorTotalPrice.String(),
			Specifications:   item.Specifications,
			Brand:            item.Brand,
			Category:         item.Category,
			IsSelected:       item.IsSelected,
			SelectedQuantity: item.SelectedQuantity,
			SelectedBy:       item.SelectedBy,
			SelectedAt:       item.SelectedAt,
			SelectionNotes:   item.SelectionNotes,
		})
	}
	for _, att := range attachments {
		view.Attachments = append(view.Attachments, attachmentView{
			ID:         att.ID,
			FileName:   att.FileName,
			FilePath:   att.FilePath,
			FileSize:   att.FileSize,
			Checksum:   att.Checksum,
			UploadedAt: att.UploadedAt,
		})
	}
	if analysis != nil {
		view.Analysis = &analysisView{
			PriceScore:      analysis.PriceScore,
			QualityScore:    analysis.QualityScore,
			DeliveryScore:   analysis.DeliveryScore,
			ReputationScore: analysis.ReputationScore,
			PaymentScore:    analysis.PaymentScore,
			TotalScore:      analysis.TotalScore.String(),
			Recommendation:  analysis.Recommendation,
			Method:          analysis.Method,
			Notes:           analysis.Notes,
			CreatedBy:       analysis.CreatedBy,
			CreatedAt:       analysis.CreatedAt,
		}
	}
	return view
}

func param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidation("invalid " + name)
	}
	return id, nil
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	requestID, err := param(r, "requestID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in SubmitInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.RequestID = requestID
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	offer, items, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "offer submitted", toOfferView(offer, items, nil, nil))
}

func (h *Handler) listByRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := param(r, "requestID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	offers, err := h.svc.ListByRequest(r.Context(), requestID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]offerView, 0, len(offers))
	for _, o := range offers {
		views = append(views, toOfferView(o, nil, nil, nil))
	}
	httpx.OK(w, http.StatusOK, "", views)
}

func (h *Handler) beginReview(w http.ResponseWriter, r *http.Request) {
	requestID, err := param(r, "requestID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.svc.BeginReview(r.Context(), requestID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "offers moved to review", nil)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	requestID, err := param(r, "requestID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.svc.FinalizeStatuses(r.Context(), requestID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "offer statuses finalized", nil)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	offer, items, attachments, analysis, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", toOfferView(offer, items, attachments, analysis))
}

func (h *Handler) selectLineItems(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in SelectInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.OfferID = id
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	offer, items, err := h.svc.SelectLineItems(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "line items selected", toOfferView(offer, items, nil, nil))
}

func (h *Handler) storeAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in AnalysisInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), "invalid JSON payload")
		return
	}
	in.OfferID = id
	if err := h.validate.Struct(in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(shared.KindValidation), err.Error())
		return
	}
	analysis, err := h.svc.StoreAnalysis(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, "analysis stored", toOfferView(VendorOffer{ID: id}, nil, nil, &analysis))
}

package offer

import "github.com/shopspring/decimal"

// LineItemInput is one quoted line in a submission.
type LineItemInput struct {
	RequestItemID   int64           `json:"request_item_id,omitempty"`
	VendorUnitPrice decimal.Decimal `json:"vendor_unit_price" validate:"required"`
	VendorQuantity  int64           `json:"vendor_quantity" validate:"required,gt=0"`
	Specifications  string          `json:"specifications,omitempty"`
	Brand           string          `json:"brand,omitempty"`
	Category        string          `json:"category,omitempty"`
}

// AttachmentInput carries metadata of an already-stored file.
type AttachmentInput struct {
	FileName string `json:"file_name" validate:"required"`
	FilePath string `json:"file_path" validate:"required"`
	FileSize int64  `json:"file_size" validate:"gte=0"`
	Checksum string `json:"checksum,omitempty"`
}

// SubmitInput is a vendor's offer payload.
type SubmitInput struct {
	RequestID        int64             `json:"-"`
	VendorID         int64             `json:"vendor_id" validate:"required,gt=0"`
	DeliveryTimeDays int               `json:"delivery_time_days" validate:"gte=0"`
	PaymentTerms     string            `json:"payment_terms,omitempty"`
	QualityRating    int               `json:"quality_rating" validate:"omitempty,min=1,max=5"`
	Notes            string            `json:"notes,omitempty"`
	LineItems        []LineItemInput   `json:"line_items" validate:"required,min=1,dive"`
	Attachments      []AttachmentInput `json:"attachments,omitempty" validate:"omitempty,dive"`
}

// Selection picks a quantity from one offer line.
type Selection struct {
	LineItemID       int64  `json:"line_item_id" validate:"required,gt=0"`
	SelectedQuantity int64  `json:"selected_quantity" validate:"required,gt=0"`
	Notes            string `json:"notes,omitempty"`
}

// SelectInput applies line selections to an offer.
type SelectInput struct {
	OfferID    int64       `json:"-"`
	SelectorID int64       `json:"selector_id" validate:"required,gt=0"`
	Selections []Selection `json:"selections" validate:"required,min=1,dive"`
}

// AnalysisInput stores a scoring for an offer.
type AnalysisInput struct {
	OfferID         int64               `json:"-"`
	PriceScore      int                 `json:"price_score" validate:"min=0,max=100"`
	QualityScore    int                 `json:"quality_score" validate:"min=0,max=100"`
	DeliveryScore   int                 `json:"delivery_score" validate:"min=0,max=100"`
	ReputationScore int                 `json:"reputation_score" validate:"min=0,max=100"`
	PaymentScore    int                 `json:"payment_score" validate:"min=0,max=100"`
	Recommendation  RecommendationLevel `json:"recommendation,omitempty"`
	Method          string              `json:"method,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedBy       int64               `json:"created_by" validate:"required,gt=0"`
}

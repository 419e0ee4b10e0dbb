package offer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

// RepositoryPort describes storage operations used by Service. Request
// lookups live here too: the registry reads the parent request's status
// and item quantities to enforce its guards.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOffer(ctx context.Context, id int64) (VendorOffer, error)
	GetOfferByVendor(ctx context.Context, requestID, vendorID int64) (VendorOffer, bool, error)
	ListOffers(ctx context.Context, requestID int64) ([]VendorOffer, error)
	GetLineItems(ctx context.Context, offerID int64) ([]LineItem, error)
	GetAttachments(ctx context.Context, offerID int64) ([]Attachment, error)
	GetAnalysis(ctx context.Context, offerID int64) (Analysis, bool, error)
	GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error)
	GetRequestItemQuantities(ctx context.Context, requestID int64) (map[int64]int64, error)
	SelectedByRequestItem(ctx context.Context, requestID, excludeOfferID int64) (map[int64]int64, error)
}

// TxRepository exposes transactional offer mutations.
type TxRepository interface {
	InsertOffer(ctx context.Context, offer VendorOffer) (int64, error)
	UpdateOffer(ctx context.Context, offer VendorOffer) error
	DeleteLineItems(ctx context.Context, offerID int64) error
	InsertLineItem(ctx context.Context, item LineItem) (int64, error)
	DeleteAttachments(ctx context.Context, offerID int64) error
	InsertAttachment(ctx context.Context, att Attachment) (int64, error)
	ApplySelection(ctx context.Context, lineItemID, qty, selectorID int64, at time.Time, notes string) error
	SetStatus(ctx context.Context, offerID int64, status Status) error
	UpsertAnalysis(ctx context.Context, analysis Analysis) (int64, error)
}

// Service is the vendor offer registry.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the offer Service.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func buildLineItems(offerID int64, inputs []LineItemInput, requested map[int64]int64) ([]LineItem, decimal.Decimal, error) {
	items := make([]LineItem, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		if in.VendorQuantity <= 0 {
			return nil, decimal.Zero, shared.NewValidation(fmt.Sprintf("line %d: vendor quantity must be positive", i))
		}
		if in.VendorUnitPrice.IsNegative() {
			return nil, decimal.Zero, shared.NewValidation(fmt.Sprintf("line %d: vendor unit price must not be negative", i))
		}
		if in.RequestItemID != 0 {
			if _, ok := requested[in.RequestItemID]; !ok {
				return nil, decimal.Zero, shared.NewValidation(fmt.Sprintf("line %d: request item %d does not belong to the request", i, in.RequestItemID))
			}
		}
		lineTotal := in.VendorUnitPrice.Mul(decimal.NewFromInt(in.VendorQuantity))
		items = append(items, LineItem{
			OfferID:          offerID,
			RequestItemID:    in.RequestItemID,
			VendorUnitPrice:  in.VendorUnitPrice,
			VendorQuantity:   in.VendorQuantity,
			VendorTotalPrice: lineTotal,
			Specifications:   in.Specifications,
			Brand:            in.Brand,
			Category:         in.Category,
		})
		total = total.Add(lineTotal)
	}
	return items, total, nil
}

// Submit registers a vendor's offer while the request accepts uploads.
// A vendor re-submitting while the earlier offer is still SUBMITTED
// replaces its contents; once review has started the slot is locked.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (VendorOffer, []LineItem, error) {
	status, err := s.repo.GetRequestStatus(ctx, in.RequestID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	if status != request.StatusVendorUploading {
		return VendorOffer{}, nil, shared.NewTransition("vendor offer submission", string(request.StatusVendorUploading), string(status))
	}
	requested, err := s.repo.GetRequestItemQuantities(ctx, in.RequestID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	items, total, err := buildLineItems(0, in.LineItems, requested)
	if err != nil {
		return VendorOffer{}, nil, err
	}

	now := s.now()
	existing, found, err := s.repo.GetOfferByVendor(ctx, in.RequestID, in.VendorID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	offer := VendorOffer{
		RequestID:        in.RequestID,
		VendorID:         in.VendorID,
		Status:           StatusSubmitted,
		TotalQuotedPrice: total,
		DeliveryTimeDays: in.DeliveryTimeDays,
		PaymentTerms:     in.PaymentTerms,
		QualityRating:    in.QualityRating,
		Notes:            in.Notes,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
	if found {
		if existing.Status != StatusSubmitted {
			return VendorOffer{}, nil, shared.NewDuplicate(
				fmt.Sprintf("vendor %d already has an offer in status %s for request %d", in.VendorID, existing.Status, in.RequestID), nil)
		}
		offer.ID = existing.ID
		offer.ReferenceID = existing.ReferenceID
	} else {
		offer.ReferenceID = shared.ReferenceID()
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if found {
			if err := tx.UpdateOffer(ctx, offer); err != nil {
				return err
			}
			if err := tx.DeleteLineItems(ctx, offer.ID); err != nil {
				return err
			}
			if err := tx.DeleteAttachments(ctx, offer.ID); err != nil {
				return err
			}
		} else {
			id, err := tx.InsertOffer(ctx, offer)
			if err != nil {
				return err
			}
			offer.ID = id
		}
		for i := range items {
			items[i].OfferID = offer.ID
			id, err := tx.InsertLineItem(ctx, items[i])
			if err != nil {
				return err
			}
			items[i].ID = id
		}
		for _, att := range in.Attachments {
			_, err := tx.InsertAttachment(ctx, Attachment{
				OfferID:    offer.ID,
				FileName:   att.FileName,
				FilePath:   att.FilePath,
				FileSize:   att.FileSize,
				Checksum:   att.Checksum,
				UploadedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return VendorOffer{}, nil, err
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.VendorID,
		Action:   "vendor_offer.submit",
		Entity:   "vendor_offer",
		EntityID: offer.ReferenceID,
		Meta:     map[string]any{"request_id": in.RequestID, "total_quoted": total.String(), "resubmission": found},
	})
	return offer, items, nil
}

// SelectLineItems marks quantities chosen from one offer. Each selection
// must fit the vendor's quoted quantity, and across all offers the summed
// selection per request item never exceeds the requested quantity. The
// derived offer status is recomputed inside the same transaction.
func (s *Service) SelectLineItems(ctx context.Context, in SelectInput) (VendorOffer, []LineItem, error) {
	offer, err := s.repo.GetOffer(ctx, in.OfferID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	reqStatus, err := s.repo.GetRequestStatus(ctx, offer.RequestID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	if reqStatus != request.StatusUnderAnalysis {
		return VendorOffer{}, nil, shared.NewTransition("line item selection", string(request.StatusUnderAnalysis), string(reqStatus))
	}
	items, err := s.repo.GetLineItems(ctx, in.OfferID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	byID := make(map[int64]*LineItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	selections := make(map[int64]Selection, len(in.Selections))
	for _, sel := range in.Selections {
		item, ok := byID[sel.LineItemID]
		if !ok {
			return VendorOffer{}, nil, shared.NewNotFound(fmt.Sprintf("line item %d not found in offer %d", sel.LineItemID, in.OfferID))
		}
		if sel.SelectedQuantity <= 0 || sel.SelectedQuantity > item.VendorQuantity {
			return VendorOffer{}, nil, shared.NewValidation(fmt.Sprintf(
				"line item %d: selected quantity %d must be within (0, %d]", sel.LineItemID, sel.SelectedQuantity, item.VendorQuantity))
		}
		selections[sel.LineItemID] = sel
	}

	// Split-fulfillment conservation: per request item, selections across
	// every offer must stay within the requested quantity.
	requested, err := s.repo.GetRequestItemQuantities(ctx, offer.RequestID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	otherSelected, err := s.repo.SelectedByRequestItem(ctx, offer.RequestID, offer.ID)
	if err != nil {
		return VendorOffer{}, nil, err
	}
	thisOffer := map[int64]int64{}
	for i := range items {
		item := &items[i]
		if item.RequestItemID == 0 {
			continue
		}
		if sel, ok := selections[item.ID]; ok {
			thisOffer[item.RequestItemID] += sel.SelectedQuantity
		} else if item.IsSelected {
			thisOffer[item.RequestItemID] += item.SelectedQuantity
		}
	}
	for requestItemID, qty := range thisOffer {
		limit, ok := requested[requestItemID]
		if !ok {
			continue
		}
		if otherSelected[requestItemID]+qty > limit {
			return VendorOffer{}, nil, shared.NewValidation(fmt.Sprintf(
				"request item %d: total selected quantity %d exceeds requested %d",
				requestItemID, otherSelected[requestItemID]+qty, limit))
		}
	}

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, sel := range in.Selections {
			if err := tx.ApplySelection(ctx, sel.LineItemID, sel.SelectedQuantity, in.SelectorID, now, sel.Notes); err != nil {
				return err
			}
			item := byID[sel.LineItemID]
			item.IsSelected = true
			item.SelectedQuantity = sel.SelectedQuantity
			item.SelectedBy = in.SelectorID
			item.SelectedAt = &now
			item.SelectionNotes = sel.Notes
		}
		derived := DeriveStatus(offer.Status, items, false)
		if derived != offer.Status {
			if err := tx.SetStatus(ctx, offer.ID, derived); err != nil {
				return err
			}
			offer.Status = derived
		}
		return nil
	})
	if err != nil {
		return VendorOffer{}, nil, err
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.SelectorID,
		Action:   "vendor_offer.select_line_items",
		Entity:   "vendor_offer",
		EntityID: offer.ReferenceID,
		Meta:     map[string]any{"selections": len(in.Selections), "status": string(offer.Status)},
	})
	return offer, items, nil
}

// BeginReview moves every SUBMITTED offer of the request to
// UNDER_REVIEW. Called when analysis starts.
func (s *Service) BeginReview(ctx context.Context, requestID int64) error {
	offers, err := s.repo.ListOffers(ctx, requestID)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, o := range offers {
			if o.Status != StatusSubmitted {
				continue
			}
			if err := tx.SetStatus(ctx, o.ID, StatusUnderReview); err != nil {
				return err
			}
		}
		return nil
	})
}

// FinalizeStatuses settles derived statuses once the request has closed:
// offers with no selected line fall to REJECTED.
func (s *Service) FinalizeStatuses(ctx context.Context, requestID int64) error {
	offers, err := s.repo.ListOffers(ctx, requestID)
	if err != nil {
		return err
	}
	type change struct {
		id     int64
		status Status
	}
	var changes []change
	for _, o := range offers {
		items, err := s.repo.GetLineItems(ctx, o.ID)
		if err != nil {
			return err
		}
		derived := DeriveStatus(o.Status, items, true)
		if derived != o.Status {
			changes = append(changes, change{id: o.ID, status: derived})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, c := range changes {
			if err := tx.SetStatus(ctx, c.id, c.status); err != nil {
				return err
			}
		}
		return nil
	})
}

// StoreAnalysis records component scores for an offer. The total is the
// mean of the five components; the recommendation defaults from the
// total when the caller does not supply one.
func (s *Service) StoreAnalysis(ctx context.Context, in AnalysisInput) (Analysis, error) {
	offer, err := s.repo.GetOffer(ctx, in.OfferID)
	if err != nil {
		return Analysis{}, err
	}
	for _, score := range []int{in.PriceScore, in.QualityScore, in.DeliveryScore, in.ReputationScore, in.PaymentScore} {
		if score < 0 || score > 100 {
			return Analysis{}, shared.NewValidation("analysis scores must be between 0 and 100")
		}
	}
	sum := in.PriceScore + in.QualityScore + in.DeliveryScore + in.ReputationScore + in.PaymentScore
	total := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(5)).Round(2)
	recommendation := in.Recommendation
	if recommendation == "" {
		recommendation = recommendFromScore(total)
	} else if !recommendation.IsValid() {
		return Analysis{}, shared.NewValidation(fmt.Sprintf("unknown recommendation level %q", recommendation))
	}
	analysis := Analysis{
		OfferID:         in.OfferID,
		PriceScore:      in.PriceScore,
		QualityScore:    in.QualityScore,
		DeliveryScore:   in.DeliveryScore,
		ReputationScore: in.ReputationScore,
		PaymentScore:    in.PaymentScore,
		TotalScore:      total,
		Recommendation:  recommendation,
		Method:          in.Method,
		Notes:           in.Notes,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       s.now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.UpsertAnalysis(ctx, analysis)
		if err != nil {
			return err
		}
		analysis.ID = id
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.CreatedBy,
		Action:   "vendor_offer.store_analysis",
		Entity:   "vendor_offer",
		EntityID: offer.ReferenceID,
		Meta:     map[string]any{"total_score": total.String(), "recommendation": string(recommendation)},
	})
	return analysis, nil
}

func recommendFromScore(total decimal.Decimal) RecommendationLevel {
	switch {
	case total.GreaterThanOrEqual(decimal.NewFromInt(85)):
		return StronglyRecommend
	case total.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return Recommend
	case total.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return Consider
	default:
		return NotRecommend
	}
}

// Get loads one offer with line items, attachments and analysis.
func (s *Service) Get(ctx context.Context, id int64) (VendorOffer, []LineItem, []Attachment, *Analysis, error) {
	offer, err := s.repo.GetOffer(ctx, id)
	if err != nil {
		return VendorOffer{}, nil, nil, nil, err
	}
	items, err := s.repo.GetLineItems(ctx, id)
	if err != nil {
		return VendorOffer{}, nil, nil, nil, err
	}
	attachments, err := s.repo.GetAttachments(ctx, id)
	if err != nil {
		return VendorOffer{}, nil, nil, nil, err
	}
	analysis, found, err := s.repo.GetAnalysis(ctx, id)
	if err != nil {
		return VendorOffer{}, nil, nil, nil, err
	}
	if !found {
		return offer, items, attachments, nil, nil
	}
	return offer, items, attachments, &analysis, nil
}

// ListByRequest returns every offer submitted against the request.
func (s *Service) ListByRequest(ctx context.Context, requestID int64) ([]VendorOffer, error) {
	return s.repo.ListOffers(ctx, requestID)
}

// SelectedLineItems returns every selected line across the request's
// offers, the raw material for order creation.
func (s *Service) SelectedLineItems(ctx context.Context, requestID int64) ([]SelectedLine, error) {
	offers, err := s.repo.ListOffers(ctx, requestID)
	if err != nil {
		return nil, err
	}
	var out []SelectedLine
	for _, o := range offers {
		items, err := s.repo.GetLineItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if !item.IsSelected || item.SelectedQuantity <= 0 {
				continue
			}
			out = append(out, SelectedLine{
				OfferID:        o.ID,
				LineItemID:     item.ID,
				VendorID:       o.VendorID,
				RequestItemID:  item.RequestItemID,
				Quantity:       item.SelectedQuantity,
				UnitPrice:      item.VendorUnitPrice,
				Specifications: item.Specifications,
				Brand:          item.Brand,
			})
		}
	}
	return out, nil
}

// SelectedLine is one chosen quantity from one vendor's offer.
type SelectedLine struct {
	OfferID        int64
	LineItemID     int64
	VendorID       int64
	RequestItemID  int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	Specifications string
	Brand          string
}

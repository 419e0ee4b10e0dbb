package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/platform/db"
	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

// Repository is the pgx-backed store for vendor offers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const offerColumns = `id, reference_id, request_id, vendor_id, status, total_quoted_price::text,
	delivery_time_days, payment_terms, quality_rating, notes, submitted_at, updated_at`

func scanOffer(row pgx.Row) (VendorOffer, error) {
	var (
		o      VendorOffer
		status string
		total  string
		terms  *string
		notes  *string
	)
	err := row.Scan(&o.ID, &o.ReferenceID, &o.RequestID, &o.VendorID, &status, &total,
		&o.DeliveryTimeDays, &terms, &o.QualityRating, &notes, &o.SubmittedAt, &o.UpdatedAt)
	if err != nil {
		return VendorOffer{}, err
	}
	o.Status = Status(status)
	o.TotalQuotedPrice, err = decimal.NewFromString(total)
	if err != nil {
		return VendorOffer{}, fmt.Errorf("offer: parse total_quoted_price: %w", err)
	}
	if terms != nil {
		o.PaymentTerms = *terms
	}
	if notes != nil {
		o.Notes = *notes
	}
	return o, nil
}

// GetOffer loads one offer by id.
func (r *Repository) GetOffer(ctx context.Context, id int64) (VendorOffer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM vendor_offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorOffer{}, shared.NewNotFound(fmt.Sprintf("vendor offer %d not found", id))
		}
		return VendorOffer{}, shared.NewPersistence("get vendor offer", err)
	}
	return o, nil
}

// GetOfferByVendor loads the vendor's offer for a request if present.
func (r *Repository) GetOfferByVendor(ctx context.Context, requestID, vendorID int64) (VendorOffer, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM vendor_offers WHERE request_id = $1 AND vendor_id = $2`,
		requestID, vendorID)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorOffer{}, false, nil
		}
		return VendorOffer{}, false, shared.NewPersistence("get vendor offer by vendor", err)
	}
	return o, true, nil
}

// ListOffers returns all offers against a request, oldest first.
func (r *Repository) ListOffers(ctx context.Context, requestID int64) ([]VendorOffer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+offerColumns+` FROM vendor_offers WHERE request_id = $1 ORDER BY submitted_at ASC`, requestID)
	if err != nil {
		return nil, shared.NewPersistence("list vendor offers", err)
	}
	defer rows.Close()
	var out []VendorOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, shared.NewPersistence("scan vendor offer", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("list vendor offers", err)
	}
	return out, nil
}

// GetLineItems loads the offer's lines in insertion order.
func (r *Repository) GetLineItems(ctx context.Context, offerID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, offer_id, request_item_id, vendor_unit_price::text, vendor_quantity,
	vendor_total_price::text, specifications, brand, category,
	is_selected, selected_quantity, selected_by, selected_at, selection_notes
FROM offer_line_items WHERE offer_id = $1 ORDER BY id ASC`, offerID)
	if err != nil {
		return nil, shared.NewPersistence("get offer line items", err)
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var (
			item          LineItem
			requestItemID *int64
			unitPrice     string
			totalPrice    string
			spec          *string
			brand         *string
			category      *string
			selectedQty   *int64
			selectedBy    *int64
			selNotes      *string
		)
		err := rows.Scan(&item.ID, &item.OfferID, &requestItemID, &unitPrice, &item.VendorQuantity,
			&totalPrice, &spec, &brand, &category,
			&item.IsSelected, &selectedQty, &selectedBy, &item.SelectedAt, &selNotes)
		if err != nil {
			return nil, shared.NewPersistence("scan offer line item", err)
		}
		if requestItemID != nil {
			item.RequestItemID = *requestItemID
		}
		item.VendorUnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return nil, shared.NewPersistence("parse vendor_unit_price", err)
		}
		item.VendorTotalPrice, err = decimal.NewFromString(totalPrice)
		if err != nil {
			return nil, shared.NewPersistence("parse vendor_total_price", err)
		}
		if spec != nil {
			item.Specifications = *spec
		}
		if brand != nil {
			item.Brand = *brand
		}
		if category != nil {
			item.Category = *category
		}
		if selectedQty != nil {
			item.SelectedQuantity = *selectedQty
		}
		if selectedBy != nil {
			item.SelectedBy = *selectedBy
		}
		if selNotes != nil {
			item.SelectionNotes = *selNotes
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("get offer line items", err)
	}
	return items, nil
}

// GetAttachments loads offer file metadata.
func (r *Repository) GetAttachments(ctx context.Context, offerID int64) ([]Attachment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, offer_id, file_name, file_path, file_size, checksum, uploaded_at
FROM offer_attachments WHERE offer_id = $1 ORDER BY id ASC`, offerID)
	if err != nil {
		return nil, shared.NewPersistence("get offer attachments", err)
	}
	defer rows.Close()
	var out []Attachment
	for rows.Next() {
		var (
			att      Attachment
			checksum *string
		)
		if err := rows.Scan(&att.ID, &att.OfferID, &att.FileName, &att.FilePath, &att.FileSize, &checksum, &att.UploadedAt); err != nil {
			return nil, shared.NewPersistence("scan offer attachment", err)
		}
		if checksum != nil {
			att.Checksum = *checksum
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("get offer attachments", err)
	}
	return out, nil
}

// GetAnalysis loads the offer's scoring record if one exists.
func (r *Repository) GetAnalysis(ctx context.Context, offerID int64) (Analysis, bool, error) {
	var (
		a              Analysis
		total          string
		recommendation string
		method         *string
		notes          *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, offer_id, price_score, quality_score, delivery_score,
	reputation_score, payment_score, total_score::text, recommendation, method, notes, created_by, created_at
FROM vendor_analyses WHERE offer_id = $1`, offerID).Scan(
		&a.ID, &a.OfferID, &a.PriceScore, &a.QualityScore, &a.DeliveryScore,
		&a.ReputationScore, &a.PaymentScore, &total, &recommendation, &method, &notes, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Analysis{}, false, nil
		}
		return Analysis{}, false, shared.NewPersistence("get vendor analysis", err)
	}
	a.TotalScore, err = decimal.NewFromString(total)
	if err != nil {
		return Analysis{}, false, shared.NewPersistence("parse total_score", err)
	}
	a.Recommendation = RecommendationLevel(recommendation)
	if method != nil {
		a.Method = *method
	}
	if notes != nil {
		a.Notes = *notes
	}
	return a, true, nil
}

// GetRequestStatus reads the parent request's current status.
func (r *Repository) GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM purchase_requests WHERE id = $1`, requestID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.NewNotFound(fmt.Sprintf("purchase request %d not found", requestID))
		}
		return "", shared.NewPersistence("get request status", err)
	}
	return request.Status(status), nil
}

// GetRequestItemQuantities maps request item id to requested quantity.
func (r *Repository) GetRequestItemQuantities(ctx context.Context, requestID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, quantity FROM purchase_request_items WHERE request_id = $1`, requestID)
	if err != nil {
		return nil, shared.NewPersistence("get request item quantities", err)
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var id, qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, shared.NewPersistence("scan request item quantity", err)
		}
		out[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("get request item quantities", err)
	}
	return out, nil
}

// SelectedByRequestItem sums selected quantities per request item across
// the request's offers, excluding one offer.
func (r *Repository) SelectedByRequestItem(ctx context.Context, requestID, excludeOfferID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT li.request_item_id, COALESCE(SUM(li.selected_quantity), 0)
FROM offer_line_items li
JOIN vendor_offers o ON o.id = li.offer_id
WHERE o.request_id = $1 AND li.offer_id <> $2 AND li.is_selected AND li.request_item_id IS NOT NULL
GROUP BY li.request_item_id`, requestID, excludeOfferID)
	if err != nil {
		return nil, shared.NewPersistence("sum selected quantities", err)
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var id, qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, shared.NewPersistence("scan selected quantity", err)
		}
		out[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("sum selected quantities", err)
	}
	return out, nil
}

type txRepo struct {
	tx pgx.Tx
}

func nullableInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func (t *txRepo) InsertOffer(ctx context.Context, offer VendorOffer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_offers
	(reference_id, request_id, vendor_id, status, total_quoted_price, delivery_time_days,
	 payment_terms, quality_rating, notes, submitted_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $10)
RETURNING id`,
		offer.ReferenceID, offer.RequestID, offer.VendorID, string(offer.Status),
		offer.TotalQuotedPrice.String(), offer.DeliveryTimeDays,
		offer.PaymentTerms, offer.QualityRating, offer.Notes, offer.SubmittedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.NewDuplicate("offer already exists for this vendor and request", err)
		}
		return 0, shared.NewPersistence("insert vendor offer", err)
	}
	return id, nil
}

func (t *txRepo) UpdateOffer(ctx context.Context, offer VendorOffer) error {
	_, err := t.tx.Exec(ctx, `UPDATE vendor_offers SET
	status = $2, total_quoted_price = $3::numeric, delivery_time_days = $4,
	payment_terms = $5, quality_rating = $6, notes = $7, submitted_at = $8, updated_at = $8
WHERE id = $1`,
		offer.ID, string(offer.Status), offer.TotalQuotedPrice.String(), offer.DeliveryTimeDays,
		offer.PaymentTerms, offer.QualityRating, offer.Notes, offer.SubmittedAt)
	if err != nil {
		return shared.NewPersistence("update vendor offer", err)
	}
	return nil
}

func (t *txRepo) DeleteLineItems(ctx context.Context, offerID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM offer_line_items WHERE offer_id = $1`, offerID); err != nil {
		return shared.NewPersistence("delete offer line items", err)
	}
	return nil
}

func (t *txRepo) InsertLineItem(ctx context.Context, item LineItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO offer_line_items
	(offer_id, request_item_id, vendor_unit_price, vendor_quantity, vendor_total_price,
	 specifications, brand, category, is_selected, selected_quantity)
VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6, $7, $8, FALSE, NULL)
RETURNING id`,
		item.OfferID, nullableInt64(item.RequestItemID), item.VendorUnitPrice.String(),
		item.VendorQuantity, item.VendorTotalPrice.String(),
		item.Specifications, item.Brand, item.Category).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistence("insert offer line item", err)
	}
	return id, nil
}

func (t *txRepo) DeleteAttachments(ctx context.Context, offerID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM offer_attachments WHERE offer_id = $1`, offerID); err != nil {
		return shared.NewPersistence("delete offer attachments", err)
	}
	return nil
}

func (t *txRepo) InsertAttachment(ctx context.Context, att Attachment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO offer_attachments
	(offer_id, file_name, file_path, file_size, checksum, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		att.OfferID, att.FileName, att.FilePath, att.FileSize, att.Checksum, att.UploadedAt).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistence("insert offer attachment", err)
	}
	return id, nil
}

func (t *txRepo) ApplySelection(ctx context.Context, lineItemID, qty, selectorID int64, at time.Time, notes string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE offer_line_items SET
	is_selected = TRUE, selected_quantity = $2, selected_by = $3, selected_at = $4, selection_notes = $5
WHERE id = $1`,
		lineItemID, qty, selectorID, at, notes)
	if err != nil {
		return shared.NewPersistence("apply line selection", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound(fmt.Sprintf("offer line item %d not found", lineItemID))
	}
	return nil
}

func (t *txRepo) SetStatus(ctx context.Context, offerID int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE vendor_offers SET status = $2, updated_at = NOW() WHERE id = $1`,
		offerID, string(status))
	if err != nil {
		return shared.NewPersistence("set offer status", err)
	}
	return nil
}

func (t *txRepo) UpsertAnalysis(ctx context.Context, a Analysis) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_analyses
	(offer_id, price_score, quality_score, delivery_score, reputation_score, payment_score,
	 total_score, recommendation, method, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
ON CONFLICT (offer_id) DO UPDATE SET
	price_score = EXCLUDED.price_score, quality_score = EXCLUDED.quality_score,
	delivery_score = EXCLUDED.delivery_score, reputation_score = EXCLUDED.reputation_score,
	payment_score = EXCLUDED.payment_score, total_score = EXCLUDED.total_score,
	recommendation = EXCLUDED.recommendation, method = EXCLUDED.method,
	notes = EXCLUDED.notes, created_by = EXCLUDED.created_by, created_at = EXCLUDED.created_at
RETURNING id`,
		a.OfferID, a.PriceScore, a.QualityScore, a.DeliveryScore, a.ReputationScore, a.PaymentScore,
		a.TotalScore.String(), string(a.Recommendation), a.Method, a.Notes, a.CreatedBy, a.CreatedAt).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistence("upsert vendor analysis", err)
	}
	return id, nil
}

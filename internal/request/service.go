package request

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/budget"
	"github.com/odyssey-erp/procurehub/internal/notify"
	"github.com/odyssey-erp/procurehub/internal/shared"
	"github.com/odyssey-erp/procurehub/internal/timeline"
)

const approvalModule = "PURCHASE_REQUEST"

// RepositoryPort describes storage operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id int64) (PurchaseRequest, error)
	ListRequests(ctx context.Context, filters ListFilters) ([]PurchaseRequest, error)
	GetItems(ctx context.Context, requestID int64) ([]Item, error)
	CountOffers(ctx context.Context, requestID int64) (int, error)
}

// TxRepository exposes transactional request mutations. UpdateStatus is a
// compare-and-set: it succeeds only when the row still carries `from`.
type TxRepository interface {
	InsertRequest(ctx context.Context, pr PurchaseRequest) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, requestID int64) error
	DeleteRequest(ctx context.Context, id int64) error
	UpdateFields(ctx context.Context, id int64, fields map[string]any) error
	SetTotalBudget(ctx context.Context, id int64, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, fields map[string]any) (bool, error)
}

// BudgetPort is the budget ledger boundary.
type BudgetPort interface {
	Validate(ctx context.Context, in budget.ValidateInput) (budget.ValidationResult, error)
	Reserve(ctx context.Context, in budget.ReserveInput) error
	Release(ctx context.Context, in budget.ReserveInput) error
	Commit(ctx context.Context, in budget.ReserveInput) error
}

// Service drives the purchase request workflow.
type Service struct {
	repo      RepositoryPort
	budget    BudgetPort
	deadlines *timeline.Calculator
	notifier  notify.Notifier
	approvals *shared.ApprovalRecorder
	audit     *shared.AuditLogger
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the request Service. approvals, audit and
// notifier may be nil; the workflow then runs without those side records.
func NewService(
	repo RepositoryPort,
	budgetLedger BudgetPort,
	deadlines *timeline.Calculator,
	notifier notify.Notifier,
	approvals *shared.ApprovalRecorder,
	audit *shared.AuditLogger,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		budget:    budgetLedger,
		deadlines: deadlines,
		notifier:  notifier,
		approvals: approvals,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) approvalRef(requestID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PR:%d", requestID)))
}

func buildItems(requestID int64, inputs []ItemInput) ([]Item, error) {
	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity <= 0 {
			return nil, shared.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
			return nil, shared.NewValidation(fmt.Sprintf("item %d: unit price must not be negative", i))
		}
		item := Item{
			RequestID:     requestID,
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
			Specification: in.Specification,
		}
		item.TotalPrice = item.LineTotal()
		items = append(items, item)
	}
	return items, nil
}

// Create opens a request in DRAFT. When priced items are present the
// total is validated against the department budget and reserved; a
// reservation failure undoes the insert so no half-created request
// lingers.
func (s *Service) Create(ctx context.Context, in CreateInput) (PurchaseRequest, []Item, error) {
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.IsValid() {
		return PurchaseRequest{}, nil, shared.NewValidation(fmt.Sprintf("unknown priority %q", in.Priority))
	}
	now := s.now()
	if in.BudgetYear == 0 {
		in.BudgetYear = now.Year()
	}
	if in.BudgetCategory == "" {
		in.BudgetCategory = "GENERAL"
	}
	items, err := buildItems(0, in.Items)
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	total := ItemsTotal(items)

	if total.IsPositive() {
		result, err := s.budget.Validate(ctx, budget.ValidateInput{
			DepartmentID: in.DepartmentID,
			Amount:       total,
			Year:         in.BudgetYear,
			Category:     in.BudgetCategory,
		})
		if err != nil {
			return PurchaseRequest{}, nil, err
		}
		if !result.Valid {
			return PurchaseRequest{}, nil, shared.NewBudget(result.Reason)
		}
	}

	deadlines := s.deadlines.Calculate(total, now)
	pr := PurchaseRequest{
		RequesterID:          in.RequesterID,
		DepartmentID:         in.DepartmentID,
		Title:                in.Title,
		Description:          in.Description,
		TotalBudget:          total,
		RequiredDate:         in.RequiredDate,
		Priority:             in.Priority,
		Status:               StatusDraft,
		BudgetYear:           in.BudgetYear,
		BudgetCategory:       in.BudgetCategory,
		VendorUploadDeadline: deadlines.VendorUpload,
		AnalysisDeadline:     deadlines.Analysis,
		ApprovalDeadline:     deadlines.Approval,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	for attempt := 0; ; attempt++ {
		pr.ReferenceID = shared.ReferenceID()
		if attempt < shared.MaxDocNumberRetries {
			pr.RequestNumber = shared.DocNumber("PR", now)
		} else {
			pr.RequestNumber = shared.FallbackDocNumber("PR", now)
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.InsertRequest(ctx, pr)
			if err != nil {
				return err
			}
			pr.ID = id
			for i := range items {
				items[i].RequestID = id
				itemID, err := tx.InsertItem(ctx, items[i])
				if err != nil {
					return err
				}
				items[i].ID = itemID
			}
			return nil
		})
		if err == nil {
			break
		}
		if shared.IsKind(err, shared.KindDuplicate) && attempt < shared.MaxDocNumberRetries {
			s.logger.Warn("request number collision, retrying",
				slog.String("request_number", pr.RequestNumber), slog.Int("attempt", attempt+1))
			continue
		}
		return PurchaseRequest{}, nil, err
	}

	if total.IsPositive() {
		err := s.budget.Reserve(ctx, budget.ReserveInput{
			DepartmentID: in.DepartmentID,
			Amount:       total,
			RequestID:    pr.ID,
			Year:         in.BudgetYear,
			Category:     in.BudgetCategory,
		})
		if err != nil {
			delErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				if err := tx.DeleteItems(ctx, pr.ID); err != nil {
					return err
				}
				return tx.DeleteRequest(ctx, pr.ID)
			})
			if delErr != nil {
				s.logger.Error("undo request after failed reservation",
					slog.Int64("request_id", pr.ID), slog.Any("error", delErr))
			}
			return PurchaseRequest{}, nil, fmt.Errorf("request: reserve budget: %w", err)
		}
	}

	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.RequesterID,
		Action:   "purchase_request.create",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
		Meta:     map[string]any{"total_budget": total.String(), "items": len(items)},
	})
	return pr, items, nil
}

// Get loads one request with its items.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseRequest, []Item, error) {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	return pr, items, nil
}

// List returns requests matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]PurchaseRequest, error) {
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, shared.NewValidation(fmt.Sprintf("unknown status %q", filters.Status))
	}
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	return s.repo.ListRequests(ctx, filters)
}

// Update edits a request still in an editable state. A non-nil item set
// replaces every existing line and recomputes the stored total.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (PurchaseRequest, []Item, error) {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	if !pr.Status.CanEdit() {
		return PurchaseRequest{}, nil, shared.NewTransition("purchase request", "DRAFT or SUBMITTED", string(pr.Status))
	}
	if in.Priority != nil && !in.Priority.IsValid() {
		return PurchaseRequest{}, nil, shared.NewValidation(fmt.Sprintf("unknown priority %q", *in.Priority))
	}
	var items []Item
	if in.Items != nil {
		items, err = buildItems(id, in.Items)
		if err != nil {
			return PurchaseRequest{}, nil, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fields := map[string]any{}
		if in.Title != nil {
			fields["title"] = *in.Title
			pr.Title = *in.Title
		}
		if in.Description != nil {
			fields["description"] = *in.Description
			pr.Description = *in.Description
		}
		if in.RequiredDate != nil {
			fields["required_date"] = *in.RequiredDate
			pr.RequiredDate = *in.RequiredDate
		}
		if in.Priority != nil {
			fields["priority"] = string(*in.Priority)
			pr.Priority = *in.Priority
		}
		if len(fields) > 0 {
			if err := tx.UpdateFields(ctx, id, fields); err != nil {
				return err
			}
		}
		if in.Items == nil {
			return nil
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		for i := range items {
			itemID, err := tx.InsertItem(ctx, items[i])
			if err != nil {
				return err
			}
			items[i].ID = itemID
		}
		total := ItemsTotal(items)
		pr.TotalBudget = total
		return tx.SetTotalBudget(ctx, id, total)
	})
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	if in.Items == nil {
		items, err = s.repo.GetItems(ctx, id)
		if err != nil {
			return PurchaseRequest{}, nil, err
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  pr.RequesterID,
		Action:   "purchase_request.update",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
		Meta:     map[string]any{"total_budget": pr.TotalBudget.String()},
	})
	return pr, items, nil
}

// Delete removes a DRAFT request and its items, releasing any budget
// reservation it still holds.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if !pr.Status.CanDelete() {
		return shared.NewTransition("purchase request", string(StatusDraft), string(pr.Status))
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		return tx.DeleteRequest(ctx, id)
	})
	if err != nil {
		return err
	}
	if pr.TotalBudget.IsPositive() {
		if err := s.budget.Release(ctx, budget.ReserveInput{RequestID: id}); err != nil {
			s.logger.Warn("release reservation on delete", slog.Int64("request_id", id), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "purchase_request.delete",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
	})
	return nil
}

// Submit moves DRAFT to SUBMITTED. The request must carry at least one
// item.
func (s *Service) Submit(ctx context.Context, id int64, actorID int64) (PurchaseRequest, error) {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.Status != StatusDraft {
		return PurchaseRequest{}, shared.NewTransition("purchase request", string(StatusDraft), string(pr.Status))
	}
	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if len(items) == 0 {
		return PurchaseRequest{}, shared.NewValidation("cannot submit a request without items")
	}
	if err := s.transition(ctx, &pr, StatusDraft, StatusSubmitted, nil); err != nil {
		return PurchaseRequest{}, err
	}
	if s.approvals != nil {
		if err := s.approvals.EnsureSubmit(ctx, approvalModule, s.approvalRef(id), actorID, ""); err != nil {
			s.logger.Warn("record submit approval", slog.Int64("request_id", id), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "purchase_request.submit",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
	})
	return pr, nil
}

// StartVendorUpload opens the offer window and notifies vendors.
func (s *Service) StartVendorUpload(ctx context.Context, id int64, actorID int64) (PurchaseRequest, error) {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.Status != StatusSubmitted {
		return PurchaseRequest{}, shared.NewTransition("purchase request", string(StatusSubmitted), string(pr.Status))
	}
	if err := s.transition(ctx, &pr, StatusSubmitted, StatusVendorUploading, nil); err != nil {
		return PurchaseRequest{}, err
	}
	if s.notifier != nil {
		evt := notify.Event{
			Type:      notify.EventOfferWindowOpened,
			RequestID: id,
			Amount:    pr.TotalBudget,
			Message:   fmt.Sprintf("request %s is open for offers until %s", pr.RequestNumber, pr.VendorUploadDeadline.Format("2006-01-02")),
		}
		if err := s.notifier.Notify(ctx, evt); err != nil {
			s.logger.Warn("notify offer window", slog.Int64("request_id", id), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "purchase_request.start_vendor_upload",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
	})
	return pr, nil
}

// StartAnalysis closes the offer window. At least one submitted offer is
// required to proceed.
func (s *Service) StartAnalysis(ctx context.Context, id int64, actorID int64) (PurchaseRequest, error) {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.Status != StatusVendorUploading {
		return PurchaseRequest{}, shared.NewTransition("purchase request", string(StatusVendorUploading), string(pr.Status))
	}
	offers, err := s.repo.CountOffers(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if offers == 0 {
		return PurchaseRequest{}, shared.NewValidation("cannot start analysis without offers")
	}
	if err := s.transition(ctx, &pr, StatusVendorUploading, StatusUnderAnalysis, nil); err != nil {
		return PurchaseRequest{}, err
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "purchase_request.start_analysis",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
	})
	return pr, nil
}

// Approve finalises a request under analysis. The budget reservation is
// committed to spent best-effort; a ledger failure is logged, never
// blocks the approval.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (PurchaseRequest, error) {
	pr, err := s.repo.GetRequest(ctx, in.RequestID)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.Status != StatusUnderAnalysis {
		return PurchaseRequest{}, shared.NewTransition("purchase request", string(StatusUnderAnalysis), string(pr.Status))
	}
	now := s.now()
	fields := map[string]any{
		"approved_by":    in.ApproverID,
		"approved_at":    now,
		"approval_notes": in.Notes,
	}
	if err := s.transition(ctx, &pr, StatusUnderAnalysis, StatusApproved, fields); err != nil {
		return PurchaseRequest{}, err
	}
	pr.ApprovedBy = in.ApproverID
	pr.ApprovedAt = &now
	pr.ApprovalNotes = in.Notes
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   s.approvalRef(in.RequestID),
			ActorID: in.ApproverID,
			Action:  shared.ApprovalApprove,
			Note:    in.Notes,
		}); err != nil {
			s.logger.Warn("record approve", slog.Int64("request_id", in.RequestID), slog.Any("error", err))
		}
	}
	if pr.TotalBudget.IsPositive() {
		if err := s.budget.Commit(ctx, budget.ReserveInput{RequestID: in.RequestID}); err != nil {
			s.logger.Error("commit budget on approval", slog.Int64("request_id", in.RequestID), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.ApproverID,
		Action:   "purchase_request.approve",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
		Meta:     map[string]any{"notes": in.Notes},
	})
	return pr, nil
}

// Reject terminates a request from any non-terminal state and releases
// its budget reservation. Rejecting outside the usual review states is
// allowed but logged.
func (s *Service) Reject(ctx context.Context, in RejectInput) (PurchaseRequest, error) {
	pr, err := s.repo.GetRequest(ctx, in.RequestID)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.Status.Terminal() {
		return PurchaseRequest{}, shared.NewTransition("purchase request", "a non-terminal status", string(pr.Status))
	}
	if pr.Status != StatusSubmitted && pr.Status != StatusUnderAnalysis {
		s.logger.Warn("rejecting request from unusual status",
			slog.Int64("request_id", in.RequestID), slog.String("status", string(pr.Status)))
	}
	now := s.now()
	fields := map[string]any{
		"rejection_reason": in.Reason,
		"rejected_by":      in.RejectedBy,
		"rejected_at":      now,
	}
	if err := s.transition(ctx, &pr, pr.Status, StatusRejected, fields); err != nil {
		return PurchaseRequest{}, err
	}
	pr.RejectionReason = in.Reason
	pr.RejectedBy = in.RejectedBy
	pr.RejectedAt = &now
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   s.approvalRef(in.RequestID),
			ActorID: in.RejectedBy,
			Action:  shared.ApprovalReject,
			Note:    in.Reason,
		}); err != nil {
			s.logger.Warn("record reject", slog.Int64("request_id", in.RequestID), slog.Any("error", err))
		}
	}
	if pr.TotalBudget.IsPositive() {
		if err := s.budget.Release(ctx, budget.ReserveInput{RequestID: in.RequestID}); err != nil {
			s.logger.Error("release budget on rejection", slog.Int64("request_id", in.RequestID), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.RejectedBy,
		Action:   "purchase_request.reject",
		Entity:   "purchase_request",
		EntityID: pr.ReferenceID,
		Meta:     map[string]any{"reason": in.Reason},
	})
	return pr, nil
}

// transition performs the compare-and-set status update. A lost race
// surfaces as a conflict so the caller retries against fresh state.
func (s *Service) transition(ctx context.Context, pr *PurchaseRequest, from, to Status, fields map[string]any) error {
	var moved bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.UpdateStatus(ctx, pr.ID, from, to, fields)
		return err
	})
	if err != nil {
		return err
	}
	if !moved {
		return shared.NewConflict(fmt.Sprintf("purchase request %d was modified concurrently", pr.ID))
	}
	pr.Status = to
	pr.UpdatedAt = s.now()
	return nil
}

package procurement

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func (s *Service) checkRequestRefs(ctx context.Context, companyID int64, input RequestInput) error {
	if input.DepartmentID != nil {
		if err := s.refs.Department(ctx, companyID, *input.DepartmentID); err != nil {
			return err
		}
	}
	for _, line := range input.Lines {
		if line.ProductID == nil {
			continue
		}
		if _, err := s.refs.Product(ctx, companyID, *line.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func (input RequestInput) apply(pr *PurchaseRequest, now time.Time) {
	pr.RequestDate = today(now, input.RequestDate)
	pr.DepartmentID = input.DepartmentID
	pr.Priority = input.Priority
	if pr.Priority == "" {
		pr.Priority = PriorityMedium
	}
	pr.RequiredDate = input.RequiredDate
	pr.Notes = input.Notes
	pr.Lines = make([]PRLine, len(input.Lines))
	for i, l := range input.Lines {
		pr.Lines[i] = PRLine{
			ProductID:      l.ProductID,
			Description:    l.Description,
			Quantity:       l.Quantity,
			EstimatedPrice: l.EstimatedPrice,
			Purpose:        l.Purpose,
			Notes:          l.Notes,
			LineOrder:      i + 1,
		}
	}
}

// CreateRequest stores a new Draft purchase request with a generated number.
func (s *Service) CreateRequest(ctx context.Context, actor shared.Actor, input RequestInput) (PurchaseRequest, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseRequest{}, err
	}
	if err := Validate(input); err != nil {
		return PurchaseRequest{}, err
	}
	if err := s.checkRequestRefs(ctx, actor.CompanyID, input); err != nil {
		return PurchaseRequest{}, err
	}
	now := s.now()
	var pr PurchaseRequest
	err := s.run(ctx, "request.create", func(ctx context.Context, tx TxRepository) error {
		pr = PurchaseRequest{
			CompanyID:   actor.CompanyID,
			RequestedBy: actor.UserID,
			Status:      PRStatusDraft,
			Audit:       Audit{CreatedBy: actor.UserID, CreatedAt: now},
		}
		input.apply(&pr, now)
		number, err := NextDocumentNumber(ctx, tx, DocRequest, now)
		if err != nil {
			return err
		}
		pr.Number = number
		return tx.InsertRequest(ctx, &pr)
	})
	s.observe(DocRequest, "create", err)
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, actor, "PR_CREATE", DocRequest, pr.ID, map[string]any{"number": pr.Number})
	s.logger.Info("purchase request created", slog.Int64("id", pr.ID), slog.String("number", pr.Number))
	return pr, nil
}

// UpdateRequest replaces header fields and lines of a Draft or Rejected request.
func (s *Service) UpdateRequest(ctx context.Context, actor shared.Actor, id int64, input RequestInput) (PurchaseRequest, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseRequest{}, err
	}
	if err := Validate(input); err != nil {
		return PurchaseRequest{}, err
	}
	if err := s.checkRequestRefs(ctx, actor.CompanyID, input); err != nil {
		return PurchaseRequest{}, err
	}
	now := s.now()
	var pr PurchaseRequest
	err := s.run(ctx, "request.update", func(ctx context.Context, tx TxRepository) error {
		var err error
		if pr, err = tx.LockRequest(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		if _, err := pr.Status.Next(TransitionEdit); err != nil {
			return err
		}
		input.apply(&pr, now)
		pr.touch(actor.UserID, now)
		if err := tx.UpdateRequest(ctx, pr); err != nil {
			return err
		}
		return tx.ReplaceRequestLines(ctx, &pr)
	})
	s.observe(DocRequest, string(TransitionEdit), err)
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, actor, "PR_UPDATE", DocRequest, pr.ID, map[string]any{"number": pr.Number})
	return pr, nil
}

// DeleteRequest removes a Draft request that no other document references.
func (s *Service) DeleteRequest(ctx context.Context, actor shared.Actor, id int64) error {
	if err := checkActor(actor); err != nil {
		return err
	}
	var number string
	err := s.run(ctx, "request.delete", func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.LockRequest(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if _, err := pr.Status.Next(TransitionDelete); err != nil {
			return err
		}
		referenced, err := tx.RequestReferenced(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if referenced {
			return ErrRequestReferenced
		}
		number = pr.Number
		return tx.DeleteRequest(ctx, actor.CompanyID, id)
	})
	s.observe(DocRequest, string(TransitionDelete), err)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "PR_DELETE", DocRequest, id, map[string]any{"number": number})
	return nil
}

// transitionRequest locks a request, advances it along tr and persists the result.
func (s *Service) transitionRequest(ctx context.Context, actor shared.Actor, id int64, tr Transition, mutate func(*PurchaseRequest, time.Time)) (PurchaseRequest, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseRequest{}, err
	}
	now := s.now()
	var pr PurchaseRequest
	err := s.run(ctx, "request."+string(tr), func(ctx context.Context, tx TxRepository) error {
		var err error
		if pr, err = tx.LockRequest(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		next, err := pr.Status.Next(tr)
		if err != nil {
			return err
		}
		pr.Status = next
		if mutate != nil {
			mutate(&pr, now)
		}
		pr.touch(actor.UserID, now)
		return tx.UpdateRequest(ctx, pr)
	})
	s.observe(DocRequest, string(tr), err)
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.logger.Info("purchase request "+string(tr), slog.Int64("id", pr.ID), slog.String("number", pr.Number),
		slog.String("status", string(pr.Status)))
	return pr, nil
}

// SubmitRequest sends a Draft or Rejected request for approval.
func (s *Service) SubmitRequest(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	pr, err := s.transitionRequest(ctx, actor, id, TransitionSubmit, func(pr *PurchaseRequest, _ time.Time) {
		pr.RejectionReason = nil
		pr.ApprovedBy = nil
		pr.ApprovalDate = nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordApproval(ctx, actor, DocRequest, pr.ID, shared.ApprovalSubmit, "PR "+pr.Number+" submitted")
	return pr, nil
}

// ApproveRequest approves a pending request.
func (s *Service) ApproveRequest(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	pr, err := s.transitionRequest(ctx, actor, id, TransitionApprove, func(pr *PurchaseRequest, now time.Time) {
		pr.ApprovedBy = ptr(actor.UserID)
		pr.ApprovalDate = ptr(now)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordApproval(ctx, actor, DocRequest, pr.ID, shared.ApprovalApprove, "PR "+pr.Number+" approved")
	return pr, nil
}

// RejectRequest rejects a pending request. The reason is mandatory.
func (s *Service) RejectRequest(ctx context.Context, actor shared.Actor, id int64, input RejectInput) (PurchaseRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return PurchaseRequest{}, ErrRejectReasonRequired
	}
	pr, err := s.transitionRequest(ctx, actor, id, TransitionReject, func(pr *PurchaseRequest, now time.Time) {
		pr.RejectionReason = &reason
		pr.ApprovedBy = ptr(actor.UserID)
		pr.ApprovalDate = ptr(now)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordApproval(ctx, actor, DocRequest, pr.ID, shared.ApprovalReject, reason)
	return pr, nil
}

// CancelRequest cancels a request that has not been converted.
func (s *Service) CancelRequest(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	pr, err := s.transitionRequest(ctx, actor, id, TransitionCancel, nil)
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordApproval(ctx, actor, DocRequest, pr.ID, shared.ApprovalCancel, "PR "+pr.Number+" cancelled")
	return pr, nil
}

// GetRequest loads a request with its lines.
func (s *Service) GetRequest(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseRequest{}, err
	}
	return s.repo.GetRequest(ctx, actor.CompanyID, id)
}

// ListRequests returns one page of request headers.
func (s *Service) ListRequests(ctx context.Context, actor shared.Actor, filter ListFilter) (Page[PurchaseRequest], error) {
	if err := checkActor(actor); err != nil {
		return Page[PurchaseRequest]{}, err
	}
	items, total, err := s.repo.ListRequests(ctx, actor.CompanyID, filter)
	if err != nil {
		return Page[PurchaseRequest]{}, err
	}
	return newPage(items, total, filter), nil
}

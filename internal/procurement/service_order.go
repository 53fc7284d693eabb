package procurement

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func (s *Service) checkOrderRefs(ctx context.Context, companyID int64, input OrderInput) error {
	if _, err := s.refs.Supplier(ctx, companyID, input.SupplierID); err != nil {
		return err
	}
	if input.RequestID != nil {
		if _, err := s.repo.GetRequest(ctx, companyID, *input.RequestID); err != nil {
			return err
		}
	}
	for _, line := range input.Lines {
		if _, err := s.refs.Product(ctx, companyID, line.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func (input OrderInput) apply(po *PurchaseOrder, now time.Time) {
	po.RequestID = input.RequestID
	po.SupplierID = input.SupplierID
	po.OrderDate = today(now, input.OrderDate)
	po.RequiredDate = input.RequiredDate
	po.TaxAmount = input.TaxAmount
	po.DiscountAmount = input.DiscountAmount
	po.ShippingAmount = input.ShippingAmount
	po.ShippingAddress = input.ShippingAddress
	po.Notes = input.Notes
	po.Lines = make([]POLine, len(input.Lines))
	for i, l := range input.Lines {
		po.Lines[i] = POLine{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
			Notes:           l.Notes,
			LineOrder:       i + 1,
		}
		po.Lines[i].Recalculate()
	}
	po.Recalculate()
}

// CreateOrder stores a Draft purchase order entered directly.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, input OrderInput) (PurchaseOrder, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseOrder{}, err
	}
	if err := Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.checkOrderRefs(ctx, actor.CompanyID, input); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	var po PurchaseOrder
	err := s.run(ctx, "order.create", func(ctx context.Context, tx TxRepository) error {
		po = PurchaseOrder{
			CompanyID: actor.CompanyID,
			Status:    POStatusDraft,
			Audit:     Audit{CreatedBy: actor.UserID, CreatedAt: now},
		}
		input.apply(&po, now)
		number, err := NextDocumentNumber(ctx, tx, DocOrder, now)
		if err != nil {
			return err
		}
		po.Number = number
		return tx.InsertOrder(ctx, &po)
	})
	s.observe(DocOrder, "create", err)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actor, "PO_CREATE", DocOrder, po.ID, map[string]any{"number": po.Number, "total": po.TotalAmount.String()})
	s.logger.Info("purchase order created", slog.Int64("id", po.ID), slog.String("number", po.Number))
	return po, nil
}

// UpdateOrder replaces header and lines of a Draft order and recomputes totals.
func (s *Service) UpdateOrder(ctx context.Context, actor shared.Actor, id int64, input OrderInput) (PurchaseOrder, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseOrder{}, err
	}
	if err := Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.checkOrderRefs(ctx, actor.CompanyID, input); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	var po PurchaseOrder
	err := s.run(ctx, "order.update", func(ctx context.Context, tx TxRepository) error {
		var err error
		if po, err = tx.LockOrder(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		if _, err := po.Status.Next(TransitionEdit); err != nil {
			return err
		}
		input.apply(&po, now)
		po.touch(actor.UserID, now)
		if err := tx.UpdateOrder(ctx, po); err != nil {
			return err
		}
		return tx.ReplaceOrderLines(ctx, &po)
	})
	s.observe(DocOrder, string(TransitionEdit), err)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actor, "PO_UPDATE", DocOrder, po.ID, map[string]any{"number": po.Number, "total": po.TotalAmount.String()})
	return po, nil
}

// DeleteOrder removes a Draft order without goods receipts.
func (s *Service) DeleteOrder(ctx context.Context, actor shared.Actor, id int64) error {
	if err := checkActor(actor); err != nil {
		return err
	}
	var number string
	err := s.run(ctx, "order.delete", func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if _, err := po.Status.Next(TransitionDelete); err != nil {
			return err
		}
		received, err := tx.OrderHasReceipts(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if received {
			return ErrOrderHasReceipts
		}
		number = po.Number
		return tx.DeleteOrder(ctx, actor.CompanyID, id)
	})
	s.observe(DocOrder, string(TransitionDelete), err)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "PO_DELETE", DocOrder, id, map[string]any{"number": number})
	return nil
}

// transitionOrder locks an order, advances it along tr and persists the header.
// check runs after the status guard and before any mutation.
func (s *Service) transitionOrder(ctx context.Context, actor shared.Actor, id int64, tr Transition, check func(context.Context, TxRepository, *PurchaseOrder, time.Time) error) (PurchaseOrder, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	var po PurchaseOrder
	err := s.run(ctx, "order."+string(tr), func(ctx context.Context, tx TxRepository) error {
		var err error
		if po, err = tx.LockOrder(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		next, err := po.Status.Next(tr)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(ctx, tx, &po, now); err != nil {
				return err
			}
		}
		po.Status = next
		po.touch(actor.UserID, now)
		return tx.UpdateOrder(ctx, po)
	})
	s.observe(DocOrder, string(tr), err)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order "+string(tr), slog.Int64("id", po.ID), slog.String("number", po.Number),
		slog.String("status", string(po.Status)))
	return po, nil
}

// ApproveOrder approves a Draft order.
func (s *Service) ApproveOrder(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	po, err := s.transitionOrder(ctx, actor, id, TransitionApprove, func(_ context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.ApprovedBy = ptr(actor.UserID)
		po.ApprovalDate = ptr(now)
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordApproval(ctx, actor, DocOrder, po.ID, shared.ApprovalApprove, "PO "+po.Number+" approved")
	return po, nil
}

// SendOrder marks an Approved order Sent and logs the supplier notification.
// The notification is handed to the Notifier after commit; a failed hand-off
// leaves the order Sent.
func (s *Service) SendOrder(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	var evt OrderSentEvent
	po, err := s.transitionOrder(ctx, actor, id, TransitionSend, func(ctx context.Context, tx TxRepository, po *PurchaseOrder, now time.Time) error {
		supplier, err := s.refs.Supplier(ctx, po.CompanyID, po.SupplierID)
		if err != nil {
			return err
		}
		if supplier.Email == nil || *supplier.Email == "" {
			return ErrSupplierEmailMissing
		}
		products := make(map[int64]Product, len(po.Lines))
		for _, line := range po.Lines {
			if _, ok := products[line.ProductID]; ok {
				continue
			}
			p, err := s.refs.Product(ctx, po.CompanyID, line.ProductID)
			if err != nil {
				return err
			}
			products[line.ProductID] = p
		}
		log := EmailLog{
			CompanyID:      po.CompanyID,
			ReferenceType:  emailReferenceOrder,
			ReferenceID:    po.ID,
			RecipientEmail: *supplier.Email,
			Subject:        orderEmailSubject(*po),
			Body:           renderOrderEmail(*po, supplier, products),
			Status:         EmailStatusQueued,
			SentBy:         actor.UserID,
			CreatedAt:      now,
		}
		if err := tx.InsertEmailLog(ctx, &log); err != nil {
			return err
		}
		po.SentDate = ptr(now)
		evt = OrderSentEvent{
			CompanyID:  po.CompanyID,
			OrderID:    po.ID,
			Number:     po.Number,
			EmailLogID: log.ID,
			Recipient:  log.RecipientEmail,
			Subject:    log.Subject,
			Body:       log.Body,
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actor, "PO_SEND", DocOrder, po.ID, map[string]any{"number": po.Number, "email_log_id": evt.EmailLogID})
	if s.notifier != nil {
		if err := s.notifier.NotifyOrderSent(ctx, evt); err != nil {
			s.logger.Warn("enqueue purchase order email", slog.Int64("id", po.ID), slog.Int64("email_log_id", evt.EmailLogID), slog.Any("error", err))
		}
	}
	return po, nil
}

// ConfirmOrder records supplier confirmation, optionally revising the required date.
func (s *Service) ConfirmOrder(ctx context.Context, actor shared.Actor, id int64, input ConfirmOrderInput) (PurchaseOrder, error) {
	po, err := s.transitionOrder(ctx, actor, id, TransitionConfirm, func(_ context.Context, _ TxRepository, po *PurchaseOrder, now time.Time) error {
		po.ConfirmedDate = ptr(now)
		if input.ExpectedDeliveryDate != nil {
			po.RequiredDate = input.ExpectedDeliveryDate
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actor, "PO_CONFIRM", DocOrder, po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// GetOrder loads an order with its lines.
func (s *Service) GetOrder(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseOrder{}, err
	}
	return s.repo.GetOrder(ctx, actor.CompanyID, id)
}

// ListOrders returns one page of order headers.
func (s *Service) ListOrders(ctx context.Context, actor shared.Actor, filter ListFilter) (Page[PurchaseOrder], error) {
	if err := checkActor(actor); err != nil {
		return Page[PurchaseOrder]{}, err
	}
	items, total, err := s.repo.ListOrders(ctx, actor.CompanyID, filter)
	if err != nil {
		return Page[PurchaseOrder]{}, err
	}
	return newPage(items, total, filter), nil
}

// ListOrderReceipts returns the goods receipts recorded against an order.
func (s *Service) ListOrderReceipts(ctx context.Context, actor shared.Actor, id int64) ([]GoodsReceipt, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetOrder(ctx, actor.CompanyID, id); err != nil {
		return nil, err
	}
	receipts, err := s.repo.ListOrderReceipts(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = []GoodsReceipt{}
	}
	return receipts, nil
}

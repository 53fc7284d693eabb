package procurement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func orderLockKey(orderID int64) string {
	return shared.DocumentLockKey("po", orderID)
}

// receiptLines snapshots the referenced order lines into receipt lines.
func receiptLines(po PurchaseOrder, input []ReceiptLineInput) ([]GRLine, error) {
	byID := make(map[int64]POLine, len(po.Lines))
	for _, line := range po.Lines {
		byID[line.ID] = line
	}
	lines := make([]GRLine, len(input))
	for i, in := range input {
		ol, ok := byID[in.OrderLineID]
		if !ok {
			return nil, fmt.Errorf("%w: %d on order %s", ErrOrderLineNotFound, in.OrderLineID, po.Number)
		}
		lines[i] = GRLine{
			OrderLineID:     ol.ID,
			ProductID:       ol.ProductID,
			OrderedQuantity: ol.Quantity,
			Received:        in.Received,
			Rejected:        in.Rejected,
			UnitPrice:       ol.UnitPrice,
			Notes:           in.Notes,
			LineOrder:       i + 1,
		}
	}
	return lines, nil
}

// CreateReceipt records goods received against a Confirmed or PartiallyReceived
// order, adds the received quantities to the order lines and re-derives the
// order status.
func (s *Service) CreateReceipt(ctx context.Context, actor shared.Actor, input ReceiptInput) (GoodsReceipt, error) {
	if err := checkActor(actor); err != nil {
		return GoodsReceipt{}, err
	}
	if err := validateReceipt(input); err != nil {
		return GoodsReceipt{}, err
	}
	if input.WarehouseID != nil {
		if err := s.refs.Warehouse(ctx, actor.CompanyID, *input.WarehouseID); err != nil {
			return GoodsReceipt{}, err
		}
	}
	now := s.now()
	var gr GoodsReceipt
	var status POStatus
	err := s.runLocked(ctx, "receipt.create", orderLockKey(input.OrderID), func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, actor.CompanyID, input.OrderID)
		if err != nil {
			return err
		}
		if _, err := po.Status.Next(TransitionReceive); err != nil {
			return err
		}
		lines, err := receiptLines(po, input.Lines)
		if err != nil {
			return err
		}
		updated, err := ApplyReceipt(po.Lines, lines)
		if err != nil {
			return err
		}
		gr = GoodsReceipt{
			CompanyID:    actor.CompanyID,
			OrderID:      po.ID,
			ReceiptDate:  today(now, input.ReceiptDate),
			WarehouseID:  input.WarehouseID,
			DeliveryNote: input.DeliveryNote,
			ReceivedBy:   actor.UserID,
			Status:       GRStatusDraft,
			Notes:        input.Notes,
			Audit:        Audit{CreatedBy: actor.UserID, CreatedAt: now},
			Lines:        lines,
		}
		number, err := NextDocumentNumber(ctx, tx, DocReceipt, now)
		if err != nil {
			return err
		}
		gr.Number = number
		if err := tx.InsertReceipt(ctx, &gr); err != nil {
			return err
		}
		if err := tx.UpdateOrderReceived(ctx, updated); err != nil {
			return err
		}
		po.Lines = updated
		po.Status = DeriveOrderStatus(updated, po.Status)
		po.touch(actor.UserID, now)
		status = po.Status
		return tx.UpdateOrder(ctx, po)
	})
	s.observe(DocReceipt, "create", err)
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actor, "GR_CREATE", DocReceipt, gr.ID, map[string]any{
		"number": gr.Number, "order_id": gr.OrderID, "order_status": string(status),
	})
	s.logger.Info("goods receipt created", slog.Int64("id", gr.ID), slog.String("number", gr.Number),
		slog.Int64("order_id", gr.OrderID), slog.String("order_status", string(status)))
	return gr, nil
}

// ApproveReceipt approves a Draft receipt. Inventory is not posted here.
func (s *Service) ApproveReceipt(ctx context.Context, actor shared.Actor, id int64) (GoodsReceipt, error) {
	if err := checkActor(actor); err != nil {
		return GoodsReceipt{}, err
	}
	now := s.now()
	var gr GoodsReceipt
	err := s.run(ctx, "receipt.approve", func(ctx context.Context, tx TxRepository) error {
		var err error
		if gr, err = tx.LockReceipt(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		next, err := gr.Status.Next(TransitionApprove)
		if err != nil {
			return err
		}
		gr.Status = next
		gr.ApprovedBy = ptr(actor.UserID)
		gr.ApprovalDate = ptr(now)
		gr.touch(actor.UserID, now)
		return tx.UpdateReceipt(ctx, gr)
	})
	s.observe(DocReceipt, string(TransitionApprove), err)
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordApproval(ctx, actor, DocReceipt, gr.ID, shared.ApprovalApprove, "GR "+gr.Number+" approved")
	s.logger.Info("goods receipt approved", slog.Int64("id", gr.ID), slog.String("number", gr.Number))
	return gr, nil
}

// DeleteReceipt removes a Draft receipt and subtracts its quantities from the
// order lines. The order falls back to Confirmed when nothing remains received.
func (s *Service) DeleteReceipt(ctx context.Context, actor shared.Actor, id int64) error {
	if err := checkActor(actor); err != nil {
		return err
	}
	current, err := s.repo.GetReceipt(ctx, actor.CompanyID, id)
	if err != nil {
		return err
	}
	now := s.now()
	var number string
	var status POStatus
	err = s.runLocked(ctx, "receipt.delete", orderLockKey(current.OrderID), func(ctx context.Context, tx TxRepository) error {
		gr, err := tx.LockReceipt(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if _, err := gr.Status.Next(TransitionDelete); err != nil {
			return err
		}
		po, err := tx.LockOrder(ctx, actor.CompanyID, gr.OrderID)
		if err != nil {
			return err
		}
		if _, err := po.Status.Next(TransitionReverse); err != nil {
			return err
		}
		updated, err := ReverseReceipt(po.Lines, gr.Lines)
		if err != nil {
			return err
		}
		if err := tx.DeleteReceipt(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		if err := tx.UpdateOrderReceived(ctx, updated); err != nil {
			return err
		}
		po.Lines = updated
		po.Status = DeriveOrderStatus(updated, POStatusConfirmed)
		po.touch(actor.UserID, now)
		number, status = gr.Number, po.Status
		return tx.UpdateOrder(ctx, po)
	})
	s.observe(DocReceipt, string(TransitionDelete), err)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "GR_DELETE", DocReceipt, id, map[string]any{
		"number": number, "order_id": current.OrderID, "order_status": string(status),
	})
	s.logger.Info("goods receipt deleted", slog.Int64("id", id), slog.String("number", number),
		slog.String("order_status", string(status)))
	return nil
}

// GetReceipt loads a receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, actor shared.Actor, id int64) (GoodsReceipt, error) {
	if err := checkActor(actor); err != nil {
		return GoodsReceipt{}, err
	}
	return s.repo.GetReceipt(ctx, actor.CompanyID, id)
}

// ListReceipts returns one page of receipt headers.
func (s *Service) ListReceipts(ctx context.Context, actor shared.Actor, filter ListFilter) (Page[GoodsReceipt], error) {
	if err := checkActor(actor); err != nil {
		return Page[GoodsReceipt]{}, err
	}
	items, total, err := s.repo.ListReceipts(ctx, actor.CompanyID, filter)
	if err != nil {
		return Page[GoodsReceipt]{}, err
	}
	return newPage(items, total, filter), nil
}

package procurement

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func (s *Service) checkCanvassingRefs(ctx context.Context, companyID int64, input CanvassingInput) error {
	if input.RequestID != nil {
		if _, err := s.repo.GetRequest(ctx, companyID, *input.RequestID); err != nil {
			return err
		}
	}
	suppliers := map[int64]bool{}
	for _, line := range input.Lines {
		if !suppliers[line.SupplierID] {
			if _, err := s.refs.Supplier(ctx, companyID, line.SupplierID); err != nil {
				return err
			}
			suppliers[line.SupplierID] = true
		}
		if line.ProductID != nil {
			if _, err := s.refs.Product(ctx, companyID, *line.ProductID); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateCanvassing stores supplier quotes in a new InProgress canvassing.
// The referenced request may be in any status.
func (s *Service) CreateCanvassing(ctx context.Context, actor shared.Actor, input CanvassingInput) (Canvassing, error) {
	if err := checkActor(actor); err != nil {
		return Canvassing{}, err
	}
	if err := Validate(input); err != nil {
		return Canvassing{}, err
	}
	if err := s.checkCanvassingRefs(ctx, actor.CompanyID, input); err != nil {
		return Canvassing{}, err
	}
	now := s.now()
	var c Canvassing
	err := s.run(ctx, "canvassing.create", func(ctx context.Context, tx TxRepository) error {
		c = Canvassing{
			CompanyID:      actor.CompanyID,
			RequestID:      input.RequestID,
			CanvassingDate: today(now, input.CanvassingDate),
			Status:         CanvassStatusInProgress,
			Notes:          input.Notes,
			Audit:          Audit{CreatedBy: actor.UserID, CreatedAt: now},
			Lines:          make([]CanvassLine, len(input.Lines)),
		}
		for i, l := range input.Lines {
			c.Lines[i] = CanvassLine{
				SupplierID:   l.SupplierID,
				ProductID:    l.ProductID,
				Quantity:     l.Quantity,
				UnitPrice:    l.UnitPrice,
				DeliveryDays: l.DeliveryDays,
				PaymentTerms: l.PaymentTerms,
				Notes:        l.Notes,
				LineOrder:    i + 1,
			}
			c.Lines[i].Recalculate()
		}
		number, err := NextDocumentNumber(ctx, tx, DocCanvassing, now)
		if err != nil {
			return err
		}
		c.Number = number
		return tx.InsertCanvassing(ctx, &c)
	})
	s.observe(DocCanvassing, "create", err)
	if err != nil {
		return Canvassing{}, err
	}
	s.recordAudit(ctx, actor, "CNV_CREATE", DocCanvassing, c.ID, map[string]any{"number": c.Number, "request_id": c.RequestID})
	s.logger.Info("canvassing created", slog.Int64("id", c.ID), slog.String("number", c.Number))
	return c, nil
}

// SelectSupplier marks the quotes of one supplier as selected and completes the canvassing.
func (s *Service) SelectSupplier(ctx context.Context, actor shared.Actor, id int64, input SelectSupplierInput) (Canvassing, error) {
	if err := checkActor(actor); err != nil {
		return Canvassing{}, err
	}
	if err := Validate(input); err != nil {
		return Canvassing{}, err
	}
	now := s.now()
	var c Canvassing
	err := s.run(ctx, "canvassing.select_supplier", func(ctx context.Context, tx TxRepository) error {
		var err error
		if c, err = tx.LockCanvassing(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		next, err := c.Status.Next(TransitionSelectSupplier)
		if err != nil {
			return err
		}
		if SelectSupplier(c.Lines, input.SupplierID) == 0 {
			return ErrSupplierNotQuoted
		}
		c.Status = next
		c.SelectedSupplierID = ptr(input.SupplierID)
		c.touch(actor.UserID, now)
		return tx.UpdateCanvassing(ctx, c)
	})
	s.observe(DocCanvassing, "select_supplier", err)
	if err != nil {
		return Canvassing{}, err
	}
	s.recordAudit(ctx, actor, "CNV_SELECT_SUPPLIER", DocCanvassing, c.ID, map[string]any{"supplier_id": input.SupplierID})
	s.logger.Info("canvassing supplier selected", slog.Int64("id", c.ID), slog.Int64("supplier_id", input.SupplierID))
	return c, nil
}

// ConvertCanvassing creates a Draft purchase order from the selected quotes of a
// Completed canvassing and marks its parent request Converted.
func (s *Service) ConvertCanvassing(ctx context.Context, actor shared.Actor, id int64, input ConvertCanvassingInput) (PurchaseOrder, error) {
	if err := checkActor(actor); err != nil {
		return PurchaseOrder{}, err
	}
	if err := Validate(input); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	var (
		po        PurchaseOrder
		requestAt PRStatus
	)
	err := s.run(ctx, "canvassing.convert", func(ctx context.Context, tx TxRepository) error {
		requestAt = ""
		c, err := tx.LockCanvassing(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if _, err := c.Status.Next(TransitionConvert); err != nil {
			return err
		}
		converted, err := tx.CanvassingConverted(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if converted {
			return ErrCanvassingConverted
		}
		if c.SelectedSupplierID == nil {
			return ErrNoSupplierSelected
		}
		selected := SelectedLines(c.Lines)
		if len(selected) == 0 {
			return ErrNoSelectedLines
		}
		lines, err := OrderLinesFromCanvassing(selected)
		if err != nil {
			return err
		}
		po = PurchaseOrder{
			CompanyID:       actor.CompanyID,
			RequestID:       c.RequestID,
			CanvassingID:    ptr(c.ID),
			SupplierID:      *c.SelectedSupplierID,
			OrderDate:       today(now, input.OrderDate),
			Status:          POStatusDraft,
			ShippingAddress: input.ShippingAddress,
			Notes:           input.Notes,
			Audit:           Audit{CreatedBy: actor.UserID, CreatedAt: now},
			Lines:           lines,
		}
		po.Recalculate()
		number, err := NextDocumentNumber(ctx, tx, DocOrder, now)
		if err != nil {
			return err
		}
		po.Number = number
		if err := tx.InsertOrder(ctx, &po); err != nil {
			return err
		}
		if c.RequestID == nil {
			return nil
		}
		requestAt, err = convertRequest(ctx, tx, actor, *c.RequestID, now)
		return err
	})
	s.observe(DocCanvassing, string(TransitionConvert), err)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if requestAt != "" && requestAt != PRStatusConverted {
		s.logger.Warn("request not converted", slog.Int64("request_id", *po.RequestID), slog.String("status", string(requestAt)))
	}
	s.recordAudit(ctx, actor, "CNV_CONVERT", DocCanvassing, id, map[string]any{"order_id": po.ID, "order_number": po.Number})
	s.logger.Info("canvassing converted", slog.Int64("id", id), slog.Int64("order_id", po.ID), slog.String("number", po.Number))
	return po, nil
}

// convertRequest moves the parent request to Converted when its status allows it
// and returns the status the request ends in. A request outside the convert
// transition keeps its status; the order is created regardless.
func convertRequest(ctx context.Context, tx TxRepository, actor shared.Actor, requestID int64, now time.Time) (PRStatus, error) {
	pr, err := tx.LockRequest(ctx, actor.CompanyID, requestID)
	if err != nil {
		return "", err
	}
	next, err := pr.Status.Next(TransitionConvert)
	if err != nil {
		return pr.Status, nil
	}
	pr.Status = next
	pr.touch(actor.UserID, now)
	return next, tx.UpdateRequest(ctx, pr)
}

// CancelCanvassing cancels a canvassing that has not produced an order.
func (s *Service) CancelCanvassing(ctx context.Context, actor shared.Actor, id int64) (Canvassing, error) {
	if err := checkActor(actor); err != nil {
		return Canvassing{}, err
	}
	now := s.now()
	var c Canvassing
	err := s.run(ctx, "canvassing.cancel", func(ctx context.Context, tx TxRepository) error {
		var err error
		if c, err = tx.LockCanvassing(ctx, actor.CompanyID, id); err != nil {
			return err
		}
		next, err := c.Status.Next(TransitionCancel)
		if err != nil {
			return err
		}
		converted, err := tx.CanvassingConverted(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if converted {
			return ErrCanvassingConverted
		}
		c.Status = next
		c.touch(actor.UserID, now)
		return tx.UpdateCanvassing(ctx, c)
	})
	s.observe(DocCanvassing, string(TransitionCancel), err)
	if err != nil {
		return Canvassing{}, err
	}
	s.recordAudit(ctx, actor, "CNV_CANCEL", DocCanvassing, c.ID, map[string]any{"number": c.Number})
	return c, nil
}

// GetCanvassing loads a canvassing with its quotes.
func (s *Service) GetCanvassing(ctx context.Context, actor shared.Actor, id int64) (Canvassing, error) {
	if err := checkActor(actor); err != nil {
		return Canvassing{}, err
	}
	return s.repo.GetCanvassing(ctx, actor.CompanyID, id)
}

// ListCanvassings returns one page of canvassing headers.
func (s *Service) ListCanvassings(ctx context.Context, actor shared.Actor, filter ListFilter) (Page[Canvassing], error) {
	if err := checkActor(actor); err != nil {
		return Page[Canvassing]{}, err
	}
	items, total, err := s.repo.ListCanvassings(ctx, actor.CompanyID, filter)
	if err != nil {
		return Page[Canvassing]{}, err
	}
	return newPage(items, total, filter), nil
}

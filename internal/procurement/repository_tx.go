package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type txRepository struct {
	q querier
}

// lastNumberQueries reads the greatest number under a prefix without taking a
// lock. Two writers can read the same value; the UNIQUE constraint on number
// then rejects the second insert as a Conflict and the service retries.
var lastNumberQueries = map[DocumentType]string{
	DocRequest:    `SELECT number FROM purchase_requests WHERE number LIKE $1 ORDER BY number DESC LIMIT 1`,
	DocCanvassing: `SELECT number FROM canvassings WHERE number LIKE $1 ORDER BY number DESC LIMIT 1`,
	DocOrder:      `SELECT number FROM purchase_orders WHERE number LIKE $1 ORDER BY number DESC LIMIT 1`,
	DocReceipt:    `SELECT number FROM goods_receipts WHERE number LIKE $1 ORDER BY number DESC LIMIT 1`,
}

// LastNumber returns the greatest number under prefix, or "" when none exists.
func (t *txRepository) LastNumber(ctx context.Context, doc DocumentType, prefix string) (string, error) {
	query, ok := lastNumberQueries[doc]
	if !ok {
		return "", fmt.Errorf("procurement: unknown document type %q", doc)
	}
	var number string
	err := t.q.QueryRow(ctx, query, prefix+"%").Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("procurement: last %s number: %w", doc, err)
	}
	return number, nil
}

func expectOne(tag interface{ RowsAffected() int64 }, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func (t *txRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := t.q.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// sendBatch runs queued statements that each return one id, in order.
func (t *txRepository) sendBatch(ctx context.Context, batch *pgx.Batch, ids []*int64) error {
	br := t.q.SendBatch(ctx, batch)
	for _, id := range ids {
		var err error
		if id == nil {
			_, err = br.Exec()
		} else {
			err = br.QueryRow().Scan(id)
		}
		if err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (t *txRepository) LockRequest(ctx context.Context, companyID, id int64) (PurchaseRequest, error) {
	return loadRequest(ctx, t.q, companyID, id, true)
}

func (t *txRepository) InsertRequest(ctx context.Context, pr *PurchaseRequest) error {
	err := t.q.QueryRow(ctx, `INSERT INTO purchase_requests
(company_id, number, request_date, department_id, requested_by, priority, required_date, status,
 approved_by, approval_date, rejection_reason, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		pr.CompanyID, pr.Number, pr.RequestDate, pr.DepartmentID, pr.RequestedBy, string(pr.Priority),
		pr.RequiredDate, string(pr.Status), pr.ApprovedBy, pr.ApprovalDate, pr.RejectionReason, pr.Notes,
		pr.CreatedBy, pr.CreatedAt,
	).Scan(&pr.ID)
	if err != nil {
		return fmt.Errorf("procurement: insert request: %w", err)
	}
	return t.insertRequestLines(ctx, pr)
}

func (t *txRepository) insertRequestLines(ctx context.Context, pr *PurchaseRequest) error {
	batch := &pgx.Batch{}
	ids := make([]*int64, len(pr.Lines))
	for i := range pr.Lines {
		l := &pr.Lines[i]
		l.RequestID = pr.ID
		l.LineOrder = i + 1
		batch.Queue(`INSERT INTO purchase_request_items
(request_id, product_id, description, quantity, estimated_price, purpose, notes, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			l.RequestID, l.ProductID, l.Description, l.Quantity, l.EstimatedPrice, l.Purpose, l.Notes, l.LineOrder)
		ids[i] = &l.ID
	}
	if err := t.sendBatch(ctx, batch, ids); err != nil {
		return fmt.Errorf("procurement: insert request lines: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateRequest(ctx context.Context, pr PurchaseRequest) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_requests SET
request_date = $3, department_id = $4, priority = $5, required_date = $6, status = $7,
approved_by = $8, approval_date = $9, rejection_reason = $10, notes = $11,
modified_by = $12, modified_at = $13
WHERE company_id = $1 AND id = $2`,
		pr.CompanyID, pr.ID, pr.RequestDate, pr.DepartmentID, string(pr.Priority), pr.RequiredDate,
		string(pr.Status), pr.ApprovedBy, pr.ApprovalDate, pr.RejectionReason, pr.Notes,
		pr.ModifiedBy, pr.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("procurement: update request %d: %w", pr.ID, err)
	}
	return expectOne(tag, ErrRequestNotFound)
}

func (t *txRepository) ReplaceRequestLines(ctx context.Context, pr *PurchaseRequest) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM purchase_request_items WHERE request_id = $1`, pr.ID); err != nil {
		return fmt.Errorf("procurement: clear request lines %d: %w", pr.ID, err)
	}
	return t.insertRequestLines(ctx, pr)
}

func (t *txRepository) DeleteRequest(ctx context.Context, companyID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM purchase_requests WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("procurement: delete request %d: %w", id, err)
	}
	return expectOne(tag, ErrRequestNotFound)
}

func (t *txRepository) RequestReferenced(ctx context.Context, companyID, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM canvassings WHERE company_id = $1 AND request_id = $2)
OR EXISTS(SELECT 1 FROM purchase_orders WHERE company_id = $1 AND request_id = $2)`, companyID, id)
}

func (t *txRepository) LockCanvassing(ctx context.Context, companyID, id int64) (Canvassing, error) {
	return loadCanvassing(ctx, t.q, companyID, id, true)
}

func (t *txRepository) InsertCanvassing(ctx context.Context, c *Canvassing) error {
	err := t.q.QueryRow(ctx, `INSERT INTO canvassings
(company_id, number, request_id, canvassing_date, status, selected_supplier_id, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		c.CompanyID, c.Number, c.RequestID, c.CanvassingDate, string(c.Status), c.SelectedSupplierID,
		c.Notes, c.CreatedBy, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("procurement: insert canvassing: %w", err)
	}
	batch := &pgx.Batch{}
	ids := make([]*int64, len(c.Lines))
	for i := range c.Lines {
		l := &c.Lines[i]
		l.CanvassingID = c.ID
		l.LineOrder = i + 1
		batch.Queue(`INSERT INTO canvassing_items
(canvassing_id, supplier_id, product_id, quantity, unit_price, total_price, delivery_days,
 payment_terms, notes, is_selected, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			l.CanvassingID, l.SupplierID, l.ProductID, l.Quantity, l.UnitPrice, l.TotalPrice,
			l.DeliveryDays, l.PaymentTerms, l.Notes, l.IsSelected, l.LineOrder)
		ids[i] = &l.ID
	}
	if err := t.sendBatch(ctx, batch, ids); err != nil {
		return fmt.Errorf("procurement: insert canvassing lines: %w", err)
	}
	return nil
}

// UpdateCanvassing writes the header and the selection flag of every line.
func (t *txRepository) UpdateCanvassing(ctx context.Context, c Canvassing) error {
	tag, err := t.q.Exec(ctx, `UPDATE canvassings SET
status = $3, selected_supplier_id = $4, notes = $5, modified_by = $6, modified_at = $7
WHERE company_id = $1 AND id = $2`,
		c.CompanyID, c.ID, string(c.Status), c.SelectedSupplierID, c.Notes, c.ModifiedBy, c.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("procurement: update canvassing %d: %w", c.ID, err)
	}
	if err := expectOne(tag, ErrCanvassingNotFound); err != nil {
		return err
	}
	if len(c.Lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range c.Lines {
		batch.Queue(`UPDATE canvassing_items SET is_selected = $2 WHERE id = $1`, l.ID, l.IsSelected)
	}
	if err := t.sendBatch(ctx, batch, make([]*int64, len(c.Lines))); err != nil {
		return fmt.Errorf("procurement: update canvassing selection %d: %w", c.ID, err)
	}
	return nil
}

func (t *txRepository) CanvassingConverted(ctx context.Context, companyID, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM purchase_orders WHERE company_id = $1 AND canvassing_id = $2)`, companyID, id)
}

func (t *txRepository) LockOrder(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	return loadOrder(ctx, t.q, companyID, id, true)
}

func (t *txRepository) InsertOrder(ctx context.Context, po *PurchaseOrder) error {
	err := t.q.QueryRow(ctx, `INSERT INTO purchase_orders
(company_id, number, request_id, canvassing_id, supplier_id, order_date, required_date, subtotal,
 tax_amount, discount_amount, shipping_amount, total_amount, status, shipping_address, notes,
 created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) RETURNING id`,
		po.CompanyID, po.Number, po.RequestID, po.CanvassingID, po.SupplierID, po.OrderDate, po.RequiredDate,
		po.Subtotal, po.TaxAmount, po.DiscountAmount, po.ShippingAmount, po.TotalAmount, string(po.Status),
		po.ShippingAddress, po.Notes, po.CreatedBy, po.CreatedAt,
	).Scan(&po.ID)
	if err != nil {
		return fmt.Errorf("procurement: insert order: %w", err)
	}
	return t.insertOrderLines(ctx, po)
}

func (t *txRepository) insertOrderLines(ctx context.Context, po *PurchaseOrder) error {
	batch := &pgx.Batch{}
	ids := make([]*int64, len(po.Lines))
	for i := range po.Lines {
		l := &po.Lines[i]
		l.OrderID = po.ID
		l.LineOrder = i + 1
		batch.Queue(`INSERT INTO purchase_order_items
(order_id, product_id, quantity, received_quantity, unit_price, discount_percent, discount_amount,
 tax_percent, tax_amount, line_total, notes, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
			l.OrderID, l.ProductID, l.Quantity, l.Received, l.UnitPrice, l.DiscountPercent, l.DiscountAmount,
			l.TaxPercent, l.TaxAmount, l.LineTotal, l.Notes, l.LineOrder)
		ids[i] = &l.ID
	}
	if err := t.sendBatch(ctx, batch, ids); err != nil {
		return fmt.Errorf("procurement: insert order lines: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateOrder(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_orders SET
request_id = $3, supplier_id = $4, order_date = $5, required_date = $6, subtotal = $7,
tax_amount = $8, discount_amount = $9, shipping_amount = $10, total_amount = $11, status = $12,
approved_by = $13, approval_date = $14, sent_date = $15, confirmed_date = $16,
shipping_address = $17, notes = $18, modified_by = $19, modified_at = $20
WHERE company_id = $1 AND id = $2`,
		po.CompanyID, po.ID, po.RequestID, po.SupplierID, po.OrderDate, po.RequiredDate, po.Subtotal,
		po.TaxAmount, po.DiscountAmount, po.ShippingAmount, po.TotalAmount, string(po.Status),
		po.ApprovedBy, po.ApprovalDate, po.SentDate, po.ConfirmedDate,
		po.ShippingAddress, po.Notes, po.ModifiedBy, po.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("procurement: update order %d: %w", po.ID, err)
	}
	return expectOne(tag, ErrOrderNotFound)
}

func (t *txRepository) ReplaceOrderLines(ctx context.Context, po *PurchaseOrder) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM purchase_order_items WHERE order_id = $1`, po.ID); err != nil {
		return fmt.Errorf("procurement: clear order lines %d: %w", po.ID, err)
	}
	return t.insertOrderLines(ctx, po)
}

// UpdateOrderReceived writes the ledger value of each line.
func (t *txRepository) UpdateOrderReceived(ctx context.Context, lines []POLine) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1`, l.ID, l.Received)
	}
	if err := t.sendBatch(ctx, batch, make([]*int64, len(lines))); err != nil {
		return fmt.Errorf("procurement: update received quantities: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteOrder(ctx context.Context, companyID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM purchase_orders WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("procurement: delete order %d: %w", id, err)
	}
	return expectOne(tag, ErrOrderNotFound)
}

func (t *txRepository) OrderHasReceipts(ctx context.Context, companyID, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM goods_receipts WHERE company_id = $1 AND order_id = $2)`, companyID, id)
}

func (t *txRepository) LockReceipt(ctx context.Context, companyID, id int64) (GoodsReceipt, error) {
	return loadReceipt(ctx, t.q, companyID, id, true)
}

func (t *txRepository) InsertReceipt(ctx context.Context, gr *GoodsReceipt) error {
	err := t.q.QueryRow(ctx, `INSERT INTO goods_receipts
(company_id, number, order_id, receipt_date, warehouse_id, delivery_note, received_by, status, notes,
 created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		gr.CompanyID, gr.Number, gr.OrderID, gr.ReceiptDate, gr.WarehouseID, gr.DeliveryNote,
		gr.ReceivedBy, string(gr.Status), gr.Notes, gr.CreatedBy, gr.CreatedAt,
	).Scan(&gr.ID)
	if err != nil {
		return fmt.Errorf("procurement: insert receipt: %w", err)
	}
	batch := &pgx.Batch{}
	ids := make([]*int64, len(gr.Lines))
	for i := range gr.Lines {
		l := &gr.Lines[i]
		l.ReceiptID = gr.ID
		l.LineOrder = i + 1
		batch.Queue(`INSERT INTO goods_receipt_items
(receipt_id, order_line_id, product_id, ordered_quantity, received_quantity, rejected_quantity,
 unit_price, notes, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			l.ReceiptID, l.OrderLineID, l.ProductID, l.OrderedQuantity, l.Received, l.Rejected,
			l.UnitPrice, l.Notes, l.LineOrder)
		ids[i] = &l.ID
	}
	if err := t.sendBatch(ctx, batch, ids); err != nil {
		return fmt.Errorf("procurement: insert receipt lines: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateReceipt(ctx context.Context, gr GoodsReceipt) error {
	tag, err := t.q.Exec(ctx, `UPDATE goods_receipts SET
status = $3, approved_by = $4, approval_date = $5, notes = $6, modified_by = $7, modified_at = $8
WHERE company_id = $1 AND id = $2`,
		gr.CompanyID, gr.ID, string(gr.Status), gr.ApprovedBy, gr.ApprovalDate, gr.Notes,
		gr.ModifiedBy, gr.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("procurement: update receipt %d: %w", gr.ID, err)
	}
	return expectOne(tag, ErrReceiptNotFound)
}

func (t *txRepository) DeleteReceipt(ctx context.Context, companyID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM goods_receipts WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("procurement: delete receipt %d: %w", id, err)
	}
	return expectOne(tag, ErrReceiptNotFound)
}

func (t *txRepository) InsertEmailLog(ctx context.Context, log *EmailLog) error {
	err := t.q.QueryRow(ctx, `INSERT INTO email_logs
(company_id, reference_type, reference_id, recipient_email, subject, body, status, sent_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		log.CompanyID, log.ReferenceType, log.ReferenceID, log.RecipientEmail, log.Subject, log.Body,
		string(log.Status), log.SentBy, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("procurement: insert email log: %w", err)
	}
	return nil
}

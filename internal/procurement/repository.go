package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// RepositoryPort describes the document store used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetRequest(ctx context.Context, companyID, id int64) (PurchaseRequest, error)
	ListRequests(ctx context.Context, companyID int64, filter ListFilter) ([]PurchaseRequest, int, error)
	GetCanvassing(ctx context.Context, companyID, id int64) (Canvassing, error)
	ListCanvassings(ctx context.Context, companyID int64, filter ListFilter) ([]Canvassing, int, error)
	GetOrder(ctx context.Context, companyID, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, companyID int64, filter ListFilter) ([]PurchaseOrder, int, error)
	ListOrderReceipts(ctx context.Context, companyID, orderID int64) ([]GoodsReceipt, error)
	GetReceipt(ctx context.Context, companyID, id int64) (GoodsReceipt, error)
	ListReceipts(ctx context.Context, companyID int64, filter ListFilter) ([]GoodsReceipt, int, error)
}

// TxRepository exposes the operations available inside one transaction.
// Lock* reads take a row lock on the header for the rest of the transaction.
type TxRepository interface {
	SequenceSource

	LockRequest(ctx context.Context, companyID, id int64) (PurchaseRequest, error)
	InsertRequest(ctx context.Context, pr *PurchaseRequest) error
	UpdateRequest(ctx context.Context, pr PurchaseRequest) error
	ReplaceRequestLines(ctx context.Context, pr *PurchaseRequest) error
	DeleteRequest(ctx context.Context, companyID, id int64) error
	RequestReferenced(ctx context.Context, companyID, id int64) (bool, error)

	LockCanvassing(ctx context.Context, companyID, id int64) (Canvassing, error)
	InsertCanvassing(ctx context.Context, c *Canvassing) error
	UpdateCanvassing(ctx context.Context, c Canvassing) error
	CanvassingConverted(ctx context.Context, companyID, id int64) (bool, error)

	LockOrder(ctx context.Context, companyID, id int64) (PurchaseOrder, error)
	InsertOrder(ctx context.Context, po *PurchaseOrder) error
	UpdateOrder(ctx context.Context, po PurchaseOrder) error
	ReplaceOrderLines(ctx context.Context, po *PurchaseOrder) error
	UpdateOrderReceived(ctx context.Context, lines []POLine) error
	DeleteOrder(ctx context.Context, companyID, id int64) error
	OrderHasReceipts(ctx context.Context, companyID, id int64) (bool, error)

	LockReceipt(ctx context.Context, companyID, id int64) (GoodsReceipt, error)
	InsertReceipt(ctx context.Context, gr *GoodsReceipt) error
	UpdateReceipt(ctx context.Context, gr GoodsReceipt) error
	DeleteReceipt(ctx context.Context, companyID, id int64) error

	InsertEmailLog(ctx context.Context, log *EmailLog) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

const (
	requestColumns = `id, company_id, number, request_date, department_id, requested_by, priority,
	required_date, status, approved_by, approval_date, rejection_reason, notes,
	created_by, created_at, modified_by, modified_at`
	requestLineColumns = `id, request_id, product_id, description, quantity, estimated_price,
	purpose, notes, line_order`

	canvassingColumns = `id, company_id, number, request_id, canvassing_date, status,
	selected_supplier_id, notes, created_by, created_at, modified_by, modified_at`
	canvassLineColumns = `id, canvassing_id, supplier_id, product_id, quantity, unit_price,
	total_price, delivery_days, payment_terms, notes, is_selected, line_order`

	orderColumns = `id, company_id, number, request_id, canvassing_id, supplier_id, order_date,
	required_date, subtotal, tax_amount, discount_amount, shipping_amount, total_amount, status,
	approved_by, approval_date, sent_date, confirmed_date, shipping_address, notes,
	created_by, created_at, modified_by, modified_at`
	orderLineColumns = `id, order_id, product_id, quantity, received_quantity, unit_price,
	discount_percent, discount_amount, tax_percent, tax_amount, line_total, notes, line_order`

	receiptColumns = `id, company_id, number, order_id, receipt_date, warehouse_id, delivery_note,
	received_by, status, approved_by, approval_date, notes, created_by, created_at,
	modified_by, modified_at`
	receiptLineColumns = `id, receipt_id, order_line_id, product_id, ordered_quantity,
	received_quantity, rejected_quantity, unit_price, notes, line_order`
)

func scanRequest(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	err := row.Scan(
		&pr.ID, &pr.CompanyID, &pr.Number, &pr.RequestDate, &pr.DepartmentID, &pr.RequestedBy,
		&pr.Priority, &pr.RequiredDate, &pr.Status, &pr.ApprovedBy, &pr.ApprovalDate,
		&pr.RejectionReason, &pr.Notes, &pr.CreatedBy, &pr.CreatedAt, &pr.ModifiedBy, &pr.ModifiedAt,
	)
	return pr, err
}

func scanCanvassing(row pgx.Row) (Canvassing, error) {
	var c Canvassing
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Number, &c.RequestID, &c.CanvassingDate, &c.Status,
		&c.SelectedSupplierID, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.ModifiedBy, &c.ModifiedAt,
	)
	return c, err
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(
		&po.ID, &po.CompanyID, &po.Number, &po.RequestID, &po.CanvassingID, &po.SupplierID,
		&po.OrderDate, &po.RequiredDate, &po.Subtotal, &po.TaxAmount, &po.DiscountAmount,
		&po.ShippingAmount, &po.TotalAmount, &po.Status, &po.ApprovedBy, &po.ApprovalDate,
		&po.SentDate, &po.ConfirmedDate, &po.ShippingAddress, &po.Notes,
		&po.CreatedBy, &po.CreatedAt, &po.ModifiedBy, &po.ModifiedAt,
	)
	return po, err
}

func scanReceipt(row pgx.Row) (GoodsReceipt, error) {
	var gr GoodsReceipt
	err := row.Scan(
		&gr.ID, &gr.CompanyID, &gr.Number, &gr.OrderID, &gr.ReceiptDate, &gr.WarehouseID,
		&gr.DeliveryNote, &gr.ReceivedBy, &gr.Status, &gr.ApprovedBy, &gr.ApprovalDate, &gr.Notes,
		&gr.CreatedBy, &gr.CreatedAt, &gr.ModifiedBy, &gr.ModifiedAt,
	)
	return gr, err
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func loadRequest(ctx context.Context, q querier, companyID, id int64, lock bool) (PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE company_id = $1 AND id = $2` + lockClause(lock)
	pr, err := scanRequest(q.QueryRow(ctx, query, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, ErrRequestNotFound
		}
		return PurchaseRequest{}, fmt.Errorf("procurement: load request %d: %w", id, err)
	}
	rows, err := q.Query(ctx, `SELECT `+requestLineColumns+` FROM purchase_request_items WHERE request_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	pr.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (PRLine, error) {
		var l PRLine
		err := row.Scan(&l.ID, &l.RequestID, &l.ProductID, &l.Description, &l.Quantity,
			&l.EstimatedPrice, &l.Purpose, &l.Notes, &l.LineOrder)
		return l, err
	})
	if err != nil {
		return PurchaseRequest{}, fmt.Errorf("procurement: load request lines %d: %w", id, err)
	}
	return pr, nil
}

func loadCanvassing(ctx context.Context, q querier, companyID, id int64, lock bool) (Canvassing, error) {
	query := `SELECT ` + canvassingColumns + ` FROM canvassings WHERE company_id = $1 AND id = $2` + lockClause(lock)
	c, err := scanCanvassing(q.QueryRow(ctx, query, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Canvassing{}, ErrCanvassingNotFound
		}
		return Canvassing{}, fmt.Errorf("procurement: load canvassing %d: %w", id, err)
	}
	rows, err := q.Query(ctx, `SELECT `+canvassLineColumns+` FROM canvassing_items WHERE canvassing_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return Canvassing{}, err
	}
	c.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CanvassLine, error) {
		var l CanvassLine
		err := row.Scan(&l.ID, &l.CanvassingID, &l.SupplierID, &l.ProductID, &l.Quantity, &l.UnitPrice,
			&l.TotalPrice, &l.DeliveryDays, &l.PaymentTerms, &l.Notes, &l.IsSelected, &l.LineOrder)
		return l, err
	})
	if err != nil {
		return Canvassing{}, fmt.Errorf("procurement: load canvassing lines %d: %w", id, err)
	}
	return c, nil
}

func loadOrder(ctx context.Context, q querier, companyID, id int64, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE company_id = $1 AND id = $2` + lockClause(lock)
	po, err := scanOrder(q.QueryRow(ctx, query, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrOrderNotFound
		}
		return PurchaseOrder{}, fmt.Errorf("procurement: load order %d: %w", id, err)
	}
	rows, err := q.Query(ctx, `SELECT `+orderLineColumns+` FROM purchase_order_items WHERE order_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (POLine, error) {
		var l POLine
		err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Received, &l.UnitPrice,
			&l.DiscountPercent, &l.DiscountAmount, &l.TaxPercent, &l.TaxAmount, &l.LineTotal,
			&l.Notes, &l.LineOrder)
		return l, err
	})
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: load order lines %d: %w", id, err)
	}
	return po, nil
}

func loadReceipt(ctx context.Context, q querier, companyID, id int64, lock bool) (GoodsReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM goods_receipts WHERE company_id = $1 AND id = $2` + lockClause(lock)
	gr, err := scanReceipt(q.QueryRow(ctx, query, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, ErrReceiptNotFound
		}
		return GoodsReceipt{}, fmt.Errorf("procurement: load receipt %d: %w", id, err)
	}
	rows, err := q.Query(ctx, `SELECT `+receiptLineColumns+` FROM goods_receipt_items WHERE receipt_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	gr.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (GRLine, error) {
		var l GRLine
		err := row.Scan(&l.ID, &l.ReceiptID, &l.OrderLineID, &l.ProductID, &l.OrderedQuantity,
			&l.Received, &l.Rejected, &l.UnitPrice, &l.Notes, &l.LineOrder)
		return l, err
	})
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("procurement: load receipt lines %d: %w", id, err)
	}
	return gr, nil
}

// GetRequest loads a purchase request with its lines.
func (r *Repository) GetRequest(ctx context.Context, companyID, id int64) (PurchaseRequest, error) {
	return loadRequest(ctx, r.pool, companyID, id, false)
}

// GetCanvassing loads a canvassing with its lines.
func (r *Repository) GetCanvassing(ctx context.Context, companyID, id int64) (Canvassing, error) {
	return loadCanvassing(ctx, r.pool, companyID, id, false)
}

// GetOrder loads a purchase order with its lines.
func (r *Repository) GetOrder(ctx context.Context, companyID, id int64) (PurchaseOrder, error) {
	return loadOrder(ctx, r.pool, companyID, id, false)
}

// GetReceipt loads a goods receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, companyID, id int64) (GoodsReceipt, error) {
	return loadReceipt(ctx, r.pool, companyID, id, false)
}

// listQuery assembles a filtered, paginated header query.
type listQuery struct {
	table      string
	columns    string
	conditions []string
	args       []any
}

func newListQuery(table, columns string, companyID int64) *listQuery {
	return &listQuery{table: table, columns: columns, conditions: []string{"company_id = $1"}, args: []any{companyID}}
}

func (q *listQuery) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.conditions = append(q.conditions, fmt.Sprintf(cond, len(q.args)))
}

func (q *listQuery) sql(page, perPage int) (count string, list string, args []any) {
	whereClause := "WHERE " + strings.Join(q.conditions, " AND ")
	count = fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, q.table, whereClause)
	_, perPage = shared.NormalizePage(page, perPage)
	args = append(append([]any{}, q.args...), perPage, shared.Offset(page, perPage))
	list = fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY number DESC, id DESC LIMIT $%d OFFSET $%d`,
		q.columns, q.table, whereClause, len(q.args)+1, len(q.args)+2)
	return count, list, args
}

func runList[T any](ctx context.Context, pool *pgxpool.Pool, q *listQuery, filter ListFilter, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	countSQL, listSQL, args := q.sql(filter.Page, filter.PerPage)
	var total int
	if err := pool.QueryRow(ctx, countSQL, q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("procurement: count %s: %w", q.table, err)
	}
	rows, err := pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("procurement: list %s: %w", q.table, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) { return scan(row) })
	if err != nil {
		return nil, 0, fmt.Errorf("procurement: scan %s: %w", q.table, err)
	}
	return items, total, nil
}

// ListRequests returns request headers, newest number first.
func (r *Repository) ListRequests(ctx context.Context, companyID int64, filter ListFilter) ([]PurchaseRequest, int, error) {
	q := newListQuery("purchase_requests", requestColumns, companyID)
	if filter.Status != "" {
		q.where("status = $%d", filter.Status)
	}
	return runList(ctx, r.pool, q, filter, scanRequest)
}

// ListCanvassings returns canvassing headers.
func (r *Repository) ListCanvassings(ctx context.Context, companyID int64, filter ListFilter) ([]Canvassing, int, error) {
	q := newListQuery("canvassings", canvassingColumns, companyID)
	if filter.Status != "" {
		q.where("status = $%d", filter.Status)
	}
	if filter.SupplierID > 0 {
		q.where("selected_supplier_id = $%d", filter.SupplierID)
	}
	return runList(ctx, r.pool, q, filter, scanCanvassing)
}

// ListOrders returns order headers.
func (r *Repository) ListOrders(ctx context.Context, companyID int64, filter ListFilter) ([]PurchaseOrder, int, error) {
	q := newListQuery("purchase_orders", orderColumns, companyID)
	if filter.Status != "" {
		q.where("status = $%d", filter.Status)
	}
	if filter.SupplierID > 0 {
		q.where("supplier_id = $%d", filter.SupplierID)
	}
	return runList(ctx, r.pool, q, filter, scanOrder)
}

// ListReceipts returns receipt headers.
func (r *Repository) ListReceipts(ctx context.Context, companyID int64, filter ListFilter) ([]GoodsReceipt, int, error) {
	q := newListQuery("goods_receipts", receiptColumns, companyID)
	if filter.Status != "" {
		q.where("status = $%d", filter.Status)
	}
	return runList(ctx, r.pool, q, filter, scanReceipt)
}

// ListOrderReceipts returns every receipt recorded against an order, with lines.
func (r *Repository) ListOrderReceipts(ctx context.Context, companyID, orderID int64) ([]GoodsReceipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM goods_receipts WHERE company_id = $1 AND order_id = $2 ORDER BY receipt_date, id`, companyID, orderID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	receipts := make([]GoodsReceipt, 0, len(ids))
	for _, id := range ids {
		gr, err := loadReceipt(ctx, r.pool, companyID, id, false)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, gr)
	}
	return receipts, nil
}

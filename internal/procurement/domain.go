package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType identifies a procurement document kind and doubles as its number prefix.
type DocumentType string

const (
	DocRequest    DocumentType = "PR"
	DocCanvassing DocumentType = "CNV"
	DocOrder      DocumentType = "PO"
	DocReceipt    DocumentType = "GR"
)

// Label returns the human name of the document type.
func (d DocumentType) Label() string {
	switch d {
	case DocRequest:
		return "purchase request"
	case DocCanvassing:
		return "canvassing"
	case DocOrder:
		return "purchase order"
	case DocReceipt:
		return "goods receipt"
	}
	return string(d)
}

// Purchase request lifecycle statuses.
type PRStatus string

const (
	PRStatusDraft           PRStatus = "Draft"
	PRStatusPendingApproval PRStatus = "PendingApproval"
	PRStatusApproved        PRStatus = "Approved"
	PRStatusRejected        PRStatus = "Rejected"
	PRStatusConverted       PRStatus = "Converted"
	PRStatusCancelled       PRStatus = "Cancelled"
)

// Canvassing lifecycle statuses.
type CanvassStatus string

const (
	CanvassStatusInProgress CanvassStatus = "InProgress"
	CanvassStatusCompleted  CanvassStatus = "Completed"
	CanvassStatusCancelled  CanvassStatus = "Cancelled"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft             POStatus = "Draft"
	POStatusApproved          POStatus = "Approved"
	POStatusSent              POStatus = "Sent"
	POStatusConfirmed         POStatus = "Confirmed"
	POStatusPartiallyReceived POStatus = "PartiallyReceived"
	POStatusReceived          POStatus = "Received"
)

// Goods receipt statuses.
type GRStatus string

const (
	GRStatusDraft    GRStatus = "Draft"
	GRStatusApproved GRStatus = "Approved"
)

// Priority of a purchase request.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Audit holds creation and modification stamps shared by every header.
type Audit struct {
	CreatedBy  int64      `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedBy *int64     `json:"modified_by,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

func (a *Audit) touch(actorID int64, at time.Time) {
	a.ModifiedBy = &actorID
	a.ModifiedAt = &at
}

// PurchaseRequest is a requester's statement of need.
type PurchaseRequest struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	Number          string     `json:"number"`
	RequestDate     time.Time  `json:"request_date"`
	DepartmentID    *int64     `json:"department_id,omitempty"`
	RequestedBy     int64      `json:"requested_by"`
	Priority        Priority   `json:"priority"`
	RequiredDate    *time.Time `json:"required_date,omitempty"`
	Status          PRStatus   `json:"status"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovalDate    *time.Time `json:"approval_date,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Audit
	Lines []PRLine `json:"lines"`
}

// PRLine is a requested item.
type PRLine struct {
	ID             int64           `json:"id"`
	RequestID      int64           `json:"request_id"`
	ProductID      *int64          `json:"product_id,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
	Purpose        *string         `json:"purpose,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	LineOrder      int             `json:"line_order"`
}

// Canvassing compares supplier quotes for a request.
type Canvassing struct {
	ID                 int64         `json:"id"`
	CompanyID          int64         `json:"company_id"`
	Number             string        `json:"number"`
	RequestID          *int64        `json:"request_id,omitempty"`
	CanvassingDate     time.Time     `json:"canvassing_date"`
	Status             CanvassStatus `json:"status"`
	SelectedSupplierID *int64        `json:"selected_supplier_id,omitempty"`
	Notes              *string       `json:"notes,omitempty"`
	Audit
	Lines []CanvassLine `json:"lines"`
}

// CanvassLine is one supplier quote.
type CanvassLine struct {
	ID           int64           `json:"id"`
	CanvassingID int64           `json:"canvassing_id"`
	SupplierID   int64           `json:"supplier_id"`
	ProductID    *int64          `json:"product_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	DeliveryDays *int            `json:"delivery_days,omitempty"`
	PaymentTerms *int            `json:"payment_terms,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	IsSelected   bool            `json:"is_selected"`
	LineOrder    int             `json:"line_order"`
}

// PurchaseOrder is the binding commitment to a supplier.
type PurchaseOrder struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	Number          string          `json:"number"`
	RequestID       *int64          `json:"request_id,omitempty"`
	CanvassingID    *int64          `json:"canvassing_id,omitempty"`
	SupplierID      int64           `json:"supplier_id"`
	OrderDate       time.Time       `json:"order_date"`
	RequiredDate    *time.Time      `json:"required_date,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingAmount  decimal.Decimal `json:"shipping_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          POStatus        `json:"status"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApprovalDate    *time.Time      `json:"approval_date,omitempty"`
	SentDate        *time.Time      `json:"sent_date,omitempty"`
	ConfirmedDate   *time.Time      `json:"confirmed_date,omitempty"`
	ShippingAddress *string         `json:"shipping_address,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Audit
	Lines []POLine `json:"lines"`
}

// POLine is an ordered item. Received is maintained by the receipt ledger.
type POLine struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Received        decimal.Decimal `json:"received_quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	Notes           *string         `json:"notes,omitempty"`
	LineOrder       int             `json:"line_order"`
}

// Remaining returns the quantity still open for receipt.
func (l POLine) Remaining() decimal.Decimal {
	return l.Quantity.Sub(l.Received)
}

// GoodsReceipt records goods received against an order.
type GoodsReceipt struct {
	ID           int64      `json:"id"`
	CompanyID    int64      `json:"company_id"`
	Number       string     `json:"number"`
	OrderID      int64      `json:"order_id"`
	ReceiptDate  time.Time  `json:"receipt_date"`
	WarehouseID  *int64     `json:"warehouse_id,omitempty"`
	DeliveryNote *string    `json:"delivery_note,omitempty"`
	ReceivedBy   int64      `json:"received_by"`
	Status       GRStatus   `json:"status"`
	ApprovedBy   *int64     `json:"approved_by,omitempty"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	Audit
	Lines []GRLine `json:"lines"`
}

// GRLine snapshots the order line it receives against.
type GRLine struct {
	ID              int64           `json:"id"`
	ReceiptID       int64           `json:"receipt_id"`
	OrderLineID     int64           `json:"order_line_id"`
	ProductID       int64           `json:"product_id"`
	OrderedQuantity decimal.Decimal `json:"ordered_quantity"`
	Received        decimal.Decimal `json:"received_quantity"`
	Rejected        decimal.Decimal `json:"rejected_quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Notes           *string         `json:"notes,omitempty"`
	LineOrder       int             `json:"line_order"`
}

// Email log statuses.
type EmailStatus string

const (
	EmailStatusQueued EmailStatus = "Queued"
	EmailStatusSent   EmailStatus = "Sent"
	EmailStatusFailed EmailStatus = "Failed"
)

// EmailLog records an outbound notification handed to the mail collaborator.
type EmailLog struct {
	ID             int64       `json:"id"`
	CompanyID      int64       `json:"company_id"`
	ReferenceType  string      `json:"reference_type"`
	ReferenceID    int64       `json:"reference_id"`
	RecipientEmail string      `json:"recipient_email"`
	Subject        string      `json:"subject"`
	Body           string      `json:"body"`
	Status         EmailStatus `json:"status"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	SentDate       *time.Time  `json:"sent_date,omitempty"`
	SentBy         int64       `json:"sent_by"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Supplier is a read-only registry entry.
type Supplier struct {
	ID            int64   `json:"id"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	ContactPerson *string `json:"contact_person,omitempty"`
	Email         *string `json:"email,omitempty"`
	PaymentTerms  *int    `json:"payment_terms,omitempty"`
}

// Product is a read-only registry entry.
type Product struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ListFilter narrows list queries.
type ListFilter struct {
	Status     string
	SupplierID int64
	Page       int
	PerPage    int
}

package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestInput creates or replaces a purchase request.
type RequestInput struct {
	RequestDate  *time.Time         `json:"request_date"`
	DepartmentID *int64             `json:"department_id" validate:"omitempty,gt=0"`
	Priority     Priority           `json:"priority" validate:"omitempty,oneof=Low Medium High Urgent"`
	RequiredDate *time.Time         `json:"required_date"`
	Notes        *string            `json:"notes" validate:"omitempty,max=1000"`
	Lines        []RequestLineInput `json:"lines" validate:"required,min=1,dive"`
}

// RequestLineInput describes one requested item.
type RequestLineInput struct {
	ProductID      *int64          `json:"product_id" validate:"omitempty,gt=0"`
	Description    string          `json:"description" validate:"required,max=500"`
	Quantity       decimal.Decimal `json:"quantity" validate:"gt=0"`
	EstimatedPrice decimal.Decimal `json:"estimated_price" validate:"gte=0"`
	Purpose        *string         `json:"purpose" validate:"omitempty,max=500"`
	Notes          *string         `json:"notes" validate:"omitempty,max=1000"`
}

// RejectInput carries the mandatory rejection reason.
type RejectInput struct {
	Reason string `json:"reason"`
}

// CanvassingInput creates a canvassing.
type CanvassingInput struct {
	RequestID      *int64             `json:"request_id" validate:"omitempty,gt=0"`
	CanvassingDate *time.Time         `json:"canvassing_date"`
	Notes          *string            `json:"notes" validate:"omitempty,max=1000"`
	Lines          []CanvassLineInput `json:"lines" validate:"required,min=1,dive"`
}

// CanvassLineInput is one supplier quote.
type CanvassLineInput struct {
	SupplierID   int64           `json:"supplier_id" validate:"required,gt=0"`
	ProductID    *int64          `json:"product_id" validate:"omitempty,gt=0"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price" validate:"gte=0"`
	DeliveryDays *int            `json:"delivery_days" validate:"omitempty,gte=0"`
	PaymentTerms *int            `json:"payment_terms" validate:"omitempty,gte=0"`
	Notes        *string         `json:"notes" validate:"omitempty,max=1000"`
}

// SelectSupplierInput names the winning supplier.
type SelectSupplierInput struct {
	SupplierID int64 `json:"supplier_id" validate:"required,gt=0"`
}

// ConvertCanvassingInput completes the order created from a canvassing.
type ConvertCanvassingInput struct {
	OrderDate       *time.Time `json:"order_date"`
	ShippingAddress *string    `json:"shipping_address" validate:"omitempty,max=500"`
	Notes           *string    `json:"notes" validate:"omitempty,max=1000"`
}

// OrderInput creates or replaces a purchase order.
type OrderInput struct {
	RequestID       *int64           `json:"request_id" validate:"omitempty,gt=0"`
	SupplierID      int64            `json:"supplier_id" validate:"required,gt=0"`
	OrderDate       *time.Time       `json:"order_date"`
	RequiredDate    *time.Time       `json:"required_date"`
	TaxAmount       decimal.Decimal  `json:"tax_amount" validate:"gte=0"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount" validate:"gte=0"`
	ShippingAmount  decimal.Decimal  `json:"shipping_amount" validate:"gte=0"`
	ShippingAddress *string          `json:"shipping_address" validate:"omitempty,max=500"`
	Notes           *string          `json:"notes" validate:"omitempty,max=1000"`
	Lines           []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

// OrderLineInput describes one ordered item.
type OrderLineInput struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price" validate:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      decimal.Decimal `json:"tax_percent" validate:"gte=0,lte=100"`
	Notes           *string         `json:"notes" validate:"omitempty,max=1000"`
}

// ConfirmOrderInput optionally revises the required date.
type ConfirmOrderInput struct {
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
}

// ReceiptInput creates a goods receipt.
type ReceiptInput struct {
	OrderID      int64              `json:"order_id" validate:"required,gt=0"`
	ReceiptDate  *time.Time         `json:"receipt_date"`
	WarehouseID  *int64             `json:"warehouse_id" validate:"omitempty,gt=0"`
	DeliveryNote *string            `json:"delivery_note" validate:"omitempty,max=100"`
	Notes        *string            `json:"notes" validate:"omitempty,max=1000"`
	Lines        []ReceiptLineInput `json:"lines" validate:"required,min=1,dive"`
}

// ReceiptLineInput references the order line being received.
type ReceiptLineInput struct {
	OrderLineID int64           `json:"order_line_id" validate:"required,gt=0"`
	Received    decimal.Decimal `json:"received_quantity" validate:"gte=0"`
	Rejected    decimal.Decimal `json:"rejected_quantity" validate:"gte=0"`
	Notes       *string         `json:"notes" validate:"omitempty,max=1000"`
}

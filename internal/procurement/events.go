package procurement

import (
	"context"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// OrderSentEvent is handed to the Notifier once a purchase order is sent.
type OrderSentEvent struct {
	CompanyID  int64
	OrderID    int64
	Number     string
	EmailLogID int64
	Recipient  string
	Subject    string
	Body       string
}

// Notifier hands outbound mail to the delivery collaborator. Delivery is
// asynchronous; an error only means the hand-off failed.
type Notifier interface {
	NotifyOrderSent(ctx context.Context, evt OrderSentEvent) error
}

// MetricsPort receives workflow counters.
type MetricsPort interface {
	ObserveTransition(document, transition, outcome string)
	ObserveConflict(operation string)
}

const emailReferenceOrder = "PurchaseOrder"

var emailPrinter = message.NewPrinter(language.English)

func orderEmailSubject(po PurchaseOrder) string {
	return "Purchase Order " + po.Number
}

// renderOrderEmail builds the supplier notification for a purchase order.
// products maps product id to its registry entry; missing names render empty.
func renderOrderEmail(po PurchaseOrder, supplier Supplier, products map[int64]Product) string {
	contact := "Supplier"
	if supplier.ContactPerson != nil && *supplier.ContactPerson != "" {
		contact = *supplier.ContactPerson
	}
	required := ""
	if po.RequiredDate != nil {
		required = po.RequiredDate.Format("2006-01-02")
	}

	var b strings.Builder
	b.WriteString(emailPrinter.Sprintf("Dear %s,\n\n", contact))
	b.WriteString(emailPrinter.Sprintf("Please find attached our Purchase Order %s.\n\n", po.Number))
	b.WriteString("Order Details:\n")
	b.WriteString(emailPrinter.Sprintf("- PO Number: %s\n", po.Number))
	b.WriteString(emailPrinter.Sprintf("- Order Date: %s\n", po.OrderDate.Format("2006-01-02")))
	b.WriteString(emailPrinter.Sprintf("- Required Date: %s\n", required))
	b.WriteString(emailPrinter.Sprintf("- Total Amount: $%.2f\n\n", po.TotalAmount.InexactFloat64()))
	b.WriteString("Items:\n")
	for _, line := range po.Lines {
		b.WriteString(emailPrinter.Sprintf("- %s: %s x $%.2f = $%.2f\n",
			products[line.ProductID].Name, line.Quantity.String(),
			line.UnitPrice.InexactFloat64(), line.LineTotal.InexactFloat64()))
	}
	b.WriteString("\nPlease confirm receipt of this order and provide estimated delivery date.\n\n")
	b.WriteString("Best regards,\nPurchasing Department\n")
	return b.String()
}

package procurement

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Recalculate derives discount, tax and line total from quantity, price and percentages.
func (l *POLine) Recalculate() {
	gross := l.Quantity.Mul(l.UnitPrice)
	l.DiscountAmount = round2(gross.Mul(l.DiscountPercent).Div(hundred))
	taxable := gross.Sub(l.DiscountAmount)
	l.TaxAmount = round2(taxable.Mul(l.TaxPercent).Div(hundred))
	l.LineTotal = round2(taxable.Add(l.TaxAmount))
}

// Recalculate refreshes subtotal and total from lines and header adjustments.
func (po *PurchaseOrder) Recalculate() {
	subtotal := decimal.Zero
	for _, line := range po.Lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	po.Subtotal = round2(subtotal)
	po.TotalAmount = round2(po.Subtotal.Add(po.TaxAmount).Sub(po.DiscountAmount).Add(po.ShippingAmount))
}

// Recalculate keeps total price equal to quantity times unit price.
func (l *CanvassLine) Recalculate() {
	l.TotalPrice = round2(l.Quantity.Mul(l.UnitPrice))
}

// SelectSupplier marks exactly the lines quoted by supplierID as selected and
// reports how many were selected.
func SelectSupplier(lines []CanvassLine, supplierID int64) int {
	selected := 0
	for i := range lines {
		lines[i].IsSelected = lines[i].SupplierID == supplierID
		if lines[i].IsSelected {
			selected++
		}
	}
	return selected
}

// SelectedLines returns the selected lines in their original order.
func SelectedLines(lines []CanvassLine) []CanvassLine {
	var out []CanvassLine
	for _, line := range lines {
		if line.IsSelected {
			out = append(out, line)
		}
	}
	return out
}

// OrderLinesFromCanvassing copies selected canvassing lines into order lines.
// The line total is carried over from the quote.
func OrderLinesFromCanvassing(selected []CanvassLine) ([]POLine, error) {
	lines := make([]POLine, 0, len(selected))
	for i, cl := range selected {
		if cl.ProductID == nil {
			return nil, ErrSelectedLineNoProduct
		}
		lines = append(lines, POLine{
			ProductID: *cl.ProductID,
			Quantity:  cl.Quantity,
			Received:  decimal.Zero,
			UnitPrice: cl.UnitPrice,
			LineTotal: cl.TotalPrice,
			Notes:     cl.Notes,
			LineOrder: i + 1,
		})
	}
	return lines, nil
}

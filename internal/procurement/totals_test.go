package procurement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOrderLineRecalculate(t *testing.T) {
	line := POLine{Quantity: dec("3"), UnitPrice: dec("19.99"), DiscountPercent: dec("10"), TaxPercent: dec("11")}
	line.Recalculate()

	require.Equal(t, "6", line.DiscountAmount.StringFixed(0))
	require.Equal(t, "5.94", line.TaxAmount.StringFixed(2))
	require.Equal(t, "59.91", line.LineTotal.StringFixed(2))
}

func TestOrderRecalculate(t *testing.T) {
	po := PurchaseOrder{
		TaxAmount:      dec("10"),
		DiscountAmount: dec("5"),
		ShippingAmount: dec("2.50"),
		Lines: []POLine{
			{LineTotal: dec("2250")},
			{LineTotal: dec("0.55")},
		},
	}
	po.Recalculate()
	require.Equal(t, "2250.55", po.Subtotal.StringFixed(2))
	require.Equal(t, "2258.05", po.TotalAmount.StringFixed(2))
}

func TestCanvassLineRecalculate(t *testing.T) {
	line := CanvassLine{Quantity: dec("50"), UnitPrice: dec("45.00")}
	line.Recalculate()
	require.True(t, line.TotalPrice.Equal(dec("2250")))
}

func TestSelectSupplierIsExclusive(t *testing.T) {
	lines := []CanvassLine{
		{SupplierID: 1}, {SupplierID: 2}, {SupplierID: 1}, {SupplierID: 3},
	}
	require.Equal(t, 2, SelectSupplier(lines, 1))
	for _, l := range lines {
		require.Equal(t, l.SupplierID == 1, l.IsSelected)
	}

	require.Equal(t, 1, SelectSupplier(lines, 3))
	for _, l := range lines {
		require.Equal(t, l.SupplierID == 3, l.IsSelected, "no residue from the first selection")
	}

	require.Equal(t, 0, SelectSupplier(lines, 42))
	require.Empty(t, SelectedLines(lines))
}

func TestOrderLinesFromCanvassingCopiesSelected(t *testing.T) {
	p1, p2 := int64(10), int64(11)
	lines := []CanvassLine{
		{SupplierID: 1, ProductID: &p1, Quantity: dec("50"), UnitPrice: dec("45"), TotalPrice: dec("2250")},
		{SupplierID: 2, ProductID: &p1, Quantity: dec("50"), UnitPrice: dec("48"), TotalPrice: dec("2400")},
		{SupplierID: 1, ProductID: &p2, Quantity: dec("2"), UnitPrice: dec("7.5"), TotalPrice: dec("15")},
	}
	SelectSupplier(lines, 1)

	got, err := OrderLinesFromCanvassing(SelectedLines(lines))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, p1, got[0].ProductID)
	require.Equal(t, p2, got[1].ProductID)
	require.Equal(t, 2, got[1].LineOrder)

	po := PurchaseOrder{Lines: got}
	po.Recalculate()
	require.True(t, po.Subtotal.Equal(dec("2265")))
	require.True(t, po.TotalAmount.Equal(po.Subtotal))
	for _, l := range got {
		require.True(t, l.Received.Equal(decimal.Zero))
	}
}

func TestOrderLinesFromCanvassingNeedsProduct(t *testing.T) {
	_, err := OrderLinesFromCanvassing([]CanvassLine{{SupplierID: 1, IsSelected: true}})
	require.ErrorIs(t, err, ErrSelectedLineNoProduct)
}

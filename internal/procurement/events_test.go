package procurement

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderOrderEmail(t *testing.T) {
	required := time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)
	po := PurchaseOrder{
		Number:       "PO2025010007",
		OrderDate:    time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		RequiredDate: &required,
		Lines: []POLine{
			{ProductID: productBolt, Quantity: dec("100"), UnitPrice: dec("12.5")},
			{ProductID: productNut, Quantity: dec("2.5"), UnitPrice: dec("4")},
		},
	}
	for i := range po.Lines {
		po.Lines[i].Recalculate()
	}
	po.Recalculate()
	products := map[int64]Product{productBolt: {Name: "Hex Bolt"}, productNut: {Name: "Hex Nut"}}

	body := renderOrderEmail(po, Supplier{Name: "Sumber Makmur"}, products)
	require.True(t, strings.HasPrefix(body, "Dear Supplier,\n\n"))
	require.Contains(t, body, "- PO Number: PO2025010007\n")
	require.Contains(t, body, "- Order Date: 2025-01-15\n")
	require.Contains(t, body, "- Required Date: 2025-02-03\n")
	require.Contains(t, body, "- Total Amount: $1,260.00\n")
	require.Contains(t, body, "- Hex Bolt: 100 x $12.50 = $1,250.00\n")
	require.Contains(t, body, "- Hex Nut: 2.5 x $4.00 = $10.00\n")
	require.True(t, strings.HasSuffix(body, "Best regards,\nPurchasing Department\n"))
	require.Equal(t, "Purchase Order PO2025010007", orderEmailSubject(po))
}

func TestRenderOrderEmailWithoutRequiredDate(t *testing.T) {
	contact := "Budi"
	body := renderOrderEmail(PurchaseOrder{Number: "PO2025010001"}, Supplier{ContactPerson: &contact}, nil)
	require.Contains(t, body, "Dear Budi,")
	require.Contains(t, body, "- Required Date: \n")
	require.Contains(t, body, "Items:\n\n")
}

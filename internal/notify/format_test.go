package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/orders"
)

func TestFormatOrderEmail(t *testing.T) {
	order := orders.Order{
		OrderNumber: "RO-20260830-000123",
		Memo:        "deliver before friday",
		TotalAmount: decimal.RequireFromString("37.5"),
		Items: []orders.OrderItem{
			{ProductName: "Saline 0.9%", Quantity: 3, UnitPrice: decimal.RequireFromString("12.5"), LineTotal: decimal.RequireFromString("37.5")},
		},
	}
	supplier := catalog.Supplier{Name: "medika jaya supplies"}

	subject, body := FormatOrderEmail(order, supplier)

	require.Equal(t, "Restock order RO-20260830-000123", subject)
	require.Contains(t, body, "Dear Medika Jaya Supplies,")
	require.Contains(t, body, "Saline 0.9% x 3 @ 12.50 = 37.50")
	require.Contains(t, body, "Total: 37.50")
	require.Contains(t, body, "Memo: deliver before friday")
}

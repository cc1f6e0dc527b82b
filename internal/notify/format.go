package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/orders"
)

var titleCaser = cases.Title(language.English)

// FormatOrderEmail renders the plain-text supplier notification for a
// freshly finalized order. Amounts come from the frozen item snapshots.
func FormatOrderEmail(order orders.Order, supplier catalog.Supplier) (subject, body string) {
	subject = fmt.Sprintf("Restock order %s", order.OrderNumber)

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", titleCaser.String(supplier.Name))
	fmt.Fprintf(&b, "A new restock order %s has been placed with you.\n\n", order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %s x %d @ %s = %s\n",
			item.ProductName, item.Quantity, item.UnitPrice.StringFixed(2), item.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", order.TotalAmount.StringFixed(2))
	if order.Memo != "" {
		fmt.Fprintf(&b, "Memo: %s\n", order.Memo)
	}
	b.WriteString("\nPlease confirm availability and delivery date.\n")
	return subject, b.String()
}

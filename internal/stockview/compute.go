package stockview

import (
	"math"
	"sort"
	"time"

	"github.com/lotline-erp/lotline-erp/internal/catalog"
	"github.com/lotline-erp/lotline-erp/internal/ledger"
)

// expiringSoonDays is the display threshold for the expiring-soon flag.
const expiringSoonDays = 30

// ComputeProductView derives the stock read model for one product from its
// ledger batches. Pure function of its inputs; now is injected so callers
// and tests get reproducible day math.
func ComputeProductView(product catalog.Product, batches []ledger.Batch, now time.Time) ProductView {
	view := ProductView{
		ProductID: product.ID,
		Name:      product.Name,
		Unit:      product.Unit,
		MinStock:  product.MinStock,
		Batches:   make([]BatchView, 0, len(batches)),
	}

	for _, b := range batches {
		view.CurrentStock += b.Quantity

		bv := BatchView{
			ID:         b.ID,
			BatchNo:    b.BatchNo,
			ExpiryDate: b.ExpiryDate,
			Quantity:   b.Quantity,
			Location:   b.Location,
		}
		if b.ExpiryDate != nil {
			days := daysUntil(*b.ExpiryDate, now)
			bv.DaysUntilExpiry = &days
			bv.IsExpiringSoon = days <= expiringSoonDays
		}
		view.Batches = append(view.Batches, bv)
	}

	view.IsLowStock = view.CurrentStock <= product.MinStock

	sort.SliceStable(view.Batches, func(i, j int) bool {
		return batchViewLess(view.Batches[i], view.Batches[j])
	})
	return view
}

// SortProductViews orders views for display: low stock first, then earliest
// expiry first with no-expiry products last, then name ascending. The order
// is stable and deterministic for identical inputs.
func SortProductViews(views []ProductView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.IsLowStock != b.IsLowStock {
			return a.IsLowStock
		}
		ae, be := a.earliestExpiry(), b.earliestExpiry()
		switch {
		case ae != nil && be == nil:
			return true
		case ae == nil && be != nil:
			return false
		case ae != nil && be != nil && !ae.Equal(*be):
			return ae.Before(*be)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ProductID < b.ProductID
	})
}

// daysUntil returns full days between now and expiry, rounded toward
// negative infinity so an expiry earlier today already reads as negative.
func daysUntil(expiry, now time.Time) int64 {
	return int64(math.Floor(expiry.Sub(now).Hours() / 24))
}

func batchViewLess(a, b BatchView) bool {
	switch {
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return true
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return false
	case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}
	return a.ID < b.ID
}

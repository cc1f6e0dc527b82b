package stockview

import (
	"time"
)

// BatchView is the read model for one batch inside a product view.
type BatchView struct {
	ID              int64      `json:"id"`
	BatchNo         string     `json:"batch_no"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	Quantity        int64      `json:"quantity"`
	Location        string     `json:"location"`
	DaysUntilExpiry *int64     `json:"days_until_expiry"`
	IsExpiringSoon  bool       `json:"is_expiring_soon"`
}

// ProductView is the derived stock read model for one product. It is always
// recomputed from the batch ledger, never stored.
type ProductView struct {
	ProductID    int64       `json:"product_id"`
	Name         string      `json:"name"`
	Unit         string      `json:"unit"`
	MinStock     int64       `json:"min_stock"`
	CurrentStock int64       `json:"current_stock"`
	IsLowStock   bool        `json:"is_low_stock"`
	Batches      []BatchView `json:"batches"`
}

// earliestExpiry returns the soonest expiry date across batches with stock,
// or nil when no such batch has an expiry.
func (v ProductView) earliestExpiry() *time.Time {
	var earliest *time.Time
	for i := range v.Batches {
		b := v.Batches[i]
		if b.Quantity <= 0 || b.ExpiryDate == nil {
			continue
		}
		if earliest == nil || b.ExpiryDate.Before(*earliest) {
			earliest = b.ExpiryDate
		}
	}
	return earliest
}

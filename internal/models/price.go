package models

import "time"

// PriceRecord is one version of a listing's observed price and stock state.
// ValidTo is nil while the record is the listing's current (open) record.
type PriceRecord struct {
	ID        int64      `db:"id" json:"id"`
	ListingID int64      `db:"listing_id" json:"listing_id"`
	Price     float64    `db:"price" json:"price"`
	InStock   bool       `db:"in_stock" json:"in_stock"`
	ValidFrom time.Time  `db:"valid_from" json:"valid_from"`
	ValidTo   *time.Time `db:"valid_to" json:"valid_to,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the record is still current.
func (r *PriceRecord) IsOpen() bool {
	return r.ValidTo == nil
}

// Matches reports whether the record already describes the observation.
func (r *PriceRecord) Matches(price float64, inStock bool) bool {
	return r.Price == price && r.InStock == inStock
}

// Quote is what a seller parser reads off a product page.
type Quote struct {
	Price   float64
	InStock bool
}

// UpdateStatus is the outcome of a price update or a scrape attempt.
type UpdateStatus string

const (
	StatusUpdated   UpdateStatus = "updated"
	StatusUnchanged UpdateStatus = "unchanged"
	StatusSkipped   UpdateStatus = "skipped"
	StatusError     UpdateStatus = "error"
)

// PriceChange is published whenever a listing gets a new open record.
type PriceChange struct {
	ListingID     int64     `json:"listing_id"`
	DeviceID      int64     `json:"device_id"`
	SellerID      int64     `json:"seller_id"`
	Price         float64   `json:"price"`
	InStock       bool      `json:"in_stock"`
	PreviousPrice *float64  `json:"previous_price,omitempty"`
	ValidFrom     time.Time `json:"valid_from"`
}

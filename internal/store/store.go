// Package store persists the marketplace catalog: vendors, the product
// dimension and the daily product facts.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a row with the same key already exists.
	ErrDuplicate = errors.New("already exists")
)

// Vendor is a row of the vendors table.
type Vendor struct {
	ID           string    `json:"vendor_id"`
	Tier         string    `json:"vendor_tier"`
	Region       string    `json:"vendor_region"`
	QualityScore float64   `json:"vendor_quality_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// Product is one daily fact row together with its product attributes.
type Product struct {
	Date               string    `json:"date"`
	ID                 string    `json:"product_id"`
	VendorID           string    `json:"vendor_id"`
	Category           string    `json:"category"`
	SubCategory        string    `json:"sub_category"`
	PriceUSD           float64   `json:"price_usd"`
	DiscountRate       float64   `json:"discount_rate"`
	AdSpendUSD         float64   `json:"ad_spend_usd"`
	Views              int       `json:"views"`
	Orders             int       `json:"orders"`
	GrossRevenueUSD    float64   `json:"gross_revenue_usd"`
	Returns            int       `json:"returns"`
	Rating             float64   `json:"rating"`
	RatingCount        int       `json:"rating_count"`
	StockUnits         int       `json:"stock_units"`
	AvgFulfillmentDays float64   `json:"avg_fulfillment_days"`
	ConversionRate     float64   `json:"conversion_rate"`
	ReturnRate         float64   `json:"return_rate"`
	NetRevenueUSD      float64   `json:"net_revenue_usd"`
	CreatedAt          time.Time `json:"created_at"`
}

// Store defines catalog persistence.
type Store interface {
	// InsertVendor fails with ErrDuplicate when the id is taken.
	InsertVendor(ctx context.Context, v Vendor) error
	Vendor(ctx context.Context, id string) (Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	// LastVendor returns the most recently inserted vendor or ErrNotFound.
	LastVendor(ctx context.Context) (Vendor, error)
	// InsertProduct records the product dimension row if it is new and the
	// daily fact. A fact already present for (date, product, vendor) fails
	// with ErrDuplicate and nothing is written.
	InsertProduct(ctx context.Context, p Product) error
	// LastProduct returns the most recently inserted daily fact or ErrNotFound.
	LastProduct(ctx context.Context) (Product, error)
	Categories(ctx context.Context) ([]string, error)
	Close() error
}

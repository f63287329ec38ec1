// Package catalog validates and records vendor and product entries.
// Validation and storage outcomes are reported as Result values.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketrag/internal/store"
	"marketrag/internal/zlog"
)

var (
	Tiers   = []string{"Bronze", "Silver", "Gold"}
	Regions = []string{"Levant", "GCC", "Europe", "North Africa", "Asia"}
)

// Result is the outcome of a data-entry call.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// VendorInput is the vendor form.
type VendorInput struct {
	ID           string  `json:"vendor_id"`
	Tier         string  `json:"vendor_tier"`
	Region       string  `json:"vendor_region"`
	QualityScore float64 `json:"vendor_quality_score"`
}

// ProductInput is the product form: identity plus the daily metrics.
type ProductInput struct {
	Date               string  `json:"date"`
	ID                 string  `json:"product_id"`
	VendorID           string  `json:"vendor_id"`
	Category           string  `json:"category"`
	SubCategory        string  `json:"sub_category"`
	PriceUSD           float64 `json:"price_usd"`
	DiscountRate       float64 `json:"discount_rate"`
	AdSpendUSD         float64 `json:"ad_spend_usd"`
	Views              int     `json:"views"`
	Orders             int     `json:"orders"`
	GrossRevenueUSD    float64 `json:"gross_revenue_usd"`
	Returns            int     `json:"returns"`
	Rating             float64 `json:"rating"`
	RatingCount        int     `json:"rating_count"`
	StockUnits         int     `json:"stock_units"`
	AvgFulfillmentDays float64 `json:"avg_fulfillment_days"`
}

// Catalog is the data-entry collaborator.
type Catalog struct {
	store store.Store
}

func New(s store.Store) *Catalog {
	return &Catalog{store: s}
}

// AddVendor validates and stores a vendor.
func (c *Catalog) AddVendor(ctx context.Context, in VendorInput) Result {
	in.ID = strings.TrimSpace(in.ID)
	if !strings.HasPrefix(in.ID, "V") {
		return fail("vendor_id must start with 'V' (e.g., V001)")
	}
	if !slices.Contains(Tiers, in.Tier) {
		return fail("vendor_tier must be one of: %s", strings.Join(Tiers, ", "))
	}
	if !slices.Contains(Regions, in.Region) {
		return fail("vendor_region must be one of: %s", strings.Join(Regions, ", "))
	}
	if math.IsNaN(in.QualityScore) || in.QualityScore < -2 || in.QualityScore > 2 {
		return fail("vendor_quality_score must be numeric between -2 and 2")
	}

	err := c.store.InsertVendor(ctx, store.Vendor{ID: in.ID, Tier: in.Tier, Region: in.Region, QualityScore: in.QualityScore})
	if errors.Is(err, store.ErrDuplicate) {
		return fail("vendor_id %s already exists", in.ID)
	}
	if err != nil {
		zlog.Error("add vendor failed", zap.String("vendor_id", in.ID), zap.Error(err))
		return fail("Failed to add vendor to database")
	}
	zlog.Info("vendor added", zap.String("vendor_id", in.ID))
	return Result{
		Success: true,
		Message: fmt.Sprintf("Vendor %s added successfully.\nTier: %s, Region: %s, Quality Score: %g", in.ID, in.Tier, in.Region, in.QualityScore),
	}
}

// Metrics are the values derived from a product's raw counts.
type Metrics struct {
	ConversionRate float64
	ReturnRate     float64
	NetRevenueUSD  float64
}

// Derive computes conversion and return rates (zero when the denominator
// is zero) and revenue net of returns.
func Derive(in ProductInput) Metrics {
	var m Metrics
	if in.Views > 0 {
		m.ConversionRate = float64(in.Orders) / float64(in.Views)
	}
	if in.Orders > 0 {
		m.ReturnRate = float64(in.Returns) / float64(in.Orders)
	}
	m.NetRevenueUSD = in.GrossRevenueUSD - float64(in.Returns)*in.PriceUSD
	return m
}

func validateProduct(in ProductInput) (Result, bool) {
	switch {
	case !strings.HasPrefix(in.ID, "P"):
		return fail("product_id must start with 'P' (e.g., P00001)"), false
	case !validDate(in.Date):
		return fail("date must be in YYYY-MM-DD format"), false
	case !finite(in.PriceUSD, in.DiscountRate, in.AdSpendUSD, in.GrossRevenueUSD, in.Rating, in.AvgFulfillmentDays):
		return fail("numeric fields must be finite numbers"), false
	case in.DiscountRate < 0 || in.DiscountRate > 1:
		return fail("discount_rate must be between 0 and 1"), false
	case in.PriceUSD <= 0:
		return fail("price_usd must be > 0"), false
	case in.AdSpendUSD < 0:
		return fail("ad_spend_usd must be >= 0"), false
	case in.Views < 0 || in.Orders < 0:
		return fail("views and orders must be >= 0"), false
	case in.Orders > in.Views:
		return fail("orders cannot exceed views"), false
	case in.Returns < 0 || in.Returns > in.Orders:
		return fail("returns must be between 0 and orders"), false
	case in.Rating < 1 || in.Rating > 5:
		return fail("rating must be between 1 and 5"), false
	case in.RatingCount < 0:
		return fail("rating_count must be >= 0"), false
	case in.StockUnits < 0:
		return fail("stock_units must be >= 0"), false
	case in.AvgFulfillmentDays <= 0:
		return fail("avg_fulfillment_days must be > 0"), false
	}
	return Result{}, true
}

func validDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// AddProduct validates a product entry, derives its metrics and stores it.
// The vendor must already exist.
func (c *Catalog) AddProduct(ctx context.Context, in ProductInput) Result {
	in.ID = strings.TrimSpace(in.ID)
	in.VendorID = strings.TrimSpace(in.VendorID)
	if res, ok := validateProduct(in); !ok {
		return res
	}
	_, ok, err := c.Vendor(ctx, in.VendorID)
	if err != nil {
		zlog.Error("vendor lookup failed", zap.String("vendor_id", in.VendorID), zap.Error(err))
		return fail("Failed to add product to database")
	}
	if !ok {
		return fail("vendor_id %s does not exist. Please add the vendor first.", in.VendorID)
	}

	m := Derive(in)
	err = c.store.InsertProduct(ctx, store.Product{
		Date: in.Date, ID: in.ID, VendorID: in.VendorID, Category: in.Category, SubCategory: in.SubCategory,
		PriceUSD: in.PriceUSD, DiscountRate: in.DiscountRate, AdSpendUSD: in.AdSpendUSD,
		Views: in.Views, Orders: in.Orders, GrossRevenueUSD: in.GrossRevenueUSD, Returns: in.Returns,
		Rating: in.Rating, RatingCount: in.RatingCount, StockUnits: in.StockUnits, AvgFulfillmentDays: in.AvgFulfillmentDays,
		ConversionRate: m.ConversionRate, ReturnRate: m.ReturnRate, NetRevenueUSD: m.NetRevenueUSD,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return fail("product %s already has an entry for vendor %s on %s", in.ID, in.VendorID, in.Date)
	}
	if err != nil {
		zlog.Error("add product failed", zap.String("product_id", in.ID), zap.Error(err))
		return fail("Failed to add product to database")
	}
	zlog.Info("product added", zap.String("product_id", in.ID), zap.String("date", in.Date))
	return Result{
		Success: true,
		Message: fmt.Sprintf("Product %s added successfully.\nDate: %s\nVendor: %s\nCategory: %s > %s\nPrice: $%g\nConversion Rate: %.2f%%\nReturn Rate: %.2f%%\nNet Revenue: $%.2f",
			in.ID, in.Date, in.VendorID, in.Category, in.SubCategory, in.PriceUSD,
			m.ConversionRate*100, m.ReturnRate*100, m.NetRevenueUSD),
	}
}

// LastVendor returns the most recently added vendor; false when there is none.
func (c *Catalog) LastVendor(ctx context.Context) (store.Vendor, bool, error) {
	v, err := c.store.LastVendor(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return v, false, nil
	}
	return v, err == nil, err
}

// LastProduct returns the most recently added product entry; false when there is none.
func (c *Catalog) LastProduct(ctx context.Context) (store.Product, bool, error) {
	p, err := c.store.LastProduct(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return p, false, nil
	}
	return p, err == nil, err
}

// Vendor looks a vendor up by id; false when it does not exist.
func (c *Catalog) Vendor(ctx context.Context, id string) (store.Vendor, bool, error) {
	v, err := c.store.Vendor(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return v, false, nil
	}
	return v, err == nil, err
}

func (c *Catalog) ListVendors(ctx context.Context) ([]store.Vendor, error) {
	return c.store.ListVendors(ctx)
}

func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	return c.store.Categories(ctx)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect int

const (
	sqliteDialect dialect = iota
	postgresDialect
)

// SQLStore implements Store over database/sql for SQLite and PostgreSQL.
// Queries are written with ? placeholders and rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != postgresDialect {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) InsertVendor(ctx context.Context, v Vendor) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO vendors (vendor_id, vendor_tier, vendor_region, vendor_quality_score, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (vendor_id) DO NOTHING`),
		v.ID, v.Tier, v.Region, v.QualityScore, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert vendor: %w", err)
	}
	return requireRow(res, "vendor "+v.ID)
}

const vendorColumns = `vendor_id, vendor_tier, vendor_region, vendor_quality_score, created_at`

func scanVendor(row interface{ Scan(...any) error }) (Vendor, error) {
	var v Vendor
	var created int64
	if err := row.Scan(&v.ID, &v.Tier, &v.Region, &v.QualityScore, &created); err != nil {
		return v, err
	}
	v.CreatedAt = time.UnixMilli(created).UTC()
	return v, nil
}

func (s *SQLStore) Vendor(ctx context.Context, id string) (Vendor, error) {
	v, err := scanVendor(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+vendorColumns+` FROM vendors WHERE vendor_id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("query vendor: %w", err)
	}
	return v, nil
}

func (s *SQLStore) LastVendor(ctx context.Context) (Vendor, error) {
	v, err := scanVendor(s.db.QueryRowContext(ctx, `
		SELECT `+vendorColumns+` FROM vendors ORDER BY seq DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("query last vendor: %w", err)
	}
	return v, nil
}

func (s *SQLStore) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY vendor_id`)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	defer rows.Close()

	vendors := []Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *SQLStore) InsertProduct(ctx context.Context, p Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert product: %w", err)
	}
	defer tx.Rollback()

	created := s.now().UnixMilli()
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO products (product_id, vendor_id, category, sub_category, price_usd,
			rating, rating_count, avg_fulfillment_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO NOTHING`),
		p.ID, p.VendorID, p.Category, p.SubCategory, p.PriceUSD,
		p.Rating, p.RatingCount, p.AvgFulfillmentDays, created,
	); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO marketplace_daily (date, product_id, vendor_id, category, sub_category,
			price_usd, discount_rate, ad_spend_usd, views, orders, gross_revenue_usd, returns,
			rating, rating_count, stock_units, avg_fulfillment_days,
			conversion_rate, return_rate, net_revenue_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, product_id, vendor_id) DO NOTHING`),
		p.Date, p.ID, p.VendorID, p.Category, p.SubCategory,
		p.PriceUSD, p.DiscountRate, p.AdSpendUSD, p.Views, p.Orders, p.GrossRevenueUSD, p.Returns,
		p.Rating, p.RatingCount, p.StockUnits, p.AvgFulfillmentDays,
		p.ConversionRate, p.ReturnRate, p.NetRevenueUSD, created,
	)
	if err != nil {
		return fmt.Errorf("insert daily fact: %w", err)
	}
	if err := requireRow(res, fmt.Sprintf("product %s on %s", p.ID, p.Date)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) LastProduct(ctx context.Context) (Product, error) {
	var p Product
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT CAST(date AS TEXT), product_id, vendor_id, category, sub_category,
			price_usd, discount_rate, ad_spend_usd, views, orders, gross_revenue_usd, returns,
			rating, rating_count, stock_units, avg_fulfillment_days,
			conversion_rate, return_rate, net_revenue_usd, created_at
		FROM marketplace_daily ORDER BY seq DESC LIMIT 1`).Scan(
		&p.Date, &p.ID, &p.VendorID, &p.Category, &p.SubCategory,
		&p.PriceUSD, &p.DiscountRate, &p.AdSpendUSD, &p.Views, &p.Orders, &p.GrossRevenueUSD, &p.Returns,
		&p.Rating, &p.RatingCount, &p.StockUnits, &p.AvgFulfillmentDays,
		&p.ConversionRate, &p.ReturnRate, &p.NetRevenueUSD, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("query last product: %w", err)
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	return p, nil
}

func (s *SQLStore) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return nil
}

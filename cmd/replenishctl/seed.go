package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
)

type seedCounts struct {
	Suppliers      int `json:"suppliers"`
	Products       int `json:"products"`
	CatalogEntries int `json:"catalog_entries"`
	StockLevels    int `json:"stock_levels"`
}

type catalogSeed struct {
	suppliers []*domain.Supplier
	products  []*domain.Product
	entries   []*domain.SupplierCatalogEntry
	stock     map[string]int64
}

// csvTable is a CSV file addressed by header name.
type csvTable struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func readTable(name string, r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", name)
	}

	t := &csvTable{name: name, columns: map[string]int{}, rows: records[1:]}
	for i, h := range records[0] {
		t.columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return t, nil
}

func (t *csvTable) require(cols ...string) error {
	for _, col := range cols {
		if _, ok := t.columns[col]; !ok {
			return fmt.Errorf("%s: missing column %q", t.name, col)
		}
	}
	return nil
}

func (t *csvTable) value(row []string, col string) string {
	idx, ok := t.columns[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *csvTable) field(i int, col string) string {
	return fmt.Sprintf("%s[%d].%s", t.name, i+2, col)
}

func parseSuppliers(r io.Reader) ([]*domain.Supplier, error) {
	t, err := readTable("suppliers.csv", r)
	if err != nil {
		return nil, err
	}
	if err := t.require("id", "name", "lead_time_days", "unit_cost"); err != nil {
		return nil, err
	}

	verr := &domain.ValidationError{}
	out := make([]*domain.Supplier, 0, len(t.rows))
	for i, row := range t.rows {
		s := &domain.Supplier{ID: t.value(row, "id"), Name: t.value(row, "name")}
		if s.ID == "" {
			verr.Add(t.field(i, "id"), "is required")
		}
		lead, err := strconv.Atoi(t.value(row, "lead_time_days"))
		if err != nil || lead < 0 {
			verr.Add(t.field(i, "lead_time_days"), "must be a non-negative integer")
		}
		s.LeadTimeDays = lead
		if s.UnitCost, err = decimal.NewFromString(t.value(row, "unit_cost")); err != nil || s.UnitCost.IsNegative() {
			verr.Add(t.field(i, "unit_cost"), "must be a non-negative decimal")
		}
		if raw := t.value(row, "defect_rate"); raw != "" {
			rate, err := strconv.ParseFloat(raw, 64)
			if err != nil || rate < 0 || rate > 1 {
				verr.Add(t.field(i, "defect_rate"), "must be within [0, 1]")
			}
			s.DefectRate = rate
		}
		out = append(out, s)
	}
	return out, verr.OrNil()
}

func parseProducts(r io.Reader) ([]*domain.Product, map[string]int64, error) {
	t, err := readTable("products.csv", r)
	if err != nil {
		return nil, nil, err
	}
	if err := t.require("id", "name", "supplier_id"); err != nil {
		return nil, nil, err
	}

	verr := &domain.ValidationError{}
	out := make([]*domain.Product, 0, len(t.rows))
	stock := map[string]int64{}
	for i, row := range t.rows {
		p := &domain.Product{ID: t.value(row, "id"), Name: t.value(row, "name"), SupplierID: t.value(row, "supplier_id"), PackSize: 1}
		if p.ID == "" {
			verr.Add(t.field(i, "id"), "is required")
		}
		if raw := t.value(row, "pack_size"); raw != "" {
			pack, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || pack < 1 {
				verr.Add(t.field(i, "pack_size"), "must be a positive integer")
			}
			p.PackSize = pack
		}
		if raw := t.value(row, "current_stock"); raw != "" {
			qty, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || qty < 0 {
				verr.Add(t.field(i, "current_stock"), "must be a non-negative integer")
			}
			p.CurrentStock = qty
			stock[p.ID] = qty
		}
		out = append(out, p)
	}
	return out, stock, verr.OrNil()
}

func parseCatalogEntries(r io.Reader) ([]*domain.SupplierCatalogEntry, error) {
	t, err := readTable("supplier_catalog.csv", r)
	if err != nil {
		return nil, err
	}
	if err := t.require("supplier_id", "product_id", "unit_cost"); err != nil {
		return nil, err
	}

	verr := &domain.ValidationError{}
	out := make([]*domain.SupplierCatalogEntry, 0, len(t.rows))
	for i, row := range t.rows {
		e := &domain.SupplierCatalogEntry{SupplierID: t.value(row, "supplier_id"), ProductID: t.value(row, "product_id")}
		if e.SupplierID == "" || e.ProductID == "" {
			verr.Add(t.field(i, "supplier_id"), "supplier_id and product_id are required")
		}
		if e.UnitCost, err = decimal.NewFromString(t.value(row, "unit_cost")); err != nil || e.UnitCost.IsNegative() {
			verr.Add(t.field(i, "unit_cost"), "must be a non-negative decimal")
		}
		out = append(out, e)
	}
	return out, verr.OrNil()
}

// loadCatalogSeed parses every file of dataDir before anything is written.
// supplier_catalog.csv is optional.
func loadCatalogSeed(dataDir string) (*catalogSeed, error) {
	seed := &catalogSeed{}

	err := withFile(filepath.Join(dataDir, "suppliers.csv"), func(r io.Reader) (err error) {
		seed.suppliers, err = parseSuppliers(r)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = withFile(filepath.Join(dataDir, "products.csv"), func(r io.Reader) (err error) {
		seed.products, seed.stock, err = parseProducts(r)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = withFile(filepath.Join(dataDir, "supplier_catalog.csv"), func(r io.Reader) (err error) {
		seed.entries, err = parseCatalogEntries(r)
		return err
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return seed, nil
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func seedCatalog(ctx context.Context, store *repository.Store, dataDir string) (seedCounts, error) {
	seed, err := loadCatalogSeed(dataDir)
	if err != nil {
		return seedCounts{}, err
	}
	return applyCatalogSeed(ctx, store, seed, time.Now().UTC())
}

func applyCatalogSeed(ctx context.Context, store *repository.Store, seed *catalogSeed, at time.Time) (seedCounts, error) {
	var counts seedCounts

	for _, s := range seed.suppliers {
		if err := store.Catalog.UpsertSupplier(ctx, s); err != nil {
			return counts, fmt.Errorf("failed to seed supplier %s: %w", s.ID, err)
		}
		counts.Suppliers++
	}
	for _, p := range seed.products {
		if err := store.Catalog.UpsertProduct(ctx, p); err != nil {
			return counts, fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
		counts.Products++
	}
	for _, e := range seed.entries {
		if err := store.Catalog.UpsertCatalogEntry(ctx, e); err != nil {
			return counts, fmt.Errorf("failed to seed price of %s from %s: %w", e.ProductID, e.SupplierID, err)
		}
		counts.CatalogEntries++
	}
	for productID, qty := range seed.stock {
		if err := store.Stock.SetStock(ctx, productID, qty, at); err != nil {
			return counts, fmt.Errorf("failed to seed stock of %s: %w", productID, err)
		}
		counts.StockLevels++
	}

	logger.Log.Info().
		Int("suppliers", counts.Suppliers).
		Int("products", counts.Products).
		Int("catalog_entries", counts.CatalogEntries).
		Int("stock_levels", counts.StockLevels).
		Msg("Catalog seeded")
	return counts, nil
}

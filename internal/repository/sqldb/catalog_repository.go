package sqldb

import (
	"context"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type catalogRepository struct {
	db *DB
}

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (id, name, supplier_id, pack_size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			supplier_id = EXCLUDED.supplier_id,
			pack_size = EXCLUDED.pack_size
	`
	_, err := r.db.exec(ctx, query, p.ID, p.Name, p.SupplierID, p.PackSize)
	return classify("upsert product", err)
}

// Products carry the stock ledger level, zero when the ledger has no row.
const productQuery = `
	SELECT p.id, p.name, p.supplier_id, p.pack_size,
		COALESCE(s.current_stock, 0) AS current_stock
	FROM products p
	LEFT JOIN stock_levels s ON s.product_id = p.id
`

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.get(ctx, &p, productQuery+` WHERE p.id = ?`, id); err != nil {
		return nil, classify("get product "+id, err)
	}
	return &p, nil
}

func (r *catalogRepository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	products := []*domain.Product{}
	if err := r.db.selectAll(ctx, &products, productQuery+` ORDER BY p.id`); err != nil {
		return nil, classify("list products", err)
	}
	return products, nil
}

func (r *catalogRepository) UpsertSupplier(ctx context.Context, s *domain.Supplier) error {
	query := `
		INSERT INTO suppliers (id, name, lead_time_days, unit_cost, defect_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			lead_time_days = EXCLUDED.lead_time_days,
			unit_cost = EXCLUDED.unit_cost,
			defect_rate = EXCLUDED.defect_rate
	`
	_, err := r.db.exec(ctx, query, s.ID, s.Name, s.LeadTimeDays, s.UnitCost, s.DefectRate)
	return classify("upsert supplier", err)
}

func (r *catalogRepository) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var s domain.Supplier
	query := `SELECT id, name, lead_time_days, unit_cost, defect_rate FROM suppliers WHERE id = ?`
	if err := r.db.get(ctx, &s, query, id); err != nil {
		return nil, classify("get supplier "+id, err)
	}
	return &s, nil
}

func (r *catalogRepository) ListSuppliers(ctx context.Context) ([]*domain.Supplier, error) {
	suppliers := []*domain.Supplier{}
	query := `SELECT id, name, lead_time_days, unit_cost, defect_rate FROM suppliers ORDER BY id`
	if err := r.db.selectAll(ctx, &suppliers, query); err != nil {
		return nil, classify("list suppliers", err)
	}
	return suppliers, nil
}

func (r *catalogRepository) UpsertCatalogEntry(ctx context.Context, e *domain.SupplierCatalogEntry) error {
	query := `
		INSERT INTO supplier_catalog (supplier_id, product_id, unit_cost)
		VALUES (?, ?, ?)
		ON CONFLICT (supplier_id, product_id)
		DO UPDATE SET unit_cost = EXCLUDED.unit_cost
	`
	_, err := r.db.exec(ctx, query, e.SupplierID, e.ProductID, e.UnitCost)
	return classify("upsert catalog entry", err)
}

func (r *catalogRepository) CatalogEntry(ctx context.Context, supplierID, productID string) (*domain.SupplierCatalogEntry, error) {
	var e domain.SupplierCatalogEntry
	query := `SELECT supplier_id, product_id, unit_cost FROM supplier_catalog WHERE supplier_id = ? AND product_id = ?`
	if err := r.db.get(ctx, &e, query, supplierID, productID); err != nil {
		return nil, classify("get catalog entry", err)
	}
	return &e, nil
}

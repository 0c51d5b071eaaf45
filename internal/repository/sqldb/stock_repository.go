package sqldb

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type stockRepository struct {
	db *DB
}

func NewStockRepository(db *DB) *stockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) Snapshot(ctx context.Context, productID string) (domain.StockSnapshot, error) {
	var s domain.StockSnapshot
	query := `SELECT product_id, current_stock, as_of FROM stock_levels WHERE product_id = ?`
	if err := r.db.get(ctx, &s, query, productID); err != nil {
		return domain.StockSnapshot{}, classify("stock snapshot "+productID, err)
	}
	return s, nil
}

func (r *stockRepository) SetStock(ctx context.Context, productID string, qty int64, at time.Time) error {
	query := `
		INSERT INTO stock_levels (product_id, current_stock, as_of)
		VALUES (?, ?, ?)
		ON CONFLICT (product_id)
		DO UPDATE SET current_stock = EXCLUDED.current_stock, as_of = EXCLUDED.as_of
	`
	_, err := r.db.exec(ctx, query, productID, qty, at.UTC())
	return classify("set stock", err)
}

package sqldb

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type demandRepository struct {
	db *DB
}

func NewDemandRepository(db *DB) *demandRepository {
	return &demandRepository{db: db}
}

// Day truncates t to its UTC calendar day, the granularity of the ledger.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r *demandRepository) Append(ctx context.Context, points []domain.DemandHistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO demand_history (product_id, demand_date, units_sold)
		VALUES (?, ?, ?)
		ON CONFLICT (product_id, demand_date)
		DO UPDATE SET units_sold = EXCLUDED.units_sold
	`)

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return classify("prepare demand insert", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, p.ProductID, Day(p.Date), p.UnitsSold); err != nil {
				return classify("append demand", err)
			}
		}
		return nil
	})
}

func (r *demandRepository) History(ctx context.Context, productID string, from, to time.Time) ([]domain.DemandHistoryPoint, error) {
	query := `
		SELECT product_id, demand_date, units_sold
		FROM demand_history
		WHERE product_id = ? AND demand_date >= ? AND demand_date <= ?
		ORDER BY demand_date
	`
	points := []domain.DemandHistoryPoint{}
	if err := r.db.selectAll(ctx, &points, query, productID, Day(from), Day(to)); err != nil {
		return nil, classify("demand history "+productID, err)
	}
	return points, nil
}

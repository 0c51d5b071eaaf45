package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

const orderColumns = `id, supplier_id, status, created_at, total_cost, expected_delivery_date,
	sent_at, received_at, cancelled_at, cancel_reason, version`

type purchaseOrderRepository struct {
	db *DB
}

func NewPurchaseOrderRepository(db *DB) *purchaseOrderRepository {
	return &purchaseOrderRepository{db: db}
}

type lineRow struct {
	OrderID string `db:"order_id"`
	LineNo  int    `db:"line_no"`
	domain.LineItem
}

func (r *purchaseOrderRepository) CreateBatch(ctx context.Context, orders []*domain.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}

	orderInsert := r.db.Rebind(`
		INSERT INTO purchase_orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	lineInsert := r.db.Rebind(`
		INSERT INTO purchase_order_lines (order_id, line_no, product_id, quantity, unit_cost)
		VALUES (?, ?, ?, ?, ?)
	`)

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, po := range orders {
			_, err := tx.ExecContext(ctx, orderInsert,
				po.ID, po.SupplierID, po.Status, po.CreatedAt, po.TotalCost, po.ExpectedDeliveryDate,
				po.SentAt, po.ReceivedAt, po.CancelledAt, po.CancelReason, po.Version,
			)
			if err != nil {
				return classify("insert purchase order", err)
			}

			for i, li := range po.LineItems {
				if _, err := tx.ExecContext(ctx, lineInsert, po.ID, i+1, li.ProductID, li.Quantity, li.UnitCost); err != nil {
					return classify("insert purchase order line", err)
				}
			}
		}
		return nil
	})
}

func (r *purchaseOrderRepository) Get(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	if err := r.db.get(ctx, &po, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = ?`, id); err != nil {
		return nil, classify("get purchase order "+id, err)
	}

	orders := []*domain.PurchaseOrder{&po}
	if err := r.attachLines(ctx, r.db.DB, orders); err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *purchaseOrderRepository) List(ctx context.Context, filter domain.PurchaseOrderFilter) ([]*domain.PurchaseOrder, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.SupplierID != "" {
		conditions = append(conditions, "supplier_id = ?")
		args = append(args, filter.SupplierID)
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN (?)")
		args = append(args, filter.Statuses)
	}

	query := `SELECT ` + orderColumns + ` FROM purchase_orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}

	query, args, err := in(query, args...)
	if err != nil {
		return nil, err
	}

	orders := []*domain.PurchaseOrder{}
	if err := r.db.selectAll(ctx, &orders, query, args...); err != nil {
		return nil, classify("list purchase orders", err)
	}
	if err := r.attachLines(ctx, r.db.DB, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *purchaseOrderRepository) attachLines(ctx context.Context, q sqlx.QueryerContext, orders []*domain.PurchaseOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	byID := make(map[string]*domain.PurchaseOrder, len(orders))
	for _, po := range orders {
		ids = append(ids, po.ID)
		byID[po.ID] = po
		po.LineItems = []domain.LineItem{}
	}

	query, args, err := in(`
		SELECT order_id, line_no, product_id, quantity, unit_cost
		FROM purchase_order_lines
		WHERE order_id IN (?)
		ORDER BY order_id, line_no
	`, ids)
	if err != nil {
		return err
	}

	var rows []lineRow
	if err := r.withSem(ctx, func() error {
		return sqlx.SelectContext(ctx, q, &rows, r.db.Rebind(query), args...)
	}); err != nil {
		return classify("load purchase order lines", err)
	}

	for _, row := range rows {
		if po, ok := byID[row.OrderID]; ok {
			po.LineItems = append(po.LineItems, row.LineItem)
		}
	}
	return nil
}

func (r *purchaseOrderRepository) withSem(ctx context.Context, fn func() error) error {
	release, err := r.db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Transition applies a guarded status change. The WHERE clause on status and
// version makes concurrent transitions of the same order mutually exclusive:
// exactly one of them affects a row.
func (r *purchaseOrderRepository) Transition(ctx context.Context, t domain.StatusTransition) (*domain.PurchaseOrder, error) {
	set := []string{"status = ?", "version = version + 1"}
	args := []any{t.To}

	switch t.To {
	case domain.POStatusSent:
		set = append(set, "sent_at = ?")
		args = append(args, t.At)
	case domain.POStatusReceived:
		set = append(set, "received_at = ?")
		args = append(args, t.At)
	case domain.POStatusCancelled:
		set = append(set, "cancelled_at = ?", "cancel_reason = ?")
		args = append(args, t.At, t.Reason)
	}
	args = append(args, t.OrderID, t.From, t.ExpectedVersion)

	update := r.db.Rebind(`UPDATE purchase_orders SET ` + strings.Join(set, ", ") +
		` WHERE id = ? AND status = ? AND version = ?`)

	var updated domain.PurchaseOrder
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, update, args...)
		if err != nil {
			return classify("transition purchase order", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return classify("transition purchase order", err)
		}
		if n == 0 {
			return r.staleOrMissing(ctx, tx, t)
		}

		if err := tx.GetContext(ctx, &updated, r.db.Rebind(`SELECT `+orderColumns+` FROM purchase_orders WHERE id = ?`), t.OrderID); err != nil {
			return classify("reload purchase order", err)
		}

		var lines []lineRow
		linesQuery := r.db.Rebind(`
			SELECT order_id, line_no, product_id, quantity, unit_cost
			FROM purchase_order_lines WHERE order_id = ? ORDER BY line_no
		`)
		if err := tx.SelectContext(ctx, &lines, linesQuery, t.OrderID); err != nil {
			return classify("load purchase order lines", err)
		}
		updated.LineItems = make([]domain.LineItem, 0, len(lines))
		for _, l := range lines {
			updated.LineItems = append(updated.LineItems, l.LineItem)
		}

		if t.To == domain.POStatusReceived {
			return r.receiveStock(ctx, tx, &updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *purchaseOrderRepository) staleOrMissing(ctx context.Context, tx *sqlx.Tx, t domain.StatusTransition) error {
	var current struct {
		Status  domain.POStatus `db:"status"`
		Version int64           `db:"version"`
	}
	err := tx.GetContext(ctx, &current, r.db.Rebind(`SELECT status, version FROM purchase_orders WHERE id = ?`), t.OrderID)
	if err != nil {
		return classify("purchase order "+t.OrderID, err)
	}
	return fmt.Errorf("purchase order %s is %s at version %d, expected %s at version %d: %w",
		t.OrderID, current.Status, current.Version, t.From, t.ExpectedVersion, domain.ErrStaleState)
}

// receiveStock adds the received quantities to the stock ledger.
func (r *purchaseOrderRepository) receiveStock(ctx context.Context, tx *sqlx.Tx, po *domain.PurchaseOrder) error {
	upsert := r.db.Rebind(`
		INSERT INTO stock_levels (product_id, current_stock, as_of)
		VALUES (?, ?, ?)
		ON CONFLICT (product_id)
		DO UPDATE SET current_stock = stock_levels.current_stock + EXCLUDED.current_stock, as_of = EXCLUDED.as_of
	`)
	at := po.CreatedAt
	if po.ReceivedAt != nil {
		at = *po.ReceivedAt
	}

	for _, li := range po.LineItems {
		if _, err := tx.ExecContext(ctx, upsert, li.ProductID, li.Quantity, at); err != nil {
			return classify("receive stock", err)
		}
	}
	return nil
}

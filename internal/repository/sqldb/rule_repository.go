package sqldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

const ruleColumns = `id, product_id, supplier_id, reorder_point, reorder_quantity,
	min_stock, max_stock, lead_time_days, is_active, created_at, updated_at`

type ruleRepository struct {
	db *DB
}

func NewRuleRepository(db *DB) *ruleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *domain.ReorderRule) error {
	query := `
		INSERT INTO reorder_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.exec(ctx, query,
		rule.ID, rule.ProductID, rule.SupplierID, rule.ReorderPoint, rule.ReorderQuantity,
		rule.MinStock, rule.MaxStock, rule.LeadTimeDays, rule.IsActive, rule.CreatedAt, rule.UpdatedAt,
	)
	return classify("create reorder rule", err)
}

func (r *ruleRepository) Update(ctx context.Context, rule *domain.ReorderRule) error {
	query := `
		UPDATE reorder_rules SET
			product_id = ?,
			supplier_id = ?,
			reorder_point = ?,
			reorder_quantity = ?,
			min_stock = ?,
			max_stock = ?,
			lead_time_days = ?,
			is_active = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.exec(ctx, query,
		rule.ProductID, rule.SupplierID, rule.ReorderPoint, rule.ReorderQuantity,
		rule.MinStock, rule.MaxStock, rule.LeadTimeDays, rule.IsActive, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return classify("update reorder rule", err)
	}
	return requireRow(res, "reorder rule", rule.ID)
}

func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, `DELETE FROM reorder_rules WHERE id = ?`, id)
	if err != nil {
		return classify("delete reorder rule", err)
	}
	return requireRow(res, "reorder rule", id)
}

func (r *ruleRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.db.exec(ctx, `UPDATE reorder_rules SET is_active = ?, updated_at = ? WHERE id = ?`, active, at, id)
	if err != nil {
		return classify("toggle reorder rule", err)
	}
	return requireRow(res, "reorder rule", id)
}

func (r *ruleRepository) Get(ctx context.Context, id string) (*domain.ReorderRule, error) {
	var rule domain.ReorderRule
	err := r.db.get(ctx, &rule, `SELECT `+ruleColumns+` FROM reorder_rules WHERE id = ?`, id)
	if err != nil {
		return nil, classify("get reorder rule "+id, err)
	}
	return &rule, nil
}

func (r *ruleRepository) List(ctx context.Context, filter domain.RuleFilter) ([]*domain.ReorderRule, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ProductID != "" {
		conditions = append(conditions, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if filter.SupplierID != "" {
		conditions = append(conditions, "supplier_id = ?")
		args = append(args, filter.SupplierID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = ?")
		args = append(args, true)
	}

	query := `SELECT ` + ruleColumns + ` FROM reorder_rules`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY product_id, supplier_id, id"

	rules := []*domain.ReorderRule{}
	if err := r.db.selectAll(ctx, &rules, query, args...); err != nil {
		return nil, classify("list reorder rules", err)
	}
	return rules, nil
}

func requireRow(res interface{ RowsAffected() (int64, error) }, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// OrderExporter publishes an approved purchase order for supplier pickup.
type OrderExporter interface {
	Export(ctx context.Context, po *domain.PurchaseOrder) (string, error)
}

// CSVExporter writes purchase orders as CSV objects under
// <prefix>/purchase-orders/<supplier>/<order>.csv.
type CSVExporter struct {
	store  ObjectStorage
	prefix string
}

func NewCSVExporter(store ObjectStorage, prefix string) *CSVExporter {
	return &CSVExporter{store: store, prefix: prefix}
}

func (e *CSVExporter) Export(ctx context.Context, po *domain.PurchaseOrder) (string, error) {
	data, err := EncodeOrderCSV(po)
	if err != nil {
		return "", err
	}
	key := OrderObjectKey(e.prefix, po)
	if err := e.store.UploadObject(ctx, key, data, "text/csv"); err != nil {
		return "", err
	}
	return key, nil
}

func OrderObjectKey(prefix string, po *domain.PurchaseOrder) string {
	return path.Join(prefix, "purchase-orders", po.SupplierID, po.ID+".csv")
}

// EncodeOrderCSV renders one row per line item followed by a total row.
func EncodeOrderCSV(po *domain.PurchaseOrder) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"order_id", "supplier_id", "product_id", "quantity", "unit_cost", "subtotal", "expected_delivery_date"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode purchase order %s: %w", po.ID, err)
	}

	delivery := po.ExpectedDeliveryDate.UTC().Format(time.DateOnly)
	for _, li := range po.LineItems {
		row := []string{
			po.ID,
			po.SupplierID,
			li.ProductID,
			strconv.FormatInt(li.Quantity, 10),
			li.UnitCost.StringFixed(2),
			li.Subtotal().StringFixed(2),
			delivery,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encode purchase order %s: %w", po.ID, err)
		}
	}
	if err := w.Write([]string{po.ID, po.SupplierID, "TOTAL", "", "", po.TotalCost.StringFixed(2), delivery}); err != nil {
		return nil, fmt.Errorf("encode purchase order %s: %w", po.ID, err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode purchase order %s: %w", po.ID, err)
	}
	return buf.Bytes(), nil
}

// NoopExporter is used when object storage is disabled.
type NoopExporter struct{}

func (NoopExporter) Export(ctx context.Context, po *domain.PurchaseOrder) (string, error) {
	return "", nil
}

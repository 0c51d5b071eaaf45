package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type fakeStorage struct {
	objects     map[string][]byte
	contentType string
	err         error
}

func (f *fakeStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeStorage) DownloadObject(ctx context.Context, key, destPath string) error {
	return errors.New("not supported")
}

func (f *fakeStorage) UploadObject(ctx context.Context, key string, data []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	f.contentType = contentType
	return nil
}

func sampleOrder() *domain.PurchaseOrder {
	return &domain.PurchaseOrder{
		ID:         "po-1",
		SupplierID: "sup-a",
		LineItems: []domain.LineItem{
			{ProductID: "p1", Quantity: 12, UnitCost: decimal.RequireFromString("2")},
			{ProductID: "p2", Quantity: 8, UnitCost: decimal.RequireFromString("1.25")},
		},
		TotalCost:            decimal.RequireFromString("34"),
		ExpectedDeliveryDate: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
	}
}

func TestEncodeOrderCSV(t *testing.T) {
	data, err := EncodeOrderCSV(sampleOrder())
	require.NoError(t, err)

	want := "order_id,supplier_id,product_id,quantity,unit_cost,subtotal,expected_delivery_date\n" +
		"po-1,sup-a,p1,12,2.00,24.00,2024-03-08\n" +
		"po-1,sup-a,p2,8,1.25,10.00,2024-03-08\n" +
		"po-1,sup-a,TOTAL,,,34.00,2024-03-08\n"
	assert.Equal(t, want, string(data))
}

func TestCSVExporter(t *testing.T) {
	store := &fakeStorage{}
	exporter := NewCSVExporter(store, "exports")

	key, err := exporter.Export(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "exports/purchase-orders/sup-a/po-1.csv", key)
	assert.Contains(t, store.objects, key)
	assert.Equal(t, "text/csv", store.contentType)

	store.err = errors.New("bucket offline")
	_, err = exporter.Export(context.Background(), sampleOrder())
	assert.Error(t, err)
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in         string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
		{"minio:9000", true, "minio:9000", true},
		{"//minio:9000", false, "minio:9000", false},
	}
	for _, tt := range tests {
		host, secure := normalizeEndpoint(tt.in, tt.useSSL)
		assert.Equal(t, tt.wantHost, host, tt.in)
		assert.Equal(t, tt.wantSecure, secure, tt.in)
	}
}

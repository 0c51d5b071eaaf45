package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository/memory"
)

var capturedAt = time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

func TestParseDemandCSV(t *testing.T) {
	csv := "product_id,date,units_sold,current_stock\n" +
		"p2,2024-02-02,4,30\n" +
		"p1,2024-02-02,3,\n" +
		"p1,2024-02-01,5,12\n"

	parsed, err := ParseDemandCSV(strings.NewReader(csv), capturedAt)
	require.NoError(t, err)
	require.Len(t, parsed.Points, 3)

	assert.Equal(t, "p1", parsed.Points[0].ProductID)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), parsed.Points[0].Date)
	assert.Equal(t, 5.0, parsed.Points[0].UnitsSold)
	assert.Equal(t, "p2", parsed.Points[2].ProductID)

	assert.Equal(t, int64(12), parsed.Stock["p1"].CurrentStock)
	assert.Equal(t, int64(30), parsed.Stock["p2"].CurrentStock)
}

func TestParseDemandCSVSkuExportHeaders(t *testing.T) {
	csv := "brand,sku,Nama,stock,Daily Sales\n" +
		"ACME,SKU-1,Cleanser,24.0,1.5\n"

	parsed, err := ParseDemandCSV(strings.NewReader(csv), capturedAt)
	require.NoError(t, err)
	require.Len(t, parsed.Points, 1)
	assert.Equal(t, "SKU-1", parsed.Points[0].ProductID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), parsed.Points[0].Date)
	assert.Equal(t, int64(24), parsed.Stock["SKU-1"].CurrentStock)
}

func TestParseDemandCSVRejectsInvalidRows(t *testing.T) {
	csv := "product_id,date,units_sold\n" +
		"p1,2024-02-01,-1\n" +
		",2024-02-01,2\n" +
		"p2,yesterday,2\n" +
		"p3,2024-02-01,abc\n"

	_, err := ParseDemandCSV(strings.NewReader(csv), capturedAt)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)

	_, err = ParseDemandCSV(strings.NewReader("sku,qty\n"), capturedAt)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestImporterIsAllOrNothing(t *testing.T) {
	store := memory.NewStore()
	importer := NewImporter(store.Demand, store.Stock)
	importer.now = func() time.Time { return capturedAt }
	ctx := context.Background()

	_, err := importer.ImportCSV(ctx, "bad.csv", strings.NewReader("product_id,date,units_sold\np1,2024-02-01,2\np1,2024-02-02,x\n"))
	require.Error(t, err)

	history, err := store.Demand.History(ctx, "p1", time.Time{}, capturedAt)
	require.NoError(t, err)
	assert.Empty(t, history)

	result, err := importer.ImportCSV(ctx, "good.csv", strings.NewReader("product_id,date,units_sold,stock\np1,2024-02-01,2,9\np1,2024-02-02,3,7\n"))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Source: "good.csv", Rows: 2, Products: 1, StockUpdates: 1}, result)

	snap, err := store.Stock.Snapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.CurrentStock)
}

type fakeDrive struct {
	files    []*File
	contents map[string]string
}

func (f *fakeDrive) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	return f.files, nil
}

func (f *fakeDrive) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	content, ok := f.contents[fileID]
	if !ok {
		return errors.New("file not found")
	}
	_, err := io.Copy(w, strings.NewReader(content))
	return err
}

func TestIngestFolder(t *testing.T) {
	store := memory.NewStore()
	source := &fakeDrive{
		files: []*File{
			{ID: "2", Name: "b.csv"},
			{ID: "x", Name: "notes.txt"},
			{ID: "1", Name: "a.csv"},
		},
		contents: map[string]string{
			"1": "product_id,date,units_sold\np1,2024-02-01,2\n",
			"2": "product_id,date,units_sold\np2,2024-02-01,5\n",
		},
	}
	svc := NewIngestService(source, NewImporter(store.Demand, store.Stock))

	results, err := svc.IngestFolder(context.Background(), "folder")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.csv", results[0].Source)
	assert.Equal(t, "b.csv", results[1].Source)
}

func TestHandlerImport(t *testing.T) {
	store := memory.NewStore()
	source := &fakeDrive{
		files:    []*File{{ID: "1", Name: "a.csv"}},
		contents: map[string]string{"1": "product_id,date,units_sold\np1,2024-02-01,2\n", "bad": "product_id,units_sold\np1,-2\n"},
	}
	h := NewHandler(source, NewIngestService(source, NewImporter(store.Demand, store.Stock)), "folder")
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ops/drive/import", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ops/drive/import?fileId=bad", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/drive/files", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.csv")
}

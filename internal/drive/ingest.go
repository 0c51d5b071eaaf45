package drive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
)

// Accepted header names per column. The first group matches the demand
// ledger export, the second the store stock-health sheets.
var (
	productColumns = []string{"product_id", "sku"}
	unitsColumns   = []string{"units_sold", "daily sales"}
	dateColumns    = []string{"date", "demand_date"}
	stockColumns   = []string{"current_stock", "stock"}
)

// ImportResult summarises one imported file.
type ImportResult struct {
	Source       string `json:"source"`
	Rows         int    `json:"rows"`
	Products     int    `json:"products"`
	StockUpdates int    `json:"stock_updates"`
}

// ParsedDemand is the content of a demand file.
type ParsedDemand struct {
	Points []domain.DemandHistoryPoint
	Stock  map[string]domain.StockSnapshot
}

// ParseDemandCSV reads daily demand rows. Rows without a date column are
// attributed to capturedAt. Every invalid row is reported, and nothing is
// returned unless the whole file is valid.
func ParseDemandCSV(r io.Reader, capturedAt time.Time) (*ParsedDemand, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}

	productIdx, ok := findColumn(colMap, productColumns)
	if !ok {
		return nil, domain.NewValidationError("header", "missing required column: %s", strings.Join(productColumns, " or "))
	}
	unitsIdx, ok := findColumn(colMap, unitsColumns)
	if !ok {
		return nil, domain.NewValidationError("header", "missing required column: %s", strings.Join(unitsColumns, " or "))
	}
	dateIdx, hasDate := findColumn(colMap, dateColumns)
	stockIdx, hasStock := findColumn(colMap, stockColumns)

	parsed := &ParsedDemand{Stock: make(map[string]domain.StockSnapshot)}
	verr := &domain.ValidationError{}
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		get := func(idx int) string {
			if idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}

		field := fmt.Sprintf("row[%d]", line)
		productID := get(productIdx)
		if productID == "" {
			verr.Add(field+".product_id", "is required")
			continue
		}

		units, err := strconv.ParseFloat(get(unitsIdx), 64)
		if err != nil {
			verr.Add(field+".units_sold", "not a number: %q", get(unitsIdx))
			continue
		}
		if units < 0 {
			verr.Add(field+".units_sold", "must be >= 0, got %v", units)
			continue
		}

		date := capturedAt
		if hasDate {
			if date, err = parseDate(get(dateIdx)); err != nil {
				verr.Add(field+".date", "%v", err)
				continue
			}
		}
		date = day(date)

		parsed.Points = append(parsed.Points, domain.DemandHistoryPoint{ProductID: productID, Date: date, UnitsSold: units})

		if hasStock && get(stockIdx) != "" {
			// Stock columns are sometimes exported as "12.0".
			qty, err := strconv.ParseFloat(get(stockIdx), 64)
			if err != nil {
				verr.Add(field+".current_stock", "not a number: %q", get(stockIdx))
				continue
			}
			if prev, ok := parsed.Stock[productID]; !ok || !date.Before(prev.AsOf) {
				parsed.Stock[productID] = domain.StockSnapshot{ProductID: productID, CurrentStock: int64(qty), AsOf: date}
			}
		}
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	sort.SliceStable(parsed.Points, func(i, j int) bool {
		if parsed.Points[i].ProductID != parsed.Points[j].ProductID {
			return parsed.Points[i].ProductID < parsed.Points[j].ProductID
		}
		return parsed.Points[i].Date.Before(parsed.Points[j].Date)
	})
	return parsed, nil
}

func findColumn(colMap map[string]int, names []string) (int, bool) {
	for _, name := range names {
		if idx, ok := colMap[name]; ok {
			return idx, true
		}
	}
	return 0, false
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, "02/01/2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Importer loads demand files into the demand and stock ledgers.
type Importer struct {
	demand repository.DemandRepository
	stock  repository.StockRepository
	now    func() time.Time
}

func NewImporter(demand repository.DemandRepository, stock repository.StockRepository) *Importer {
	return &Importer{demand: demand, stock: stock, now: time.Now}
}

// ImportCSV parses r and appends its demand in one call, so a file is either
// fully recorded or not at all. Stock levels found in the file are written
// afterwards.
func (i *Importer) ImportCSV(ctx context.Context, source string, r io.Reader) (ImportResult, error) {
	parsed, err := ParseDemandCSV(r, i.now())
	if err != nil {
		return ImportResult{}, fmt.Errorf("%s: %w", source, err)
	}

	if err := i.demand.Append(ctx, parsed.Points); err != nil {
		return ImportResult{}, fmt.Errorf("%s: append demand: %w", source, err)
	}

	products := make(map[string]struct{})
	for _, p := range parsed.Points {
		products[p.ProductID] = struct{}{}
	}

	result := ImportResult{Source: source, Rows: len(parsed.Points), Products: len(products)}
	for productID, snap := range parsed.Stock {
		if err := i.stock.SetStock(ctx, productID, snap.CurrentStock, snap.AsOf); err != nil {
			return result, fmt.Errorf("%s: set stock %s: %w", source, productID, err)
		}
		result.StockUpdates++
	}

	log.Info().
		Str("source", source).
		Int("rows", result.Rows).
		Int("products", result.Products).
		Int("stock_updates", result.StockUpdates).
		Msg("Demand file imported")

	return result, nil
}

// ImportFile imports a local CSV or XLSX file.
func (i *Importer) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		var buf bytes.Buffer
		if err := convertXLSXToCSV(f, &buf); err != nil {
			return ImportResult{}, fmt.Errorf("%s: %w", path, err)
		}
		return i.ImportCSV(ctx, path, &buf)
	}
	return i.ImportCSV(ctx, path, f)
}

// IngestService imports demand exports straight from a Drive folder.
type IngestService struct {
	source   FileSource
	importer *Importer
}

func NewIngestService(source FileSource, importer *Importer) *IngestService {
	return &IngestService{source: source, importer: importer}
}

// IngestFile streams one Drive file into the importer.
func (s *IngestService) IngestFile(ctx context.Context, file *File) (ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(file.Name))

	if ext == ".xlsx" {
		var raw, converted bytes.Buffer
		if err := s.source.DownloadFile(ctx, file.ID, &raw); err != nil {
			return ImportResult{}, fmt.Errorf("failed to download %s: %w", file.Name, err)
		}
		if err := convertXLSXToCSV(&raw, &converted); err != nil {
			return ImportResult{}, fmt.Errorf("failed to convert %s to csv: %w", file.Name, err)
		}
		return s.importer.ImportCSV(ctx, file.Name, &converted)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.source.DownloadFile(ctx, file.ID, pw))
	}()
	defer pr.Close()

	return s.importer.ImportCSV(ctx, file.Name, pr)
}

// IngestFolder imports every CSV and XLSX file of folderID in name order. It
// stops at the first failing file; files imported before it stay recorded.
func (s *IngestService) IngestFolder(ctx context.Context, folderID string) ([]ImportResult, error) {
	files, err := s.source.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var results []ImportResult
	for _, f := range files {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}

		result, err := s.IngestFile(ctx, f)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-replenish/internal/app"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/replenishment"
	"github.com/andresuchdata/autopo-replenish/internal/repository/sqldb"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
)

type appKey struct{}

// openApp builds the engine and stores it in the command context.
func openApp(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(cfg.LogLevel, cfg.Server.Mode)

	a, err := app.New(c.Context, cfg)
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func closeApp(c *cli.Context) error {
	if a, ok := c.Context.Value(appKey{}).(*app.App); ok && a != nil {
		a.Close(context.Background())
	}
	return nil
}

func appFrom(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cliApp := &cli.App{
		Name:  "replenishctl",
		Usage: "Operate the inventory replenishment engine",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply the database schema",
				Action: runMigrate,
			},
			{
				Name:  "seed-catalog",
				Usage: "Load suppliers, products and supplier prices from CSV files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory containing suppliers.csv, products.csv and supplier_catalog.csv",
						Value:   "./data/seeds/catalog",
						EnvVars: []string{"SEED_DATA_DIR"},
					},
				},
				Before: openApp,
				After:  closeApp,
				Action: runSeedCatalog,
			},
			{
				Name:  "import-demand",
				Usage: "Import daily demand and stock levels",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "file",
						Usage: "Local CSV or XLSX file, may be repeated",
					},
					&cli.StringFlag{
						Name:    "drive-folder",
						Usage:   "Google Drive folder ID to import every CSV/XLSX file from",
						EnvVars: []string{"DRIVE_FOLDER_ID"},
					},
					&cli.StringFlag{
						Name:  "drive-path",
						Usage: "Slash separated Drive folder path, resolved from the Drive root",
					},
					&cli.StringFlag{
						Name:  "bucket-prefix",
						Usage: "Object storage prefix to download demand files from",
					},
					&cli.StringFlag{
						Name:  "bucket-object",
						Usage: "Single object under --bucket-prefix to import",
					},
					&cli.StringFlag{
						Name:  "download-dir",
						Usage: "Where bucket objects are downloaded to",
						Value: "./data/tmp/demand",
					},
				},
				Before: openApp,
				After:  closeApp,
				Action: runImportDemand,
			},
			{
				Name:  "generate",
				Usage: "Run one evaluation cycle and print the suggestions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "build",
						Usage: "Also draft purchase orders for the suggestions",
					},
				},
				Before: openApp,
				After:  closeApp,
				Action: runGenerate,
			},
			{
				Name:   "score",
				Usage:  "Score every supplier",
				Before: openApp,
				After:  closeApp,
				Action: runScore,
			},
			{
				Name:  "calc",
				Usage: "Run the calculators without a database",
				Subcommands: []*cli.Command{
					{
						Name:  "rop",
						Usage: "Reorder point from a demand series",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "demand", Usage: "Comma separated daily units sold", Required: true},
							&cli.IntFlag{Name: "lead-time", Usage: "Lead time in days", Required: true},
							&cli.Float64Flag{Name: "service-level", Usage: "Target service level", Value: 0.95},
						},
						Action: runCalcROP,
					},
					{
						Name:  "eoq",
						Usage: "Economic order quantity",
						Flags: []cli.Flag{
							&cli.Float64Flag{Name: "annual-demand", Required: true},
							&cli.Float64Flag{Name: "ordering-cost", Required: true},
							&cli.Float64Flag{Name: "holding-cost", Required: true},
							&cli.Int64Flag{Name: "pack-size", Value: 1},
						},
						Action: runCalcEOQ,
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("replenishctl failed")
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(cfg.LogLevel, cfg.Server.Mode)

	db, err := sqldb.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Migrate(c.Context)
}

func runSeedCatalog(c *cli.Context) error {
	a := appFrom(c)
	counts, err := seedCatalog(c.Context, a.Store, c.String("data-dir"))
	if err != nil {
		return err
	}
	return printJSON(c, counts)
}

func runImportDemand(c *cli.Context) error {
	a := appFrom(c)
	ctx := c.Context

	files := c.StringSlice("file")
	if prefix := c.String("bucket-prefix"); prefix != "" {
		if a.Objects == nil {
			return fmt.Errorf("--bucket-prefix needs STORAGE_ENABLED=true")
		}
		downloader, err := newBucketDownloader(a.Objects, c.String("download-dir"))
		if err != nil {
			return err
		}
		paths, err := downloader.download(ctx, prefix, c.String("bucket-object"))
		if err != nil {
			return err
		}
		files = append(files, paths...)
	}

	var results []any
	for _, path := range files {
		res, err := a.Importer.ImportFile(ctx, path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		results = append(results, res)
	}

	folder := c.String("drive-folder")
	if drivePath := c.String("drive-path"); drivePath != "" && a.Drive != nil {
		id, err := a.Drive.FindFolderByPath(ctx, drivePath)
		if err != nil {
			return err
		}
		folder = id
	}
	if folder != "" || c.String("drive-path") != "" {
		ingest := a.Ingest()
		if ingest == nil {
			return fmt.Errorf("--drive-folder and --drive-path need DRIVE_CREDENTIALS_FILE")
		}
		imported, err := ingest.IngestFolder(ctx, folder)
		for _, res := range imported {
			results = append(results, res)
		}
		if err != nil {
			_ = printJSON(c, results)
			return err
		}
	}

	if len(results) == 0 {
		return fmt.Errorf("nothing to import: pass --file, --drive-folder, --drive-path or --bucket-prefix")
	}
	return printJSON(c, results)
}

func runGenerate(c *cli.Context) error {
	a := appFrom(c)
	batch, err := a.Suggestions.Refresh(c.Context, service.TriggerOnDemand)
	if err != nil {
		return err
	}
	if !c.Bool("build") {
		return printJSON(c, batch)
	}

	if len(batch.Suggestions) == 0 {
		logger.Log.Info().Msg("No suggestions, nothing to build")
		return printJSON(c, batch)
	}
	orders, err := a.PurchaseOrders.BuildFromSuggestions(c.Context, batch.Suggestions)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{"suggestions": batch, "purchase_orders": orders})
}

func runScore(c *cli.Context) error {
	reports, err := appFrom(c).Suppliers.ScoreAll(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, reports)
}

func runCalcROP(c *cli.Context) error {
	units, err := parseSeries(c.String("demand"))
	if err != nil {
		return err
	}
	result, err := replenishment.CalculateReorderPoint(units, c.Int("lead-time"), c.Float64("service-level"))
	if err != nil {
		return err
	}
	return printJSON(c, result)
}

func runCalcEOQ(c *cli.Context) error {
	in := replenishment.EOQInput{
		AnnualDemand: c.Float64("annual-demand"),
		OrderingCost: c.Float64("ordering-cost"),
		HoldingCost:  c.Float64("holding-cost"),
		PackSize:     c.Int64("pack-size"),
	}
	eoq, err := replenishment.EconomicOrderQuantity(in)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{"eoq": eoq, "input": in})
}

// parseSeries reads "4, 5,6" into a float series.
func parseSeries(raw string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid demand value %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

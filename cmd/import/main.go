package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"product-scanner/internal/config"
	"product-scanner/internal/database"
	"product-scanner/internal/ingest"
	"product-scanner/internal/logger"
	"product-scanner/internal/repository"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	var (
		file      = flag.String("file", "", "path to the .xlsx or .csv spreadsheet to import")
		format    = flag.String("format", "", "spreadsheet format: xlsx or csv (default: by file extension)")
		encoding  = flag.String("encoding", "", "CSV encoding: utf-8 or windows-1251 (default: utf-8)")
		delimiter = flag.String("delimiter", ",", "CSV field delimiter")
		migrate   = flag.Bool("migrate", false, "run database migrations before importing")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import -file products.xlsx [-format xlsx|csv] [-encoding windows-1251] [-delimiter ';'] [-migrate]")
		os.Exit(2)
	}

	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if *migrate {
		if err := database.RunMigrations(db, "migrations", log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal("Failed to open spreadsheet", zap.Error(err))
	}
	defer f.Close()

	fileFormat := strings.ToLower(*format)
	if fileFormat == "" {
		fileFormat = strings.TrimPrefix(strings.ToLower(filepath.Ext(*file)), ".")
	}

	var rows []map[string]any
	switch fileFormat {
	case "xlsx":
		rows, err = ingest.ReadXLSX(f)
	case "csv":
		opts := ingest.CSVOptions{
			Windows1251: strings.EqualFold(*encoding, "windows-1251"),
		}
		if *delimiter != "" {
			opts.Delimiter = rune((*delimiter)[0])
		}
		rows, err = ingest.ReadCSV(f, opts)
	default:
		log.Fatal("Unsupported format, expected xlsx or csv", zap.String("format", fileFormat))
	}
	if err != nil {
		log.Fatal("Failed to parse spreadsheet", zap.Error(err))
	}

	pipeline := ingest.NewPipeline(repository.NewCatalogRepository(db), log)
	summary := pipeline.Run(context.Background(), rows)

	log.Info("Import finished",
		zap.String("file", *file),
		zap.Int("rows", len(rows)),
		zap.Int("ok", summary.OK),
		zap.Int("skipped", summary.Skipped),
	)

	if len(rows) > 0 && summary.OK == 0 {
		log.Error("No rows were imported")
		os.Exit(1)
	}
}

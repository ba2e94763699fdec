// Package ingest runs bulk spreadsheet rows through normalization, barcode
// validation and transactional catalog writes.
package ingest

import (
	"context"

	"product-scanner/internal/barcode"
	"product-scanner/internal/domain"
	"product-scanner/internal/normalize"
	"product-scanner/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Summary reports the outcome of one pipeline run.
type Summary struct {
	OK      int `json:"ok"`
	Skipped int `json:"skipped"`
}

// Pipeline commits raw ingestion rows against the catalog store. Rows are
// processed sequentially and independently: every row is normalized,
// structurally validated and written in its own transaction, so one bad row
// never aborts the batch or leaves partial state behind.
type Pipeline struct {
	repo   repository.CatalogRepository
	logger *zap.Logger
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repo repository.CatalogRepository, logger *zap.Logger) *Pipeline {
	return &Pipeline{repo: repo, logger: logger}
}

// Run ingests rows in order and returns the success/skip counts. Each batch
// gets a generated id so its rows can be correlated in the logs.
func (p *Pipeline) Run(ctx context.Context, rows []map[string]any) Summary {
	batchID := uuid.New().String()
	log := p.logger.With(zap.String("batch_id", batchID))

	log.Info("Starting ingestion batch", zap.Int("rows", len(rows)))

	var summary Summary
	for i, raw := range rows {
		if err := p.ingestRow(ctx, raw); err != nil {
			summary.Skipped++
			log.Warn("Row skipped",
				zap.Int("row", i+1),
				zap.Error(err),
			)
			continue
		}
		summary.OK++
	}

	log.Info("Ingestion batch finished",
		zap.Int("ok", summary.OK),
		zap.Int("skipped", summary.Skipped),
	)

	return summary
}

// ingestRow normalizes one row and commits it as a single atomic unit:
// product upsert, nutrition merge-upsert when any field is known, and main
// image upsert when a URL is present. Bulk rows only get the structural
// barcode check; the EAN-13 checksum is deliberately not enforced on imports,
// matching how upstream spreadsheets have always been loaded.
func (p *Pipeline) ingestRow(ctx context.Context, raw map[string]any) error {
	row, err := normalize.Row(raw)
	if err != nil {
		return err
	}

	if err := barcode.ValidateStructure(row.Barcode); err != nil {
		return err
	}

	return p.repo.WithinTx(ctx, func(w repository.CatalogWriter) error {
		id, err := w.UpsertProduct(ctx, &domain.Product{
			Barcode:     row.Barcode,
			Name:        row.Name,
			Brand:       row.Brand,
			Category:    row.Category,
			Description: row.Description,
			SizeValue:   row.SizeValue,
			SizeUnit:    row.SizeUnit,
			Price:       row.Price,
		})
		if err != nil {
			return err
		}

		if !row.Nutrition.IsEmpty() {
			if err := w.UpsertNutrition(ctx, id, &row.Nutrition); err != nil {
				return err
			}
		}

		if row.ImageURL != nil {
			if err := w.UpsertImage(ctx, id, domain.ImageTypeMain, *row.ImageURL); err != nil {
				return err
			}
		}

		return nil
	})
}

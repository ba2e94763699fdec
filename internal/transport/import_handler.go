package transport

import (
	"net/http"
	"path/filepath"
	"strings"

	"product-scanner/internal/ingest"
	"product-scanner/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxImportBytes caps uploaded spreadsheet size.
const maxImportBytes = 32 << 20

// ImportHandler handles spreadsheet upload and ingestion
type ImportHandler struct {
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(pipeline *ingest.Pipeline, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// RegisterRoutes registers the import routes
func (h *ImportHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/imports", h.Import)
}

// Import accepts a multipart spreadsheet upload ("file" field, .xlsx or .csv)
// and runs it through the ingestion pipeline.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Debug("Import upload missing file", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	var rows []map[string]any
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		rows, err = ingest.ReadXLSX(file)
	case ".csv":
		opts := ingest.CSVOptions{
			Windows1251: r.URL.Query().Get("encoding") == "windows-1251",
		}
		if d := r.URL.Query().Get("delimiter"); d != "" {
			opts.Delimiter = rune(d[0])
		}
		rows, err = ingest.ReadCSV(file, opts)
	default:
		middleware.RespondWithError(w, http.StatusBadRequest, "unsupported file type, expected .xlsx or .csv")
		return
	}
	if err != nil {
		h.logger.Warn("Failed to parse uploaded spreadsheet",
			zap.Error(err),
			zap.String("filename", header.Filename),
		)
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to parse spreadsheet")
		return
	}

	summary := h.pipeline.Run(r.Context(), rows)

	h.logger.Info("Import completed",
		zap.String("filename", header.Filename),
		zap.Int("ok", summary.OK),
		zap.Int("skipped", summary.Skipped),
	)
	middleware.RespondWithJSON(w, http.StatusOK, summary)
}

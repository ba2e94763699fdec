package transport

import (
	"errors"
	"net/http"
	"strconv"

	"product-scanner/internal/barcode"
	"product-scanner/internal/domain"
	"product-scanner/internal/middleware"
	"product-scanner/internal/repository"
	"product-scanner/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateProductRequest represents the payload for adding a product
type CreateProductRequest struct {
	Barcode     string                 `json:"barcode" validate:"required"`
	Name        string                 `json:"product_name" validate:"required"`
	Brand       *string                `json:"brand"`
	Category    *string                `json:"category"`
	Description *string                `json:"description"`
	SizeValue   *float64               `json:"size_value"`
	SizeUnit    *string                `json:"size_unit"`
	Price       *float64               `json:"price" validate:"omitempty,gte=0"`
	Nutrition   *domain.NutritionFacts `json:"nutrition"`
	ImageURL    *string                `json:"image_url"`
}

// UpdateProductRequest represents the payload for updating a product.
// Absent fields keep their stored values.
type UpdateProductRequest struct {
	Name        *string                `json:"product_name"`
	Brand       *string                `json:"brand"`
	Category    *string                `json:"category"`
	Description *string                `json:"description"`
	SizeValue   *float64               `json:"size_value"`
	SizeUnit    *string                `json:"size_unit"`
	Price       *float64               `json:"price" validate:"omitempty,gte=0"`
	Nutrition   *domain.NutritionFacts `json:"nutrition"`
	ImageURL    *string                `json:"image_url"`
}

// ProductResponse is a product detail with the derived macro breakdown
type ProductResponse struct {
	domain.ProductDetail
	Macros *domain.MacroBreakdown `json:"macros,omitempty"`
}

// SearchResponse represents a page of search results
type SearchResponse struct {
	Items      []ProductResponse `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ProductHandler handles HTTP requests for catalog operations
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers all catalog routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, rateLimiter func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if rateLimiter != nil {
				r.Use(rateLimiter)
			}
			r.Get("/search", h.Search)
			r.Get("/scan/{barcode}", h.Scan)
		})

		r.Get("/{id}", h.GetProduct)
		r.Post("/", h.CreateProduct)
		r.Put("/{id}", h.UpdateProduct)
	})

	r.Get("/api/categories", h.ListCategories)
	r.Get("/api/brands", h.ListBrands)
}

// Search handles ranked product search with pagination
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	page := queryInt(r, "page", 0)
	pageSize := queryInt(r, "page_size", 0)

	result, err := h.catalog.Search(r.Context(), term, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrQueryTooShort) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		h.logger.Error("Search failed", zap.Error(err), zap.String("term", term))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to search products")
		return
	}

	response := SearchResponse{
		Items:      make([]ProductResponse, 0, len(result.Items)),
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}
	for _, item := range result.Items {
		response.Items = append(response.Items, toProductResponse(item))
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Scan handles exact barcode lookup
func (h *ProductHandler) Scan(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "barcode")

	detail, err := h.catalog.LookupBarcode(r.Context(), code)
	if err != nil {
		if errors.Is(err, barcode.ErrInvalidFormat) || errors.Is(err, barcode.ErrInvalidChecksum) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}

		h.logger.Error("Barcode lookup failed", zap.Error(err), zap.String("barcode", code))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to look up barcode")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(detail))
}

// GetProduct handles fetching a product by ID
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	detail, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}

		h.logger.Error("Failed to get product", zap.Error(err), zap.Int64("product_id", id))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(detail))
}

// CreateProduct handles adding a new product
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Create product validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.ProductInput{
		Barcode:     req.Barcode,
		Name:        &req.Name,
		Brand:       req.Brand,
		Category:    req.Category,
		Description: req.Description,
		SizeValue:   req.SizeValue,
		SizeUnit:    req.SizeUnit,
		Price:       req.Price,
		Nutrition:   req.Nutrition,
		ImageURL:    req.ImageURL,
	}

	detail, err := h.catalog.AddProduct(r.Context(), input)
	if err != nil {
		if errors.Is(err, barcode.ErrInvalidFormat) || errors.Is(err, service.ErrNameRequired) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, service.ErrBarcodeExists) {
			middleware.RespondWithError(w, http.StatusConflict, err.Error())
			return
		}

		h.logger.Error("Failed to create product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	h.logger.Info("Product created",
		zap.Int64("product_id", detail.ID),
		zap.String("barcode", detail.Barcode),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, toProductResponse(detail))
}

// UpdateProduct handles a merge update of an existing product
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Update product validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.ProductInput{
		Name:        req.Name,
		Brand:       req.Brand,
		Category:    req.Category,
		Description: req.Description,
		SizeValue:   req.SizeValue,
		SizeUnit:    req.SizeUnit,
		Price:       req.Price,
		Nutrition:   req.Nutrition,
		ImageURL:    req.ImageURL,
	}

	detail, err := h.catalog.UpdateProduct(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}

		h.logger.Error("Failed to update product", zap.Error(err), zap.Int64("product_id", id))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	h.logger.Info("Product updated", zap.Int64("product_id", detail.ID))
	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(detail))
}

// ListCategories handles listing distinct product categories
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list categories", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

// ListBrands handles listing distinct brands
func (h *ProductHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.catalog.Brands(r.Context())
	if err != nil {
		h.logger.Error("Failed to list brands", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list brands")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string][]string{"brands": brands})
}

func toProductResponse(detail *domain.ProductDetail) ProductResponse {
	return ProductResponse{
		ProductDetail: *detail,
		Macros:        detail.Nutrition.MacroBreakdown(),
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
